package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"golang.org/x/term"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/app"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
)

type checkCmd struct{}

type analyzeCmd struct {
	URL string `arg:"positional,required" help:"stream URL"`
}

type downloadCmd struct {
	URL     string `arg:"positional,required" help:"stream URL"`
	Audio   bool   `arg:"-a,--audio" help:"download an audio-only stream"`
	Quality int    `arg:"-q,--quality" help:"video: highest height to accept, e.g. 720. audio: position in the audio list. 0 picks the best"`
	Output  string `arg:"-o,--output" help:"output directory. Created if it does not exist"`
}

type settingsCmd struct {
	Set []string `arg:"--set,separate" help:"key=value to change, repeatable"`
}

type tokenCmd struct {
	Client string        `arg:"--client" default:"cli" help:"client name embedded in the token"`
	TTL    time.Duration `arg:"--ttl" default:"24h" help:"token lifetime, 0 for no expiry"`
}

type args struct {
	Config   string       `arg:"-c,--config,env:CONFIG_PATH" default:"config.yaml" help:"config file, defaults apply when it is missing"`
	Verbose  bool         `arg:"-v,--verbose" help:"log debug output to stderr"`
	Check    *checkCmd    `arg:"subcommand:check" help:"report whether yt-dlp and ffmpeg are available"`
	Analyze  *analyzeCmd  `arg:"subcommand:analyze" help:"show title, duration and the available formats"`
	Download *downloadCmd `arg:"subcommand:download" help:"download a stream"`
	Settings *settingsCmd `arg:"subcommand:settings" help:"show or change the appearance settings"`
	Token    *tokenCmd    `arg:"subcommand:token" help:"print a bearer token for the control API"`
}

func (args) Description() string {
	return "hdmsp downloads video and audio streams through yt-dlp and ffmpeg.\n"
}

var errToolsMissing = errors.New("required tools are missing")

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}
	os.Exit(run(a))
}

func run(a args) int {
	cfg, err := config.LoadOrDefault(a.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.NewCLILogger(a.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	if a.Token != nil {
		return exitCode(printToken(os.Stdout, cfg.Server.AuthSecret, a.Token))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	defer application.Close()

	fd := int(os.Stdout.Fd())
	c := &cli{
		app:   application,
		out:   os.Stdout,
		tty:   term.IsTerminal(fd),
		width: termWidth(fd),
	}

	switch {
	case a.Check != nil:
		err = c.check(ctx)
	case a.Analyze != nil:
		err = c.analyze(ctx, a.Analyze.URL)
	case a.Download != nil:
		err = c.download(ctx, a.Download)
	case a.Settings != nil:
		err = c.settings(ctx, a.Settings.Set)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Cancelled.")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}

// termWidth returns the terminal width, defaulting to 80.
func termWidth(fd int) int {
	width, _, err := term.GetSize(fd)
	if err != nil || width == 0 {
		return 80
	}
	return width
}
