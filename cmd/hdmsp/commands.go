package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/app"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/events"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/formats"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/middleware"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/session"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/settings"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/tools"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

type cli struct {
	app   *app.App
	out   io.Writer
	tty   bool
	width int
}

func (c *cli) check(ctx context.Context) error {
	status := c.app.CheckTools(ctx)
	printTool(c.out, tools.YtDlp, status.YtDlp, status.YtDlpPath)
	printTool(c.out, tools.FFmpeg, status.FFmpeg, status.FFmpegPath)

	if missing := status.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", errToolsMissing, strings.Join(missing, ", "))
	}
	return nil
}

func printTool(w io.Writer, name string, ok bool, path string) {
	state := "missing"
	if ok {
		state = "ok"
	}
	fmt.Fprintf(w, "%-7s %-8s %s\n", name, state, path)
}

func (c *cli) analyze(ctx context.Context, url string) error {
	res, err := c.app.Session.Analyze(ctx, url)
	if err != nil {
		return err
	}
	printInfo(c.out, res)
	return nil
}

func printInfo(w io.Writer, res *session.AnalyzeResult) {
	info := res.Info
	fmt.Fprintln(w, info.Title)
	if author := info.Author(); author != "" {
		fmt.Fprintf(w, "  by %s\n", author)
	}
	fmt.Fprintf(w, "  Duration: %s", formats.FormatDuration(info.Duration))
	if info.ViewCount > 0 {
		fmt.Fprintf(w, "   Views: %s", humanize.Comma(info.ViewCount))
	}
	fmt.Fprintln(w)

	printList(w, "Video", res.Selection.Video)
	printList(w, "Audio", res.Selection.Audio)
}

func printList(w io.Writer, title string, list []models.SelectedFormat) {
	fmt.Fprintf(w, "\n%s:\n", title)
	if len(list) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for i, f := range list {
		mark := ""
		if f.CompatWarning {
			mark = "  (!)"
		}
		fmt.Fprintf(w, "  %2d. %s%s\n", i+1, f.Label, mark)
	}
}

// pickIndex maps --quality onto a list position. Video lists are ordered
// tallest first, so the first entry not above the cap is the best fit.
func pickIndex(sel formats.Selection, audio bool, quality int) (int, error) {
	if audio {
		if len(sel.Audio) == 0 {
			return 0, fmt.Errorf("no audio-only formats available")
		}
		if quality <= 0 {
			return 0, nil
		}
		if quality > len(sel.Audio) {
			return 0, fmt.Errorf("only %d audio formats available", len(sel.Audio))
		}
		return quality - 1, nil
	}

	if len(sel.Video) == 0 {
		return 0, fmt.Errorf("no video formats available")
	}
	if quality <= 0 {
		return 0, nil
	}
	for i, f := range sel.Video {
		if f.Height <= quality {
			return i, nil
		}
	}
	return len(sel.Video) - 1, nil
}

func (c *cli) download(ctx context.Context, cmd *downloadCmd) error {
	svc := c.app.Session

	res, err := svc.Analyze(ctx, cmd.URL)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, res.Info.Title)

	idx, err := pickIndex(res.Selection, cmd.Audio, cmd.Quality)
	if err != nil {
		return err
	}
	chosen, err := svc.Select(idx, cmd.Audio)
	if err != nil {
		return err
	}
	if cmd.Output != "" {
		if err := svc.SetOutputDir(cmd.Output); err != nil {
			return err
		}
	}

	fmt.Fprintf(c.out, "Format: %s\n", strings.TrimSpace(chosen.Label))
	if warning := svc.Snapshot().CompatWarning(); warning != "" {
		fmt.Fprintf(c.out, "Warning: %s\n", warning)
	}

	sub := svc.Events().Subscribe(events.AllJobs)
	defer sub.Close()

	printer := newProgressPrinter(c.out, c.tty, c.width)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub.C {
			if evt.Type == models.JobEventProgress && evt.Progress != nil {
				printer.update(*evt.Progress)
			}
			if events.IsTerminal(evt) {
				return
			}
		}
	}()

	job, path, err := svc.Download(ctx, session.DownloadRequest{})
	if job == nil {
		// Rejected before it started; no terminal event will come.
		sub.Close()
	}
	<-done
	printer.finish()

	if err != nil {
		return err
	}
	if st, statErr := os.Stat(path); statErr == nil {
		fmt.Fprintf(c.out, "Saved %s (%s)\n", path, humanize.Bytes(uint64(st.Size())))
	} else {
		fmt.Fprintf(c.out, "Saved %s\n", path)
	}
	return nil
}

func (c *cli) settings(ctx context.Context, set []string) error {
	store := c.app.Settings
	s, err := store.Load(ctx)
	if err != nil {
		return err
	}

	if len(set) > 0 {
		for _, kv := range set {
			key, value, err := parseSet(kv)
			if err != nil {
				return err
			}
			if s, err = settings.Apply(s, key, value); err != nil {
				return err
			}
		}
		if err := store.Save(ctx, s); err != nil {
			return err
		}
	}

	printSettings(c.out, s)
	if fs, ok := store.(*settings.FileStore); ok {
		fmt.Fprintf(c.out, "\nStored in %s\n", fs.Path())
	}
	return nil
}

func printSettings(w io.Writer, s models.AppearanceSettings) {
	for _, k := range settings.Keys() {
		v, _ := settings.Get(s, k)
		fmt.Fprintf(w, "%-11s %s\n", k, v)
	}
}

func parseSet(kv string) (string, string, error) {
	key, value, ok := strings.Cut(kv, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", kv)
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), nil
}

func printToken(w io.Writer, secret string, cmd *tokenCmd) error {
	if secret == "" {
		return fmt.Errorf("server.authSecret is not set, the control API accepts requests without a token")
	}
	token, err := middleware.GenerateToken(secret, cmd.Client, cmd.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}
