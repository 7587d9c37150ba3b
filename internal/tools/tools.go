package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// Tool names as installed on disk, without the Windows suffix.
const (
	YtDlp  = "yt-dlp"
	FFmpeg = "ffmpeg"
)

const (
	installDirName      = "HDMSP"
	defaultProbeTimeout = 4 * time.Second
)

// versionFlags holds the argument each tool accepts to print its version.
var versionFlags = map[string]string{
	YtDlp:  "--version",
	FFmpeg: "-version",
}

// Locator resolves tool binaries. The zero value searches the default
// per-user install directory and the executable's directory.
type Locator struct {
	installDir   string
	pinned       map[string]string
	probeTimeout time.Duration

	// overridable in tests
	goos       string
	executable func() (string, error)
	stat       func(string) (os.FileInfo, error)
}

// NewLocator creates a Locator from the tools configuration.
func NewLocator(cfg config.ToolsConfig) *Locator {
	l := &Locator{
		installDir:   cfg.InstallDir,
		probeTimeout: cfg.ProbeTimeout,
		pinned:       make(map[string]string),
	}
	if cfg.YtDlpPath != "" {
		l.pinned[YtDlp] = cfg.YtDlpPath
	}
	if cfg.FFmpegPath != "" {
		l.pinned[FFmpeg] = cfg.FFmpegPath
	}
	return l
}

// Locate returns the path to run for name. It checks the per-user install
// directory, then the directory of the running executable, and otherwise
// returns the bare name so the OS search path resolves it.
func (l *Locator) Locate(name string) string {
	if p, ok := l.pinned[name]; ok {
		return p
	}

	file := name
	if l.os() == "windows" {
		file += ".exe"
	}

	if dir := l.userInstallDir(); dir != "" {
		candidate := filepath.Join(dir, file)
		if l.exists(candidate) {
			return candidate
		}
	}

	if exe, err := l.exe(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), file)
		if l.exists(candidate) {
			return candidate
		}
	}

	return file
}

// IsBundled reports whether Locate resolved name to a concrete file
// rather than leaving it to the search path.
func (l *Locator) IsBundled(name string) bool {
	return filepath.IsAbs(l.Locate(name))
}

// Check runs the tool's version command and reports whether it exited
// cleanly within the probe timeout.
func (l *Locator) Check(ctx context.Context, name string) bool {
	timeout := l.probeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	flag, ok := versionFlags[name]
	if !ok {
		flag = "--version"
	}

	cmd := exec.CommandContext(ctx, l.Locate(name), flag)
	return cmd.Run() == nil
}

// CheckAll probes yt-dlp and ffmpeg concurrently.
func (l *Locator) CheckAll(ctx context.Context) models.ToolStatus {
	type result struct {
		name string
		ok   bool
	}
	results := make(chan result, 2)
	for _, name := range []string{YtDlp, FFmpeg} {
		go func(name string) {
			results <- result{name: name, ok: l.Check(ctx, name)}
		}(name)
	}

	status := models.ToolStatus{
		YtDlpPath:  l.Locate(YtDlp),
		FFmpegPath: l.Locate(FFmpeg),
	}
	for i := 0; i < 2; i++ {
		r := <-results
		switch r.name {
		case YtDlp:
			status.YtDlp = r.ok
		case FFmpeg:
			status.FFmpeg = r.ok
		}
	}
	return status
}

func (l *Locator) userInstallDir() string {
	if l.installDir != "" {
		return l.installDir
	}
	if base := os.Getenv("LOCALAPPDATA"); base != "" {
		return filepath.Join(base, installDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, installDirName)
}

func (l *Locator) os() string {
	if l.goos != "" {
		return l.goos
	}
	return runtime.GOOS
}

func (l *Locator) exe() (string, error) {
	if l.executable != nil {
		return l.executable()
	}
	return os.Executable()
}

func (l *Locator) exists(path string) bool {
	stat := os.Stat
	if l.stat != nil {
		stat = l.stat
	}
	info, err := stat(path)
	return err == nil && !info.IsDir()
}
