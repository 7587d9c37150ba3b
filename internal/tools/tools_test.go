package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func noExecutable() (string, error) {
	return "", errors.New("unavailable")
}

func TestLocate(t *testing.T) {
	installDir := t.TempDir()
	exeDir := t.TempDir()

	touch(t, filepath.Join(installDir, "yt-dlp"))
	touch(t, filepath.Join(exeDir, "yt-dlp"))
	touch(t, filepath.Join(exeDir, "ffmpeg"))
	touch(t, filepath.Join(exeDir, "ffmpeg.exe"))

	l := &Locator{
		installDir: installDir,
		goos:       "linux",
		executable: func() (string, error) { return filepath.Join(exeDir, "hdmsp"), nil },
	}

	tests := []struct {
		name string
		tool string
		goos string
		want string
	}{
		{name: "install dir wins", tool: YtDlp, goos: "linux", want: filepath.Join(installDir, "yt-dlp")},
		{name: "executable dir second", tool: FFmpeg, goos: "linux", want: filepath.Join(exeDir, "ffmpeg")},
		{name: "windows suffix", tool: FFmpeg, goos: "windows", want: filepath.Join(exeDir, "ffmpeg.exe")},
		{name: "bare name fallback", tool: "ffprobe", goos: "linux", want: "ffprobe"},
		{name: "bare name keeps windows suffix", tool: "ffprobe", goos: "windows", want: "ffprobe.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l.goos = tt.goos
			assert.Equal(t, tt.want, l.Locate(tt.tool))
		})
	}
}

func TestLocatePinnedPathWins(t *testing.T) {
	installDir := t.TempDir()
	touch(t, filepath.Join(installDir, "yt-dlp"))

	l := NewLocator(config.ToolsConfig{
		InstallDir: installDir,
		YtDlpPath:  "/opt/custom/yt-dlp",
	})

	assert.Equal(t, "/opt/custom/yt-dlp", l.Locate(YtDlp))
}

func TestLocateIgnoresDirectories(t *testing.T) {
	installDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(installDir, "yt-dlp"), 0o755))

	l := &Locator{installDir: installDir, goos: "linux", executable: noExecutable}
	assert.Equal(t, "yt-dlp", l.Locate(YtDlp))
	assert.False(t, l.IsBundled(YtDlp))
}

func TestUserInstallDirFromEnvironment(t *testing.T) {
	base := t.TempDir()
	t.Setenv("LOCALAPPDATA", base)

	l := &Locator{}
	assert.Equal(t, filepath.Join(base, "HDMSP"), l.userInstallDir())
}

func TestUserInstallDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	l := &Locator{}
	assert.Equal(t, filepath.Join(home, "HDMSP"), l.userInstallDir())
}

func TestCheck(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "yt-dlp"), `[ "$1" = "--version" ] && echo 2024.08.06 && exit 0; exit 2`)
	writeScript(t, filepath.Join(dir, "ffmpeg"), `exit 1`)

	l := &Locator{installDir: dir, goos: "linux", executable: noExecutable, probeTimeout: 2 * time.Second}

	assert.True(t, l.Check(context.Background(), YtDlp))
	assert.False(t, l.Check(context.Background(), FFmpeg))
	assert.False(t, l.Check(context.Background(), "definitely-not-installed-tool"))

	status := l.CheckAll(context.Background())
	assert.True(t, status.YtDlp)
	assert.False(t, status.FFmpeg)
	assert.Equal(t, filepath.Join(dir, "yt-dlp"), status.YtDlpPath)
}

func TestCheckTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "yt-dlp"), `exec sleep 5`)

	l := &Locator{installDir: dir, goos: "linux", executable: noExecutable, probeTimeout: 100 * time.Millisecond}

	start := time.Now()
	assert.False(t, l.Check(context.Background(), YtDlp))
	assert.Less(t, time.Since(start), 3*time.Second)
}
