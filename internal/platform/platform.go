// Package platform holds the few OS integrations the shell needs: the
// default download folder and revealing a file in the file manager.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// OutputDirName is created inside the user's Downloads folder.
const OutputDirName = "HDMSP Downloads"

// DownloadsDir returns the user's Downloads folder. XDG_DOWNLOAD_DIR wins
// when set.
func DownloadsDir() (string, error) {
	if dir := os.Getenv("XDG_DOWNLOAD_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home dir: %w", err)
	}
	return filepath.Join(home, "Downloads"), nil
}

// DefaultOutputDir returns <Downloads>/HDMSP Downloads, creating it.
func DefaultOutputDir() (string, error) {
	base, err := DownloadsDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, OutputDirName)
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	if dir == "" {
		return errors.New("empty directory path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// RevealCommand returns the program and arguments that show path in the
// file manager for goos. An existing file is selected where the platform
// supports it; otherwise its directory is opened.
func RevealCommand(goos, path string, exists bool) (string, []string) {
	if !exists {
		return openCommand(goos, filepath.Dir(path))
	}
	switch goos {
	case "windows":
		return "explorer", []string{"/select," + path}
	case "darwin":
		return "open", []string{"-R", path}
	default:
		return openCommand(goos, filepath.Dir(path))
	}
}

func openCommand(goos, dir string) (string, []string) {
	switch goos {
	case "windows":
		return "explorer", []string{dir}
	case "darwin":
		return "open", []string{dir}
	default:
		return "xdg-open", []string{dir}
	}
}

// RevealFile shows path in the OS file manager. The file manager is
// started detached; RevealFile does not wait for it.
func RevealFile(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	_, err := os.Stat(path)
	name, args := RevealCommand(runtime.GOOS, path, err == nil)

	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	go cmd.Wait()
	return nil
}
