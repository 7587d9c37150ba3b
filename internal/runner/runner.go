package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/errmap"
)

// maxLineSize bounds a single stdout line. --dump-json prints one line
// that is often larger than the scanner default.
const maxLineSize = 16 * 1024 * 1024

// pipeGrace is how long a cancelled run waits for its output pipes to
// close before they are closed forcibly. Grandchildren (ffmpeg under
// yt-dlp, the PyInstaller bootloader's payload) can hold them open.
const pipeGrace = 2 * time.Second

// Command describes one child process invocation.
type Command struct {
	Path          string
	Args          []string
	Dir           string
	CaptureStdout bool
}

func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Result holds the outcome of a completed child.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// SpawnError means the binary could not be started at all.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the child ran and exited non-zero.
type ExitError struct {
	Path   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Path, e.Code)
	if line := LastErrorLine(e.Stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

// Run starts cmd, hands each non-blank stdout line to onLine in emission
// order and waits for the child to exit. onLine may be nil. onLine is
// always called from a single goroutine and never after Run returns.
func Run(ctx context.Context, cmd Command, onLine func(string)) (*Result, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = pipeGrace
	killTree(c)

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderrBuf bytes.Buffer
	c.Stderr = &stderrBuf

	if err := c.Start(); err != nil {
		return nil, &SpawnError{Path: cmd.Path, Err: err}
	}

	var (
		stdoutBuf strings.Builder
		wg        sync.WaitGroup
	)
	scanDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(scanDone)
		scanLines(stdout, func(line string) {
			if cmd.CaptureStdout {
				stdoutBuf.WriteString(line)
				stdoutBuf.WriteByte('\n')
			}
			if onLine != nil {
				onLine(line)
			}
		})
	}()

	// Unblock the scanner if something outside the killed tree still
	// holds the write end after cancellation.
	go func() {
		select {
		case <-scanDone:
		case <-ctx.Done():
			select {
			case <-scanDone:
			case <-time.After(pipeGrace):
				_ = stdout.Close()
			}
		}
	}()

	// The pipe must be drained before Wait closes it.
	wg.Wait()
	waitErr := c.Wait()

	res := &Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s interrupted: %w", cmd.Path, ctxErr)
		}
		if exitErr != nil {
			return res, &ExitError{Path: cmd.Path, Code: res.ExitCode, Stderr: res.Stderr}
		}
		return res, fmt.Errorf("failed waiting for %s: %w", cmd.Path, waitErr)
	}

	return res, nil
}

func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fn(line)
	}
	// Keep draining so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// LastErrorLine picks the most useful line out of a tool's stderr: the
// last line tagged "ERROR:" when present, else the last non-empty line.
// The "ERROR:" tag is removed wherever it sits in the line.
func LastErrorLine(stderr string) string {
	lines := strings.Split(strings.ReplaceAll(stderr, "\r\n", "\n"), "\n")

	var last, lastTagged string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		last = l
		if strings.Contains(l, "ERROR:") {
			lastTagged = l
		}
	}

	pick := last
	if lastTagged != "" {
		pick = lastTagged
	}
	return errmap.StripErrorTag(pick)
}
