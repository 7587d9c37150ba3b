package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/errmap"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/runner"
)

// Kind classifies a downloader failure.
type Kind int

const (
	// KindToolNotFound means the binary could not be started.
	KindToolNotFound Kind = iota
	// KindToolFailure means the tool ran and reported an error.
	KindToolFailure
	// KindMalformedOutput means the tool succeeded but printed something unusable.
	KindMalformedOutput
)

func (k Kind) String() string {
	switch k {
	case KindToolNotFound:
		return "tool_not_found"
	case KindToolFailure:
		return "tool_failure"
	case KindMalformedOutput:
		return "malformed_output"
	default:
		return "unknown"
	}
}

// Error is returned by every Analyzer and Downloader operation. Message
// is always safe to show to a person.
type Error struct {
	Kind     Kind
	Category errmap.Category
	Message  string
	Raw      string
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

const cancelledMessage = "The operation was cancelled."

// newError humanizes raw and attaches the matching category.
func newError(kind Kind, raw string, err error) *Error {
	return &Error{
		Kind:     kind,
		Category: errmap.Classify(raw),
		Message:  errmap.Humanize(raw),
		Raw:      raw,
		Err:      err,
	}
}

// fromRun converts a runner failure into an Error. fallback is used when
// the tool wrote nothing to stderr.
func fromRun(tool string, err error, fallback string) *Error {
	var spawnErr *runner.SpawnError
	if errors.As(err, &spawnErr) {
		return newError(KindToolNotFound, fmt.Sprintf("Could not run %s: %v", tool, spawnErr.Err), err)
	}

	if errors.Is(err, context.Canceled) {
		e := newError(KindToolFailure, cancelledMessage, err)
		e.Category = errmap.CategoryCancelled
		return e
	}

	raw := fallback
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) {
		if line := runner.LastErrorLine(exitErr.Stderr); line != "" {
			raw = line
		}
	} else if err != nil {
		raw = err.Error()
	}
	return newError(KindToolFailure, raw, err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
