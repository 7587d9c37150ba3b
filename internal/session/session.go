// Package session owns the state the desktop shell used to keep in
// globals: the analyzed stream, the chosen format, the output folder and
// the one running download.
package session

import (
	"errors"
	"time"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/formats"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// Status of the session
const (
	StatusIdle        = "idle"
	StatusAnalyzing   = "analyzing"
	StatusReady       = "ready"
	StatusDownloading = "downloading"
	StatusDone        = "done"
	StatusFailed      = "failed"
)

var (
	// ErrBusy is returned while another analyze or download is running.
	ErrBusy = errors.New("another operation is already in progress")
	// ErrEmptyURL is returned for a blank URL.
	ErrEmptyURL = errors.New("please enter a URL")
	// ErrNotAnalyzed is returned when an operation needs an analyzed stream.
	ErrNotAnalyzed = errors.New("no stream has been analyzed yet")
	// ErrInvalidSelection is returned for an out-of-range format index.
	ErrInvalidSelection = errors.New("no format at that position")
	// ErrNoFormat is returned when a download has no format to fetch.
	ErrNoFormat = errors.New("no format selected")
)

// Session is a point-in-time copy of the service state.
type Session struct {
	ID        string                 `json:"id"`
	Status    string                 `json:"status"`
	URL       string                 `json:"url,omitempty"`
	Info      *models.StreamInfo     `json:"info,omitempty"`
	Selection *formats.Selection     `json:"selection,omitempty"`
	Selected  *models.SelectedFormat `json:"selected,omitempty"`
	AudioMode bool                   `json:"audio_mode"`
	OutputDir string                 `json:"output_dir"`
	Job       *models.DownloadJob    `json:"job,omitempty"`
	Progress  *models.ProgressEvent  `json:"progress,omitempty"`
	LastPath  string                 `json:"last_path,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// FormatSpec returns the -f expression for the current choice.
func (s Session) FormatSpec() (string, error) {
	if s.Selected == nil {
		return "", ErrNoFormat
	}
	best := formats.FallbackAudio
	if s.Selection != nil {
		best = s.Selection.BestAudioID
	}
	return formats.FormatSpec(*s.Selected, s.AudioMode, best), nil
}

// CompatWarning returns the playback warning for the current choice, if any.
func (s Session) CompatWarning() string {
	if s.Selected != nil && !s.AudioMode && s.Selected.CompatWarning {
		return formats.CompatWarningText
	}
	return ""
}

// clone deep-copies the mutable pointers so callers cannot race the service.
func (s Session) clone() Session {
	out := s
	if s.Selected != nil {
		sel := *s.Selected
		out.Selected = &sel
	}
	if s.Job != nil {
		job := *s.Job
		out.Job = &job
	}
	if s.Progress != nil {
		p := *s.Progress
		out.Progress = &p
	}
	// Info and Selection are replaced wholesale, never mutated in place.
	return out
}
