package progress

import (
	"strings"

	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// State of a download job as seen through its stdout.
type State int

const (
	StateIdle State = iota
	StateVideo
	StateAudio
	StateMerging
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVideo:
		return "video-downloading"
	case StateAudio:
		return "audio-downloading"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Tracker classifies downloader stdout lines for one job. It is not
// safe for concurrent use; the runner feeds it from a single goroutine.
type Tracker struct {
	jobID     string
	audioOnly bool
	state     State
	path      string
	last      *models.ProgressEvent
}

// NewTracker creates a tracker in the idle state.
func NewTracker(jobID string, audioOnly bool) *Tracker {
	return &Tracker{jobID: jobID, audioOnly: audioOnly, state: StateIdle}
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// Path returns the most recent final-path announcement.
func (t *Tracker) Path() string {
	return t.path
}

// Last returns the most recent event emitted, or nil.
func (t *Tracker) Last() *models.ProgressEvent {
	return t.last
}

// Feed classifies one line. The returned event is valid only when ok.
func (t *Tracker) Feed(raw string) (models.ProgressEvent, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || t.state == StateDone {
		return models.ProgressEvent{}, false
	}

	if strings.HasPrefix(line, "PROG") {
		sample, ok := ParseStructured(line)
		if !ok {
			return models.ProgressEvent{}, false
		}
		return t.onSample(sample), true
	}

	if IsMergeMarker(line) {
		t.state = StateMerging
		return t.emit(models.ProgressEvent{
			Phase:      models.PhaseLabelMerge,
			Fraction:   1.0,
			PhaseIndex: models.PhaseMerge,
		}), true
	}

	if IsPathLine(line) {
		t.path = line
	}
	return models.ProgressEvent{}, false
}

func (t *Tracker) onSample(s Sample) models.ProgressEvent {
	if t.state == StateIdle {
		if t.audioOnly {
			t.state = StateAudio
		} else {
			t.state = StateVideo
		}
	}

	index := models.PhaseVideo
	if t.audioOnly || t.state == StateAudio {
		index = models.PhaseAudio
	}
	// Late samples after the merge marker still belong to a stream.
	if t.state == StateMerging && !t.audioOnly {
		index = models.PhaseAudio
	}

	evt := t.emit(models.ProgressEvent{
		Phase:           phaseLabel(index),
		Fraction:        s.Fraction(),
		Speed:           FormatSpeed(s.Speed),
		ETA:             FormatETA(s.ETA),
		PhaseIndex:      index,
		DownloadedBytes: s.Downloaded,
		TotalBytes:      s.Total,
	})

	if s.Status == statusFinished && t.state == StateVideo {
		t.state = StateAudio
	}
	return evt
}

func (t *Tracker) emit(evt models.ProgressEvent) models.ProgressEvent {
	evt.JobID = t.jobID
	t.last = &evt
	return evt
}

// Finish marks the job done; later lines are ignored.
func (t *Tracker) Finish() {
	t.state = StateDone
}
