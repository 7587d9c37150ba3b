package models

import "time"

// DownloadJob is the request handed to the downloader.
type DownloadJob struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	FormatSpec string    `json:"format_spec"`
	OutputDir  string    `json:"output_dir"`
	TitleHint  string    `json:"title_hint"`
	AudioOnly  bool      `json:"audio_only"`
	CreatedAt  time.Time `json:"created_at"`
}

// Mode returns "audio" or "video" for labelling.
func (j *DownloadJob) Mode() string {
	if j.AudioOnly {
		return "audio"
	}
	return "video"
}

// Phase indexes reported in ProgressEvent.PhaseIndex
const (
	PhaseVideo = 0
	PhaseAudio = 1
	PhaseMerge = 2
)

// Phase labels
const (
	PhaseLabelVideo = "Downloading video stream…"
	PhaseLabelAudio = "Downloading audio stream…"
	PhaseLabelMerge = "Merging streams…"
)

// ProgressEvent is one normalized progress update for the active job.
type ProgressEvent struct {
	JobID      string  `json:"job_id,omitempty"`
	Phase      string  `json:"phase"`
	Fraction   float64 `json:"percent"`
	Speed      string  `json:"speed"`
	ETA        string  `json:"eta"`
	PhaseIndex int     `json:"phase_index"`

	// Raw byte counters, kept for logging and metrics.
	DownloadedBytes int64 `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64 `json:"total_bytes,omitempty"`
}

// JobEvent types
const (
	JobEventStarted   = "started"
	JobEventProgress  = "progress"
	JobEventCompleted = "completed"
	JobEventFailed    = "failed"
)

// JobEvent is what the core emits outward for a job.
type JobEvent struct {
	Type      string         `json:"type"`
	JobID     string         `json:"job_id"`
	Progress  *ProgressEvent `json:"progress,omitempty"`
	Path      string         `json:"path,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// JobStatus constants
const (
	JobStatusPending     = "pending"
	JobStatusDownloading = "downloading"
	JobStatusCompleted   = "completed"
	JobStatusFailed      = "failed"
)
