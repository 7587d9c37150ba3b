package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/progress"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/runner"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/tools"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

const (
	defaultMergeFormat = "mp4"
	metadataFailure    = "Failed to parse metadata from yt-dlp."
	analyzeFallback    = "Unknown error"
	downloadFallback   = "Download failed."
)

// Locator resolves tool binaries.
type Locator interface {
	Locate(name string) string
	IsBundled(name string) bool
}

// ProgressFunc receives progress events in emission order.
type ProgressFunc func(models.ProgressEvent)

// YtDlp drives the yt-dlp binary.
type YtDlp struct {
	locator     Locator
	logger      *logging.Logger
	mergeFormat string
	maxNameLen  int
}

// NewYtDlp creates a YtDlp wrapper
func NewYtDlp(locator Locator, cfg config.DownloadConfig, logger *logging.Logger) *YtDlp {
	if logger == nil {
		logger = logging.Nop()
	}
	merge := cfg.MergeFormat
	if merge == "" {
		merge = defaultMergeFormat
	}
	maxLen := cfg.MaxFilenameLen
	if maxLen <= 0 {
		maxLen = DefaultMaxFilenameLen
	}
	return &YtDlp{
		locator:     locator,
		logger:      logger,
		mergeFormat: merge,
		maxNameLen:  maxLen,
	}
}

// Analyze fetches the metadata document for url.
func (y *YtDlp) Analyze(ctx context.Context, url string) (*models.StreamInfo, error) {
	cmd := runner.Command{
		Path:          y.locator.Locate(tools.YtDlp),
		Args:          []string{"--dump-json", "--no-playlist", "--quiet", url},
		CaptureStdout: true,
	}

	start := time.Now()
	res, err := runner.Run(ctx, cmd, nil)
	y.logInvocation(cmd, res, time.Since(start), err)
	if err != nil {
		return nil, fromRun(tools.YtDlp, err, analyzeFallback)
	}

	return ParseMetadata(res.Stdout)
}

// ParseMetadata decodes the single JSON document printed by --dump-json.
func ParseMetadata(stdout string) (*models.StreamInfo, error) {
	body := strings.TrimSpace(stdout)
	if body == "" {
		return nil, newError(KindMalformedOutput, metadataFailure, nil)
	}

	var info models.StreamInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		return nil, newError(KindMalformedOutput, metadataFailure, fmt.Errorf("failed to decode metadata: %w", err))
	}
	return &info, nil
}

// Download runs one download job and returns the final file path
// announced by yt-dlp. The path is empty when yt-dlp did not print one.
func (y *YtDlp) Download(ctx context.Context, job models.DownloadJob, onProgress ProgressFunc) (string, error) {
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return "", newError(KindToolFailure, err.Error(), fmt.Errorf("failed to create output directory: %w", err))
	}

	cmd := runner.Command{
		Path: y.locator.Locate(tools.YtDlp),
		Args: y.BuildDownloadArgs(job),
	}

	tracker := progress.NewTracker(job.ID, job.AudioOnly)
	log := y.logger.WithJobID(job.ID)

	start := time.Now()
	res, err := runner.Run(ctx, cmd, func(line string) {
		evt, ok := tracker.Feed(line)
		if !ok {
			return
		}
		log.LogDownloadProgress(job.ID, evt.PhaseIndex, evt.Fraction, evt.Speed)
		if onProgress != nil {
			onProgress(evt)
		}
	})
	tracker.Finish()
	y.logInvocation(cmd, res, time.Since(start), err)
	if err != nil {
		return "", fromRun(tools.YtDlp, err, downloadFallback)
	}

	return tracker.Path(), nil
}

// BuildDownloadArgs returns the yt-dlp argument list for job.
func (y *YtDlp) BuildDownloadArgs(job models.DownloadJob) []string {
	title := job.TitleHint
	if title == "" {
		title = "download"
	}
	outtmpl := filepath.Join(job.OutputDir, SanitizeFilename(title, y.maxNameLen)+".%(ext)s")

	args := []string{
		"--newline",
		"--no-playlist",
		"--quiet",
		"--progress",
		"--no-mtime",
		"--progress-template", progress.Template,
		"--print", "after_move:filepath",
		"-f", job.FormatSpec,
		"-o", outtmpl,
	}

	if !job.AudioOnly {
		args = append(args, "--merge-output-format", y.mergeFormat)
	}

	if y.locator.IsBundled(tools.FFmpeg) {
		args = append(args, "--ffmpeg-location", y.locator.Locate(tools.FFmpeg))
	}

	return append(args, job.URL)
}

func (y *YtDlp) logInvocation(cmd runner.Command, res *runner.Result, d time.Duration, err error) {
	code := -1
	if res != nil {
		code = res.ExitCode
	}
	y.logger.LogToolInvocation(cmd.Path, cmd.Args, code, d, err)
}
