package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/downloader"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/events"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/formats"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/metrics"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/platform"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/session"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/settings"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// ToolChecker probes for yt-dlp and ffmpeg.
type ToolChecker interface {
	CheckTools(ctx context.Context) models.ToolStatus
}

// Archive lists finished downloads copied to object storage.
type Archive interface {
	List(ctx context.Context, jobID string) ([]string, error)
	GetURL(ctx context.Context, objectName string) (string, error)
}

// API serves the UI-facing operations over loopback HTTP.
type API struct {
	session  *session.Service
	tools    ToolChecker
	settings settings.Store
	archive  Archive
	reveal   func(ctx context.Context, path string) error
	logger   *logging.Logger
}

// SSE event names sent to the UI
const (
	sseStarted  = "started"
	sseProgress = "progress"
	sseDone     = "done"
	sseError    = "error"
)

type analyzeResponse struct {
	Info      *models.StreamInfo `json:"info"`
	Selection formats.Selection  `json:"selection"`
	Duration  string             `json:"duration"`
	Author    string             `json:"author"`
	Cached    bool               `json:"cached"`
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	analyzing, downloading := api.session.Busy()
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"analyzing":   analyzing,
		"downloading": downloading,
	})
}

// Tool availability endpoint
func (api *API) checkTools(c *gin.Context) {
	status := api.tools.CheckTools(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"ytdlp":       status.YtDlp,
		"ffmpeg":      status.FFmpeg,
		"ytdlp_path":  status.YtDlpPath,
		"ffmpeg_path": status.FFmpegPath,
		"missing":     status.Missing(),
	})
}

// Output directory endpoints
func (api *API) getOutputDir(c *gin.Context) {
	dir := api.session.OutputDir()
	if dir == "" {
		def, err := platform.DefaultOutputDir()
		if err != nil {
			respondError(c, err)
			return
		}
		if err := api.session.SetOutputDir(def); err != nil {
			respondError(c, err)
			return
		}
		dir = def
	}
	c.JSON(http.StatusOK, gin.H{"path": dir})
}

func (api *API) setOutputDir(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := api.session.SetOutputDir(req.Path); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_directory"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": api.session.OutputDir()})
}

// Analyze endpoint
func (api *API) analyze(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := api.session.Analyze(c.Request.Context(), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analyzeResponse{
		Info:      res.Info,
		Selection: res.Selection,
		Duration:  formats.FormatDuration(res.Info.Duration),
		Author:    res.Info.Author(),
		Cached:    res.Cached,
	})
}

// Format selection endpoint
func (api *API) selectFormat(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
		Audio bool `json:"audio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chosen, err := api.session.Select(*req.Index, req.Audio)
	if err != nil {
		respondError(c, err)
		return
	}

	snap := api.session.Snapshot()
	spec, _ := snap.FormatSpec()
	c.JSON(http.StatusOK, gin.H{
		"selected":      chosen,
		"formatSpec":    spec,
		"compatWarning": snap.CompatWarning(),
	})
}

// Session endpoints
func (api *API) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, api.session.Snapshot())
}

func (api *API) resetSession(c *gin.Context) {
	if err := api.session.Reset(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.session.Snapshot())
}

// Start download endpoint. An empty body downloads the session's
// current selection.
func (api *API) startDownload(c *gin.Context) {
	var req session.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	job, err := api.session.StartDownload(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// Download event stream. With ?job_id= the stream ends with that job;
// without it every job is streamed until the client leaves.
func (api *API) downloadEvents(c *gin.Context) {
	jobID := c.DefaultQuery("job_id", events.AllJobs)
	sub := api.session.Events().Subscribe(jobID)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent(sseName(evt), evt)
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sseName(evt models.JobEvent) string {
	switch evt.Type {
	case models.JobEventStarted:
		return sseStarted
	case models.JobEventCompleted:
		return sseDone
	case models.JobEventFailed:
		return sseError
	default:
		return sseProgress
	}
}

// Reveal file endpoint
func (api *API) revealFile(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := api.reveal(c.Request.Context(), req.Path); err != nil {
		api.logger.WithError(err).WithField("path", req.Path).Warn("Failed to reveal file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "reveal_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revealed": req.Path})
}

// Archived downloads endpoint
func (api *API) listArchive(c *gin.Context) {
	if api.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archiving is not enabled", "code": "archive_disabled"})
		return
	}

	ctx := c.Request.Context()
	objects, err := api.archive.List(ctx, c.Query("job_id"))
	if err != nil {
		metrics.RecordError("api", "storage_error")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": "storage_error"})
		return
	}

	items := make([]gin.H, 0, len(objects))
	for _, name := range objects {
		url, err := api.archive.GetURL(ctx, name)
		if err != nil {
			api.logger.WithError(err).WithField("object", name).Warn("Failed to presign archived object")
			continue
		}
		items = append(items, gin.H{"object": name, "url": url})
	}
	c.JSON(http.StatusOK, gin.H{"objects": items})
}

// Appearance settings endpoints
func (api *API) getSettings(c *gin.Context) {
	s, err := api.settings.Load(c.Request.Context())
	if err != nil {
		api.logger.WithError(err).Warn("Failed to load settings, using defaults")
	}
	c.JSON(http.StatusOK, s)
}

// saveSettings applies a partial record over the stored one.
func (api *API) saveSettings(c *gin.Context) {
	current, err := api.settings.Load(c.Request.Context())
	if err != nil {
		api.logger.WithError(err).Warn("Failed to load settings, starting from defaults")
	}

	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := json.Unmarshal(body, &current); err != nil {
		badRequest(c, err)
		return
	}

	current = settings.Normalize(current)
	if err := api.settings.Save(c.Request.Context(), current); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

func badRequest(c *gin.Context, err error) {
	metrics.RecordError("api", "bad_request")
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
}

// respondError maps service errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	metrics.RecordError("api", code)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func errorStatus(err error) (int, string) {
	var dlErr *downloader.Error
	switch {
	case errors.As(err, &dlErr):
		switch dlErr.Kind {
		case downloader.KindToolNotFound:
			return http.StatusServiceUnavailable, string(dlErr.Category)
		case downloader.KindMalformedOutput:
			return http.StatusUnprocessableEntity, dlErr.Kind.String()
		default:
			return http.StatusBadGateway, string(dlErr.Category)
		}
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, session.ErrEmptyURL),
		errors.Is(err, session.ErrNotAnalyzed),
		errors.Is(err, session.ErrInvalidSelection),
		errors.Is(err, session.ErrNoFormat):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
