package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/downloader"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/errmap"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/events"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/formats"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/metrics"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/platform"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/tracing"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

const (
	downloadLockResource = "download"
	defaultMetadataTTL   = 10 * time.Minute
	defaultLockTTL       = 6 * time.Hour
	progressTTL          = time.Hour
)

// Analyzer fetches stream metadata.
type Analyzer interface {
	Analyze(ctx context.Context, url string) (*models.StreamInfo, error)
}

// Downloader runs one download job to completion.
type Downloader interface {
	Download(ctx context.Context, job models.DownloadJob, onProgress downloader.ProgressFunc) (string, error)
}

// Cache is the subset of the Redis cache the service uses.
type Cache interface {
	GetMetadata(ctx context.Context, url string) (*models.StreamInfo, error)
	SetMetadata(ctx context.Context, url string, info *models.StreamInfo, ttl time.Duration) error
	SetJobProgress(ctx context.Context, evt models.ProgressEvent, ttl time.Duration) error
	AcquireLock(ctx context.Context, resource, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource, token string) error
}

// Archiver copies finished files to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, jobID, filePath string) (string, error)
}

// Publisher mirrors job events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, evt models.JobEvent) error
}

// Options holds the optional collaborators. Leave a field nil to disable it.
type Options struct {
	Cache       Cache
	MetadataTTL time.Duration
	LockTTL     time.Duration
	Archiver    Archiver
	Publishers  []Publisher
	Broker      *events.Broker
	OutputDir   string
	Logger      *logging.Logger
}

// AnalyzeResult is returned by Analyze.
type AnalyzeResult struct {
	Info      *models.StreamInfo `json:"info"`
	Selection formats.Selection  `json:"selection"`
	Cached    bool               `json:"cached"`
}

// DownloadRequest starts a download. Empty fields default from the
// session: the analyzed URL and title, the selected format, the output
// folder and the audio mode.
type DownloadRequest struct {
	URL        string `json:"url"`
	FormatSpec string `json:"formatSpec"`
	OutputDir  string `json:"outputDir"`
	TitleHint  string `json:"titleHint"`
	AudioOnly  *bool  `json:"isAudio"`
}

// Service enforces one in-flight analyze and one in-flight download.
type Service struct {
	analyzer   Analyzer
	downloader Downloader
	opts       Options
	logger     *logging.Logger
	broker     *events.Broker

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.Mutex
	state       Session
	analyzing   bool
	downloading bool

	now   func() time.Time
	newID func() string
}

// NewService creates a session service
func NewService(analyzer Analyzer, dl Downloader, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Broker == nil {
		opts.Broker = events.NewBroker()
	}
	if opts.MetadataTTL <= 0 {
		opts.MetadataTTL = defaultMetadataTTL
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		analyzer:   analyzer,
		downloader: dl,
		opts:       opts,
		broker:     opts.Broker,
		baseCtx:    ctx,
		cancel:     cancel,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	s.state = Session{
		ID:        s.newID(),
		Status:    StatusIdle,
		OutputDir: opts.OutputDir,
		UpdatedAt: s.now(),
	}
	s.logger = opts.Logger.WithSessionID(s.state.ID)
	return s
}

// Events returns the broker job events are published on.
func (s *Service) Events() *events.Broker {
	return s.broker
}

// Snapshot returns a copy of the current session.
func (s *Service) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Busy reports whether an analyze or download is running.
func (s *Service) Busy() (analyzing, downloading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzing, s.downloading
}

// OutputDir returns the folder downloads go to.
func (s *Service) OutputDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.OutputDir
}

// SetOutputDir creates dir and makes it the download target.
func (s *Service) SetOutputDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if err := platform.EnsureDir(dir); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.OutputDir = dir
	s.touch()
	s.mu.Unlock()
	return nil
}

// Reset clears the analyzed stream and selection. The output folder is kept.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analyzing || s.downloading {
		return ErrBusy
	}
	s.state = Session{
		ID:        s.newID(),
		Status:    StatusIdle,
		OutputDir: s.state.OutputDir,
		UpdatedAt: s.now(),
	}
	s.logger = s.opts.Logger.WithSessionID(s.state.ID)
	return nil
}

// Analyze fetches metadata for url, serving from the cache when possible,
// and derives the format choice lists.
func (s *Service) Analyze(ctx context.Context, rawURL string) (*AnalyzeResult, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return nil, ErrEmptyURL
	}

	s.mu.Lock()
	if s.analyzing {
		s.mu.Unlock()
		metrics.RecordError("session", "busy")
		return nil, ErrBusy
	}
	s.analyzing = true
	if !s.downloading {
		s.state.Status = StatusAnalyzing
	}
	s.state.Error, s.state.ErrorCode = "", ""
	s.touch()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.analyzing = false
		s.mu.Unlock()
	}()

	span, ctx := tracing.StartSpan(ctx, "session.analyze")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "url", url)

	start := s.now()
	info, cached := s.cachedMetadata(ctx, url)
	if info == nil {
		var err error
		info, err = s.analyzer.Analyze(ctx, url)
		if err != nil {
			tracing.LogError(span, err)
			metrics.RecordAnalyze("failed", s.now().Sub(start).Seconds())
			code := ErrorCode(err)
			metrics.RecordToolError("analyze", code)
			s.logger.WithError(err).WithField("url", url).Warn("Analyze failed")
			s.fail(err, code, false)
			return nil, err
		}
		s.storeMetadata(ctx, url, info)
	}

	status := "success"
	if cached {
		status = "cached"
	}
	metrics.RecordAnalyze(status, s.now().Sub(start).Seconds())
	tracing.SetTag(span, "cached", cached)

	sel := formats.Select(info)

	s.mu.Lock()
	s.state.URL = url
	s.state.Info = info
	s.state.Selection = &sel
	s.state.Selected = nil
	s.state.AudioMode = false
	if !s.downloading {
		s.state.Status = StatusReady
	}
	s.touch()
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"url":    url,
		"title":  info.Title,
		"video":  len(sel.Video),
		"audio":  len(sel.Audio),
		"cached": cached,
	}).Info("Stream analyzed")

	return &AnalyzeResult{Info: info, Selection: sel, Cached: cached}, nil
}

// Select picks entry index of the video or audio list.
func (s *Service) Select(index int, audio bool) (models.SelectedFormat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Selection == nil {
		return models.SelectedFormat{}, ErrNotAnalyzed
	}
	chosen, ok := s.state.Selection.Pick(index, audio)
	if !ok {
		return models.SelectedFormat{}, ErrInvalidSelection
	}
	s.state.Selected = &chosen
	s.state.AudioMode = audio
	s.touch()
	return chosen, nil
}

// Download runs a job in the caller's goroutine and returns the final path.
// Cancelling ctx kills the downloader.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (*models.DownloadJob, string, error) {
	job, err := s.resolve(req)
	if err != nil {
		return nil, "", err
	}
	release, err := s.begin(ctx, job)
	if err != nil {
		return nil, "", err
	}
	defer release()

	path, err := s.run(ctx, job)
	return &job, path, err
}

// StartDownload launches a job in the background and returns at once.
// Progress and the outcome are delivered through Events.
func (s *Service) StartDownload(ctx context.Context, req DownloadRequest) (*models.DownloadJob, error) {
	job, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	release, err := s.begin(ctx, job)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		s.run(s.baseCtx, job)
	}()
	return &job, nil
}

// Close cancels a running background download and waits for it.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
	s.broker.Close()
}

func (s *Service) resolve(req DownloadRequest) (models.DownloadJob, error) {
	s.mu.Lock()
	state := s.state.clone()
	s.mu.Unlock()

	audio := state.AudioMode
	if req.AudioOnly != nil {
		audio = *req.AudioOnly
	}

	spec := strings.TrimSpace(req.FormatSpec)
	if spec == "" {
		derived, err := state.FormatSpec()
		if err != nil {
			return models.DownloadJob{}, err
		}
		spec = derived
		audio = state.AudioMode
	}

	url := strings.TrimSpace(req.URL)
	if url == "" && state.Info != nil {
		url = state.Info.SourceURL()
	}
	if url == "" {
		url = state.URL
	}
	if url == "" {
		return models.DownloadJob{}, ErrNotAnalyzed
	}

	dir := strings.TrimSpace(req.OutputDir)
	if dir == "" {
		dir = state.OutputDir
	}
	if dir == "" {
		def, err := platform.DefaultOutputDir()
		if err != nil {
			return models.DownloadJob{}, err
		}
		dir = def
	}

	title := strings.TrimSpace(req.TitleHint)
	if title == "" && state.Info != nil {
		title = state.Info.Title
	}
	if title == "" {
		title = "download"
	}

	return models.DownloadJob{
		ID:         s.newID(),
		URL:        url,
		FormatSpec: spec,
		OutputDir:  dir,
		TitleHint:  title,
		AudioOnly:  audio,
		CreatedAt:  s.now(),
	}, nil
}

// begin takes the download guard, plus the Redis lock when configured so
// two processes on one machine cannot download at once.
func (s *Service) begin(ctx context.Context, job models.DownloadJob) (func(), error) {
	s.mu.Lock()
	if s.downloading {
		s.mu.Unlock()
		metrics.RecordError("session", "busy")
		return nil, ErrBusy
	}
	s.downloading = true
	s.mu.Unlock()

	unlock := func() {
		s.mu.Lock()
		s.downloading = false
		s.mu.Unlock()
	}

	if s.opts.Cache == nil {
		return unlock, nil
	}

	ok, err := s.opts.Cache.AcquireLock(ctx, downloadLockResource, job.ID, s.opts.LockTTL)
	if err != nil {
		// Redis trouble must not block local use; the in-process guard holds.
		s.logger.WithError(err).Warn("Failed to take download lock, continuing without it")
		return unlock, nil
	}
	if !ok {
		unlock()
		metrics.RecordError("session", "busy")
		return nil, ErrBusy
	}

	return func() {
		if err := s.opts.Cache.ReleaseLock(context.Background(), downloadLockResource, job.ID); err != nil {
			s.logger.WithError(err).Warn("Failed to release download lock")
		}
		unlock()
	}, nil
}

func (s *Service) run(ctx context.Context, job models.DownloadJob) (string, error) {
	span, ctx := tracing.StartSpan(ctx, "session.download")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "job.id", job.ID)
	tracing.SetTag(span, "job.mode", job.Mode())
	tracing.SetTag(span, "job.format", job.FormatSpec)

	log := s.logger.WithJobID(job.ID)

	s.mu.Lock()
	s.state.Job = &job
	s.state.Status = StatusDownloading
	s.state.Progress = nil
	s.state.LastPath = ""
	s.state.Error, s.state.ErrorCode = "", ""
	s.touch()
	s.mu.Unlock()

	metrics.RecordDownloadStarted(job.Mode())
	log.LogJobEvent(job.ID, models.JobEventStarted, models.JobStatusDownloading, map[string]interface{}{
		"url":         job.URL,
		"format_spec": job.FormatSpec,
		"output_dir":  job.OutputDir,
	})
	s.emit(ctx, models.JobEvent{Type: models.JobEventStarted, JobID: job.ID})

	counter := newByteCounter()
	start := s.now()

	path, err := s.downloader.Download(ctx, job, func(evt models.ProgressEvent) {
		s.mu.Lock()
		p := evt
		s.state.Progress = &p
		s.mu.Unlock()

		metrics.RecordDownloadProgress(evt.PhaseIndex, counter.delta(evt))
		if s.opts.Cache != nil {
			if err := s.opts.Cache.SetJobProgress(ctx, evt, progressTTL); err != nil {
				log.WithError(err).Debug("Failed to cache progress")
			}
		}
		s.emit(ctx, models.JobEvent{Type: models.JobEventProgress, JobID: job.ID, Progress: &p})
	})

	elapsed := s.now().Sub(start).Seconds()

	// The outcome must still be reported when ctx was cancelled.
	ctx = context.WithoutCancel(ctx)

	if err != nil {
		code := ErrorCode(err)
		tracing.LogError(span, err)
		metrics.RecordDownloadCompleted(job.Mode(), models.JobStatusFailed, elapsed)
		metrics.RecordToolError("download", code)

		s.fail(err, code, true)
		log.LogJobEvent(job.ID, models.JobEventFailed, models.JobStatusFailed, map[string]interface{}{
			"error":      err.Error(),
			"error_code": code,
		})
		s.emit(ctx, models.JobEvent{Type: models.JobEventFailed, JobID: job.ID, Error: err.Error(), ErrorCode: code})
		return "", err
	}

	if path != "" && s.opts.Archiver != nil {
		s.archive(ctx, job, path)
	}

	metrics.RecordDownloadCompleted(job.Mode(), models.JobStatusCompleted, elapsed)

	s.mu.Lock()
	s.state.Status = StatusDone
	s.state.LastPath = path
	s.touch()
	s.mu.Unlock()

	log.LogJobEvent(job.ID, models.JobEventCompleted, models.JobStatusCompleted, map[string]interface{}{
		"path":     path,
		"duration": elapsed,
	})
	s.emit(ctx, models.JobEvent{Type: models.JobEventCompleted, JobID: job.ID, Path: path})
	return path, nil
}

func (s *Service) archive(ctx context.Context, job models.DownloadJob, path string) {
	start := s.now()
	object, err := s.opts.Archiver.Archive(ctx, job.ID, path)
	elapsed := s.now().Sub(start)
	log := s.logger.WithJobID(job.ID)

	if err != nil {
		metrics.RecordStorageOperation("archive", "failed", elapsed.Seconds())
		log.WithError(err).WithField("path", path).Warn("Failed to archive download")
		return
	}
	metrics.RecordStorageOperation("archive", "success", elapsed.Seconds())
	log.WithField("object", object).Info("Download archived")
}

func (s *Service) emit(ctx context.Context, evt models.JobEvent) {
	evt.Timestamp = s.now()
	s.broker.Publish(evt)
	for _, p := range s.opts.Publishers {
		if err := p.Publish(ctx, evt); err != nil {
			s.logger.WithJobID(evt.JobID).WithError(err).Warn("Failed to publish job event")
		}
	}
}

// fail records err. A failed analyze leaves a running download's status alone.
func (s *Service) fail(err error, code string, download bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = err.Error()
	s.state.ErrorCode = code
	if download || !s.downloading {
		s.state.Status = StatusFailed
	}
	s.touch()
}

func (s *Service) cachedMetadata(ctx context.Context, url string) (*models.StreamInfo, bool) {
	if s.opts.Cache == nil {
		return nil, false
	}
	info, err := s.opts.Cache.GetMetadata(ctx, url)
	if err != nil {
		s.logger.WithError(err).Warn("Metadata cache read failed")
	}
	hit := err == nil && info != nil
	metrics.RecordCacheAccess("metadata", hit)
	if !hit {
		return nil, false
	}
	return info, true
}

func (s *Service) storeMetadata(ctx context.Context, url string, info *models.StreamInfo) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.SetMetadata(ctx, url, info, s.opts.MetadataTTL); err != nil {
		s.logger.WithError(err).Warn("Metadata cache write failed")
	}
}

// touch must be called with mu held.
func (s *Service) touch() {
	s.state.UpdatedAt = s.now()
}

// ErrorCode maps err to the short code used in events, metrics and API
// responses.
func ErrorCode(err error) string {
	var dlErr *downloader.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return string(errmap.CategoryCancelled)
	case errors.As(err, &dlErr):
		return string(dlErr.Category)
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return string(errmap.CategoryUnknown)
	}
}
