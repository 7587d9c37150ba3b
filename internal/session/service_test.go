package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/cache"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/downloader"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/errmap"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/events"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

type fakeAnalyzer struct {
	info  *models.StreamInfo
	err   error
	calls int32
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, url string) (*models.StreamInfo, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakeDownloader struct {
	progress []models.ProgressEvent
	path     string
	err      error
	block    chan struct{}

	mu   sync.Mutex
	jobs []models.DownloadJob
}

func (f *fakeDownloader) Download(ctx context.Context, job models.DownloadJob, onProgress downloader.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	for _, evt := range f.progress {
		evt.JobID = job.ID
		onProgress(evt)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			// Shaped like the yt-dlp wrapper's cancellation error.
			return "", &downloader.Error{
				Kind:     downloader.KindToolFailure,
				Category: errmap.CategoryCancelled,
				Message:  "The operation was cancelled.",
				Err:      fmt.Errorf("yt-dlp interrupted: %w", ctx.Err()),
			}
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

func (f *fakeDownloader) lastJob() models.DownloadJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[len(f.jobs)-1]
}

type fakeArchiver struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeArchiver) Archive(ctx context.Context, jobID, filePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, filePath)
	return "downloads/" + jobID + "/clip.mp4", nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.JobEvent
}

func (f *fakePublisher) Publish(ctx context.Context, evt models.JobEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func sampleInfo() *models.StreamInfo {
	return &models.StreamInfo{
		Title:      "Sample Clip",
		WebpageURL: "https://example.com/watch?v=abc",
		Formats: []models.FormatEntry{
			{FormatID: "137", VCodec: "avc1", ACodec: "none", Height: 1080, TBR: 4000},
			{FormatID: "136", VCodec: "avc1", ACodec: "none", Height: 720, TBR: 2000},
			{FormatID: "140", VCodec: "none", ACodec: "mp4a", ABR: 128},
		},
	}
}

func sampleProgress() []models.ProgressEvent {
	return []models.ProgressEvent{
		{Phase: models.PhaseLabelVideo, PhaseIndex: models.PhaseVideo, Fraction: 0.5, DownloadedBytes: 500},
		{Phase: models.PhaseLabelVideo, PhaseIndex: models.PhaseVideo, Fraction: 1, DownloadedBytes: 1000},
	}
}

func newTestService(t *testing.T, a Analyzer, d Downloader, opts Options) *Service {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	svc := NewService(a, d, opts)
	t.Cleanup(svc.Close)
	return svc
}

func collect(t *testing.T, sub *events.Subscription) []models.JobEvent {
	t.Helper()
	var out []models.JobEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, evt)
			if events.IsTerminal(evt) {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out after %d events", len(out))
		}
	}
}

func eventTypes(evts []models.JobEvent) []string {
	types := make([]string, len(evts))
	for i, e := range evts {
		types[i] = e.Type
	}
	return types
}

func TestAnalyze_EmptyURL(t *testing.T) {
	svc := newTestService(t, &fakeAnalyzer{info: sampleInfo()}, &fakeDownloader{}, Options{})

	_, err := svc.Analyze(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyURL)
	assert.Equal(t, StatusIdle, svc.Snapshot().Status)
}

func TestAnalyze_PopulatesSelection(t *testing.T) {
	analyzer := &fakeAnalyzer{info: sampleInfo()}
	svc := newTestService(t, analyzer, &fakeDownloader{}, Options{})

	res, err := svc.Analyze(context.Background(), "  https://example.com/watch?v=abc \n")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Selection.Video, 2)
	require.Len(t, res.Selection.Audio, 1)
	assert.Equal(t, "137", res.Selection.Video[0].FormatID)
	assert.Equal(t, "140", res.Selection.BestAudioID)

	snap := svc.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.Equal(t, "https://example.com/watch?v=abc", snap.URL)
	assert.Nil(t, snap.Selected)
}

func TestAnalyze_Failure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &downloader.Error{
		Kind:     downloader.KindToolFailure,
		Category: errmap.CategoryUnavailable,
		Message:  "This video is unavailable.",
	}}
	svc := newTestService(t, analyzer, &fakeDownloader{}, Options{})

	_, err := svc.Analyze(context.Background(), "https://example.com/x")
	require.Error(t, err)

	snap := svc.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "This video is unavailable.", snap.Error)
	assert.Equal(t, "unavailable", snap.ErrorCode)
}

func TestAnalyze_UsesMetadataCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	defer c.Close()

	analyzer := &fakeAnalyzer{info: sampleInfo()}
	svc := newTestService(t, analyzer, &fakeDownloader{}, Options{Cache: c})

	first, err := svc.Analyze(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Analyze(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "Sample Clip", second.Info.Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&analyzer.calls))
}

func TestSelect(t *testing.T) {
	svc := newTestService(t, &fakeAnalyzer{info: sampleInfo()}, &fakeDownloader{}, Options{})

	_, err := svc.Select(0, false)
	assert.ErrorIs(t, err, ErrNotAnalyzed)

	_, err = svc.Analyze(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)

	_, err = svc.Select(5, false)
	assert.ErrorIs(t, err, ErrInvalidSelection)

	chosen, err := svc.Select(1, false)
	require.NoError(t, err)
	assert.Equal(t, "136", chosen.FormatID)

	spec, err := svc.Snapshot().FormatSpec()
	require.NoError(t, err)
	assert.Equal(t, "136+140", spec)

	_, err = svc.Select(0, true)
	require.NoError(t, err)
	spec, err = svc.Snapshot().FormatSpec()
	require.NoError(t, err)
	assert.Equal(t, "140", spec)
}

func TestDownload_Completes(t *testing.T) {
	dl := &fakeDownloader{progress: sampleProgress(), path: "/tmp/Sample Clip.mp4"}
	archiver := &fakeArchiver{}
	publisher := &fakePublisher{}
	svc := newTestService(t, &fakeAnalyzer{info: sampleInfo()}, dl, Options{
		Archiver:   archiver,
		Publishers: []Publisher{publisher},
	})

	ctx := context.Background()
	_, err := svc.Analyze(ctx, "https://example.com/watch?v=abc")
	require.NoError(t, err)
	_, err = svc.Select(0, false)
	require.NoError(t, err)

	sub := svc.Events().Subscribe(events.AllJobs)
	defer sub.Close()

	job, path, err := svc.Download(ctx, DownloadRequest{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/Sample Clip.mp4", path)
	assert.Equal(t, "137+140", job.FormatSpec)
	assert.Equal(t, "https://example.com/watch?v=abc", job.URL)
	assert.Equal(t, "Sample Clip", job.TitleHint)
	assert.False(t, job.AudioOnly)

	evts := collect(t, sub)
	assert.Equal(t, []string{
		models.JobEventStarted,
		models.JobEventProgress,
		models.JobEventProgress,
		models.JobEventCompleted,
	}, eventTypes(evts))
	for _, e := range evts {
		assert.Equal(t, job.ID, e.JobID)
	}
	assert.Equal(t, path, evts[3].Path)

	snap := svc.Snapshot()
	assert.Equal(t, StatusDone, snap.Status)
	assert.Equal(t, path, snap.LastPath)
	require.NotNil(t, snap.Progress)
	assert.Equal(t, 1.0, snap.Progress.Fraction)

	assert.Equal(t, []string{path}, archiver.paths)
	assert.Len(t, publisher.events, 4)

	analyzing, downloading := svc.Busy()
	assert.False(t, analyzing)
	assert.False(t, downloading)
}

func TestDownload_NeedsFormat(t *testing.T) {
	svc := newTestService(t, &fakeAnalyzer{info: sampleInfo()}, &fakeDownloader{}, Options{})

	_, _, err := svc.Download(context.Background(), DownloadRequest{})
	assert.ErrorIs(t, err, ErrNoFormat)

	_, _, err = svc.Download(context.Background(), DownloadRequest{FormatSpec: "18"})
	assert.ErrorIs(t, err, ErrNotAnalyzed)
}

func TestDownload_ExplicitRequest(t *testing.T) {
	dl := &fakeDownloader{path: "/out/a.m4a"}
	outDir := t.TempDir()
	svc := newTestService(t, &fakeAnalyzer{}, dl, Options{OutputDir: outDir})

	audio := true
	_, _, err := svc.Download(context.Background(), DownloadRequest{
		URL:        "https://example.com/a",
		FormatSpec: "140",
		AudioOnly:  &audio,
	})
	require.NoError(t, err)

	job := dl.lastJob()
	assert.Equal(t, "https://example.com/a", job.URL)
	assert.Equal(t, "140", job.FormatSpec)
	assert.Equal(t, outDir, job.OutputDir)
	assert.Equal(t, "download", job.TitleHint)
	assert.True(t, job.AudioOnly)
}

func TestDownload_Failure(t *testing.T) {
	dl := &fakeDownloader{err: &downloader.Error{
		Kind:     downloader.KindToolFailure,
		Category: errmap.CategoryRateLimited,
		Message:  "Too many requests. Please wait a few minutes and try again.",
	}}
	svc := newTestService(t, &fakeAnalyzer{}, dl, Options{})

	sub := svc.Events().Subscribe(events.AllJobs)
	defer sub.Close()

	_, _, err := svc.Download(context.Background(), DownloadRequest{URL: "https://example.com/a", FormatSpec: "18"})
	require.Error(t, err)

	evts := collect(t, sub)
	require.Len(t, evts, 2)
	last := evts[1]
	assert.Equal(t, models.JobEventFailed, last.Type)
	assert.Equal(t, "http_429", last.ErrorCode)
	assert.Equal(t, err.Error(), last.Error)

	snap := svc.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "http_429", snap.ErrorCode)
}

func TestStartDownload_RejectsSecondJob(t *testing.T) {
	dl := &fakeDownloader{block: make(chan struct{}), path: "/out/a.mp4"}
	svc := newTestService(t, &fakeAnalyzer{}, dl, Options{})
	req := DownloadRequest{URL: "https://example.com/a", FormatSpec: "18"}

	job, err := svc.StartDownload(context.Background(), req)
	require.NoError(t, err)
	sub := svc.Events().Subscribe(job.ID)

	_, err = svc.StartDownload(context.Background(), req)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, svc.Reset(), ErrBusy)

	close(dl.block)
	evts := collect(t, sub)
	require.NotEmpty(t, evts)
	assert.Equal(t, models.JobEventCompleted, evts[len(evts)-1].Type)

	assert.Eventually(t, func() bool {
		_, downloading := svc.Busy()
		return !downloading
	}, time.Second, 10*time.Millisecond)
	assert.NoError(t, svc.Reset())
}

func TestStartDownload_CancelledByClose(t *testing.T) {
	dl := &fakeDownloader{block: make(chan struct{})}
	svc := NewService(&fakeAnalyzer{}, dl, Options{OutputDir: t.TempDir()})

	_, err := svc.StartDownload(context.Background(), DownloadRequest{URL: "https://example.com/a", FormatSpec: "18"})
	require.NoError(t, err)

	svc.Close()

	snap := svc.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "cancelled", snap.ErrorCode)
}

type scriptLocator struct{ path string }

func (l scriptLocator) Locate(name string) string { return l.path }
func (l scriptLocator) IsBundled(name string) bool { return false }

func TestStartDownload_CancelStopsRealTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nsleep 10\n"), 0o755))
	ytdlp := downloader.NewYtDlp(scriptLocator{path: path}, config.DownloadConfig{}, nil)

	svc := NewService(&fakeAnalyzer{}, ytdlp, Options{OutputDir: t.TempDir()})
	_, err := svc.StartDownload(context.Background(), DownloadRequest{URL: "https://example.com/a", FormatSpec: "18"})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	svc.Close()
	assert.Less(t, time.Since(start), 5*time.Second)

	snap := svc.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "cancelled", snap.ErrorCode)
	assert.Equal(t, "The operation was cancelled.", snap.Error)
}

func TestDownload_RedisLockHeldElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.AcquireLock(context.Background(), downloadLockResource, "other-process", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	svc := newTestService(t, &fakeAnalyzer{}, &fakeDownloader{}, Options{Cache: c})
	req := DownloadRequest{URL: "https://example.com/a", FormatSpec: "18"}

	_, _, err = svc.Download(context.Background(), req)
	assert.ErrorIs(t, err, ErrBusy)

	_, downloading := svc.Busy()
	assert.False(t, downloading)

	require.NoError(t, c.ReleaseLock(context.Background(), downloadLockResource, "other-process"))
	_, _, err = svc.Download(context.Background(), req)
	assert.NoError(t, err)

	holder, err := c.LockHolder(context.Background(), downloadLockResource)
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestDownload_CachesProgress(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	defer c.Close()

	svc := newTestService(t, &fakeAnalyzer{}, &fakeDownloader{progress: sampleProgress()}, Options{Cache: c})

	job, _, err := svc.Download(context.Background(), DownloadRequest{URL: "https://example.com/a", FormatSpec: "18"})
	require.NoError(t, err)

	evt, err := c.GetJobProgress(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Equal(t, int64(1000), evt.DownloadedBytes)
}

func TestSetOutputDir(t *testing.T) {
	svc := newTestService(t, &fakeAnalyzer{}, &fakeDownloader{}, Options{})

	dir := t.TempDir() + "/nested/out"
	require.NoError(t, svc.SetOutputDir(dir))
	assert.Equal(t, dir, svc.OutputDir())

	require.NoError(t, svc.Reset())
	assert.Equal(t, dir, svc.OutputDir())
}

func TestReset_NewSessionID(t *testing.T) {
	svc := newTestService(t, &fakeAnalyzer{info: sampleInfo()}, &fakeDownloader{}, Options{})
	_, err := svc.Analyze(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)

	before := svc.Snapshot().ID
	require.NoError(t, svc.Reset())

	snap := svc.Snapshot()
	assert.NotEqual(t, before, snap.ID)
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, snap.Info)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"downloader", &downloader.Error{Category: errmap.CategoryGeoBlocked}, "geo_blocked"},
		{"busy", ErrBusy, "busy"},
		{"cancelled", context.Canceled, "cancelled"},
		{"cancelled downloader", &downloader.Error{Category: errmap.CategoryPassthrough, Err: fmt.Errorf("x: %w", context.Canceled)}, "cancelled"},
		{"other", errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestCompatWarning(t *testing.T) {
	s := Session{Selected: &models.SelectedFormat{FormatID: "401", CompatWarning: true}}
	assert.Equal(t, "This codec (VP9 / AV1 at 4K+) may not play on all Android devices.", s.CompatWarning())

	s.AudioMode = true
	assert.Empty(t, s.CompatWarning())
}

func TestByteCounter(t *testing.T) {
	c := newByteCounter()
	assert.Equal(t, int64(100), c.delta(models.ProgressEvent{PhaseIndex: 0, DownloadedBytes: 100}))
	assert.Equal(t, int64(50), c.delta(models.ProgressEvent{PhaseIndex: 0, DownloadedBytes: 150}))
	assert.Equal(t, int64(30), c.delta(models.ProgressEvent{PhaseIndex: 1, DownloadedBytes: 30}))
	assert.Equal(t, int64(20), c.delta(models.ProgressEvent{PhaseIndex: 0, DownloadedBytes: 20}))
}
