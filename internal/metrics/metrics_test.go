package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHTTPRequest(t *testing.T) {
	// Reset metrics
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/v1/analyze", "200", 0.123)

	counter := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/analyze", "200"))
	if counter != 1.0 {
		t.Errorf("Expected counter to be 1.0, got %f", counter)
	}
}

func TestRecordAnalyze(t *testing.T) {
	AnalyzeTotal.Reset()

	RecordAnalyze("success", 1.5)
	RecordAnalyze("success", 0.5)
	RecordAnalyze("cached", 0)

	if v := testutil.ToFloat64(AnalyzeTotal.WithLabelValues("success")); v != 2.0 {
		t.Errorf("Expected success counter to be 2.0, got %f", v)
	}
	if v := testutil.ToFloat64(AnalyzeTotal.WithLabelValues("cached")); v != 1.0 {
		t.Errorf("Expected cached counter to be 1.0, got %f", v)
	}
}

func TestDownloadLifecycle(t *testing.T) {
	DownloadsStartedTotal.Reset()
	DownloadsCompletedTotal.Reset()
	DownloadsInProgress.Set(0)

	RecordDownloadStarted("video")
	RecordDownloadStarted("audio")

	if v := testutil.ToFloat64(DownloadsInProgress); v != 2.0 {
		t.Errorf("Expected 2 downloads in progress, got %f", v)
	}

	RecordDownloadCompleted("video", "completed", 42)
	RecordDownloadCompleted("audio", "failed", 3)

	if v := testutil.ToFloat64(DownloadsInProgress); v != 0 {
		t.Errorf("Expected no downloads in progress, got %f", v)
	}
	if v := testutil.ToFloat64(DownloadsCompletedTotal.WithLabelValues("video", "completed")); v != 1.0 {
		t.Errorf("Expected completed video counter to be 1.0, got %f", v)
	}
	if v := testutil.ToFloat64(DownloadsCompletedTotal.WithLabelValues("audio", "failed")); v != 1.0 {
		t.Errorf("Expected failed audio counter to be 1.0, got %f", v)
	}
	if v := testutil.ToFloat64(DownloadPhase); v != -1 {
		t.Errorf("Expected idle phase -1, got %f", v)
	}
}

func TestRecordDownloadProgress(t *testing.T) {
	DownloadBytesTotal.Reset()

	RecordDownloadProgress(0, 1024)
	RecordDownloadProgress(0, 2048)
	RecordDownloadProgress(1, 0)

	if v := testutil.ToFloat64(DownloadBytesTotal.WithLabelValues("video")); v != 3072 {
		t.Errorf("Expected 3072 video bytes, got %f", v)
	}
	if v := testutil.ToFloat64(DownloadPhase); v != 1 {
		t.Errorf("Expected phase 1, got %f", v)
	}
}

func TestPhaseName(t *testing.T) {
	tests := map[int]string{0: "video", 1: "audio", 2: "merge", 7: "unknown"}
	for idx, want := range tests {
		if got := PhaseName(idx); got != want {
			t.Errorf("PhaseName(%d) = %q, want %q", idx, got, want)
		}
	}
}

func TestUpdateToolAvailability(t *testing.T) {
	UpdateToolAvailability("yt-dlp", true)
	UpdateToolAvailability("ffmpeg", false)

	if v := testutil.ToFloat64(ToolAvailable.WithLabelValues("yt-dlp")); v != 1 {
		t.Errorf("Expected yt-dlp available, got %f", v)
	}
	if v := testutil.ToFloat64(ToolAvailable.WithLabelValues("ffmpeg")); v != 0 {
		t.Errorf("Expected ffmpeg unavailable, got %f", v)
	}
}

func TestRecordToolError(t *testing.T) {
	ToolErrorsTotal.Reset()

	RecordToolError("download", "http_429")

	if v := testutil.ToFloat64(ToolErrorsTotal.WithLabelValues("download", "http_429")); v != 1 {
		t.Errorf("Expected 1 tool error, got %f", v)
	}
}

func TestRecordStorageOperation(t *testing.T) {
	StorageOperationsTotal.Reset()

	RecordStorageOperation("archive", "success", 1.234)

	counter := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("archive", "success"))
	if counter != 1.0 {
		t.Errorf("Expected storage operations counter to be 1.0, got %f", counter)
	}
}

func TestRecordCacheAccess(t *testing.T) {
	CacheHitsTotal.Reset()
	CacheMissesTotal.Reset()

	RecordCacheAccess("metadata", true)
	RecordCacheAccess("metadata", true)
	RecordCacheAccess("metadata", false)

	hits := testutil.ToFloat64(CacheHitsTotal.WithLabelValues("metadata"))
	if hits != 2.0 {
		t.Errorf("Expected cache hits to be 2.0, got %f", hits)
	}

	misses := testutil.ToFloat64(CacheMissesTotal.WithLabelValues("metadata"))
	if misses != 1.0 {
		t.Errorf("Expected cache misses to be 1.0, got %f", misses)
	}
}

func TestRecordError(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("session", "busy")
	RecordError("session", "busy")

	errors := testutil.ToFloat64(ErrorsTotal.WithLabelValues("session", "busy"))
	if errors != 2.0 {
		t.Errorf("Expected error counter to be 2.0, got %f", errors)
	}
}
