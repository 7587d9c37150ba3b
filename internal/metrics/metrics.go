package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hdmsp_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Analyze Metrics
	AnalyzeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_analyze_total",
			Help: "Total number of metadata fetches",
		},
		[]string{"status"},
	)

	AnalyzeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hdmsp_analyze_duration_seconds",
			Help:    "Metadata fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		},
	)

	// Download Metrics
	DownloadsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_downloads_started_total",
			Help: "Total number of downloads started",
		},
		[]string{"mode"},
	)

	DownloadsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_downloads_completed_total",
			Help: "Total number of finished downloads",
		},
		[]string{"mode", "status"},
	)

	DownloadsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hdmsp_downloads_in_progress",
			Help: "Number of downloads currently running",
		},
	)

	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hdmsp_download_duration_seconds",
			Help:    "Download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		},
		[]string{"mode"},
	)

	DownloadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_download_bytes_total",
			Help: "Bytes fetched per download phase",
		},
		[]string{"phase"},
	)

	DownloadPhase = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hdmsp_download_phase",
			Help: "Phase index of the running download (0 video, 1 audio, 2 merge, -1 idle)",
		},
	)

	// Tool Metrics
	ToolAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hdmsp_tool_available",
			Help: "Whether an external tool answered its version probe",
		},
		[]string{"tool"},
	)

	ToolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_tool_errors_total",
			Help: "Tool failures by operation and humanized category",
		},
		[]string{"operation", "category"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_storage_operations_total",
			Help: "Total number of archive storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hdmsp_storage_operation_duration_seconds",
			Help:    "Archive storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdmsp_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordAnalyze records a metadata fetch
func RecordAnalyze(status string, duration float64) {
	AnalyzeTotal.WithLabelValues(status).Inc()
	AnalyzeDuration.Observe(duration)
}

// RecordDownloadStarted records a download start
func RecordDownloadStarted(mode string) {
	DownloadsStartedTotal.WithLabelValues(mode).Inc()
	DownloadsInProgress.Inc()
}

// RecordDownloadCompleted records a download end
func RecordDownloadCompleted(mode, status string, duration float64) {
	DownloadsCompletedTotal.WithLabelValues(mode, status).Inc()
	DownloadDuration.WithLabelValues(mode).Observe(duration)
	DownloadsInProgress.Dec()
	DownloadPhase.Set(-1)
}

// RecordDownloadProgress tracks the active phase and bytes moved since
// the previous sample of the same phase.
func RecordDownloadProgress(phaseIndex int, deltaBytes int64) {
	DownloadPhase.Set(float64(phaseIndex))
	if deltaBytes > 0 {
		DownloadBytesTotal.WithLabelValues(PhaseName(phaseIndex)).Add(float64(deltaBytes))
	}
}

// PhaseName returns the metric label for a phase index.
func PhaseName(phaseIndex int) string {
	switch phaseIndex {
	case 0:
		return "video"
	case 1:
		return "audio"
	case 2:
		return "merge"
	default:
		return "unknown"
	}
}

// UpdateToolAvailability records the outcome of a tool probe
func UpdateToolAvailability(tool string, available bool) {
	v := 0.0
	if available {
		v = 1
	}
	ToolAvailable.WithLabelValues(tool).Set(v)
}

// RecordToolError records a humanized tool failure
func RecordToolError(operation, category string) {
	ToolErrorsTotal.WithLabelValues(operation, category).Inc()
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
