package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_ingest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_ingest_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Upload metrics
var (
	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_ingest_upload_bytes_total",
			Help: "Total number of bytes persisted from uploads",
		},
	)

	UploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_ingest_upload_size_bytes",
			Help:    "Size of persisted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8), // 1MB .. 16GB
		},
	)

	UploadRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_upload_rejected_total",
			Help: "Total number of uploads rejected before a job was created",
		},
		[]string{"reason"}, // "missing", "too_large", "invalid_name", "error"
	)
)

// Job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_jobs_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status"}, // "completed", "failed"
	)

	JobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_job_failures_total",
			Help: "Total number of failed jobs by failure kind",
		},
		[]string{"kind"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_ingest_jobs_in_progress",
			Help: "Number of jobs currently between receipt and a terminal status",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_ingest_job_duration_seconds",
			Help:    "Time from job creation to terminal status",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_ingest_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"},
	)

	NamespaceLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_ingest_namespace_lock_wait_seconds",
			Help:    "Time a job waited for another job using the same base name",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 60, 300},
		},
	)

	CleanupFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_ingest_cleanup_failures_total",
			Help: "Total number of temporary inputs that could not be removed",
		},
	)

	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hls_ingest_ledger_jobs",
			Help: "Number of jobs recorded in the ledger by status",
		},
		[]string{"status"},
	)
)

// Engine metrics
var (
	EngineInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_engine_invocations_total",
			Help: "Total number of media engine invocations",
		},
		[]string{"operation", "status"}, // status: "success", "error", "timeout"
	)

	EngineProcessesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_ingest_engine_processes_active",
			Help: "Number of media engine processes currently running",
		},
	)

	StreamModeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_stream_mode_total",
			Help: "Segmented stream encodes by video mode",
		},
		[]string{"mode"}, // "copy", "reencode"
	)
)

// Ledger metrics
var (
	LedgerQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_ledger_queries_total",
			Help: "Total number of job ledger queries",
		},
		[]string{"operation", "status"},
	)

	LedgerQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_ingest_ledger_query_duration_seconds",
			Help:    "Job ledger query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_ingest_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by root and operation",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by root and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after stale NFS handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_ingest_filesystem_stale_errors_total",
			Help: "Stale NFS file handle errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Runtime metrics
var (
	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_ingest_go_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_ingest_go_memory_sys_bytes",
			Help: "Total bytes of memory obtained from the OS",
		},
	)

	RootFreeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hls_ingest_root_free_bytes",
			Help: "Free bytes available on the filesystem holding each root",
		},
		[]string{"volume"},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hls_ingest_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
