package metrics

// Label values shared with the rest of the application.
var (
	Volumes         = []string{"uploads", "videos", "thumbnails", "database", "unknown"}
	EngineOps       = []string{"probe", "stream", "thumbnail"}
	Stages          = []string{"receive", "encoding_stream", "extracting_thumbnail", "finalizing"}
	FailureKinds    = []string{"input_missing", "upload_failure", "directory_creation", "encoding_stream", "thumbnail_extraction"}
	RejectedReasons = []string{"missing", "too_large", "error"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"completed", "failed"} {
		JobsTotal.WithLabelValues(status)
	}
	for _, kind := range FailureKinds {
		JobFailuresTotal.WithLabelValues(kind)
	}
	for _, reason := range RejectedReasons {
		UploadRejectedTotal.WithLabelValues(reason)
	}
	for _, stage := range Stages {
		StageDuration.WithLabelValues(stage)
	}

	for _, op := range EngineOps {
		for _, status := range []string{"success", "error", "timeout"} {
			EngineInvocationsTotal.WithLabelValues(op, status)
		}
	}
	for _, mode := range []string{"copy", "reencode"} {
		StreamModeTotal.WithLabelValues(mode)
	}

	fsOps := []string{"stat", "remove"}
	for _, vol := range Volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"initialize_schema", "create_job", "update_job", "get_job", "list_jobs", "count_jobs"} {
		LedgerQueryTotal.WithLabelValues(op, "success")
		LedgerQueryTotal.WithLabelValues(op, "error")
		LedgerQueryDuration.WithLabelValues(op)
	}
}
