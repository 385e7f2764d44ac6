// Package metrics provides Prometheus instrumentation for the ingest service.
//
// All metrics are prefixed with "hls_ingest_" and registered with the
// default registry through promauto. Mount promhttp.Handler() on the metrics
// server to expose them.
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests
//   - Uploads: bytes persisted, upload sizes, rejected uploads by reason
//   - Jobs: terminal statuses, failure kinds, stage durations, jobs in
//     progress, namespace lock waits, cleanup failures
//   - Engine: media engine invocations by operation and outcome, running
//     processes, stream encodes by video mode
//   - Ledger: job ledger query counts and durations, jobs by status
//   - Filesystem: stat/remove durations and stale-handle retries per root
//   - Runtime: heap usage and free space of each root
//
// # Collector
//
// [Collector] periodically reads job counts from a [StatsProvider] (the job
// ledger), free space of the configured roots and Go memory statistics:
//
//	collector := metrics.NewCollector(ledger, volumes, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Failure ratio by kind:
//
//	sum(rate(hls_ingest_job_failures_total[1h])) by (kind) / sum(rate(hls_ingest_jobs_total[1h]))
//
// P95 stream encode time:
//
//	histogram_quantile(0.95, sum(rate(hls_ingest_stage_duration_seconds_bucket{stage="encoding_stream"}[1h])) by (le))
package metrics
