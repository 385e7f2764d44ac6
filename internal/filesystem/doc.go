/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

The uploads, videos and thumbnails roots are commonly network mounts. This
package wraps os.Stat and os.Remove so that transient ESTALE errors (errno 116)
are retried with exponential backoff instead of failing a job's cleanup or a
static file lookup.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	if err := filesystem.RemoveWithRetry(inputPath, filesystem.DefaultRetryConfig()); err != nil {
	    logging.Warn("cleanup failed: %v", err)
	}

Only ESTALE triggers retries; every other error is returned immediately.
Defaults: 3 retries, 50ms initial backoff, 500ms cap.

Metrics are reported through an [Observer] installed with [SetObserver];
volume labels come from a [VolumeResolver] installed with
[SetDefaultVolumeResolver].
*/
package filesystem
