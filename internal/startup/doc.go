// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads an optional .env file from the working directory and then
// the process environment. Real environment variables win over .env entries.
// Malformed numbers and durations fall back to their defaults with a warning;
// unknown values for VIDEO_MODE, THUMBNAIL_POLICY, NAME_STRATEGY and
// MAX_CONCURRENT_JOBS are configuration errors.
//
//   - PORT (default 5000), METRICS_PORT (9090), METRICS_ENABLED (true)
//   - UPLOADS_DIR, VIDEOS_DIR, THUMBNAILS_DIR, DATABASE_DIR
//   - FRONTEND_ORIGIN: comma-separated CORS origins, "*" allows any
//   - FFMPEG_PATH, FFPROBE_PATH, STAGE_TIMEOUT (30m)
//   - SEGMENT_DURATION (10s), VIDEO_MODE (auto|copy|reencode), SCALE_HEIGHT
//   - THUMBNAIL_OFFSET, THUMBNAIL_WIDTH, THUMBNAIL_HEIGHT, THUMBNAIL_POLICY
//   - NAME_STRATEGY (none|timestamp|counter|hash)
//   - MAX_UPLOAD_BYTES, MAX_CONCURRENT_JOBS
//   - LOG_STATIC_FILES, LOG_HEALTH_CHECKS
//
// # Roots
//
// [EnsureRoots] creates the uploads, videos, thumbnails and database
// directories and checks they are writable. It is idempotent and runs once
// before the server starts listening.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via -ldflags and exposed through
// [GetBuildInfo].
package startup
