// Package main is the entry point of the HLS ingest service.
//
// The service accepts a video upload on POST /upload, converts it into an HLS
// playlist with media segments plus a JPEG thumbnail using FFmpeg, and answers
// with the URLs of both artifacts. The generated files are served from
// /videos/ and /thumbnails/.
//
// # Application Lifecycle
//
//  1. Configuration: environment variables and an optional .env file
//  2. Directory setup: uploads, videos, thumbnails and database roots are
//     created and checked for write access
//  3. Job ledger: the SQLite ledger is opened and jobs left unfinished by a
//     previous run are marked failed
//  4. Engine check: ffmpeg and ffprobe versions are logged
//  5. HTTP servers: the main server and, optionally, the metrics server
//  6. Graceful shutdown on SIGINT/SIGTERM
//
// # HTTP Server
//
//  1. Main Server (default port 5000):
//     - POST /upload
//     - GET /videos/{baseName}/index.m3u8 and segments
//     - GET /thumbnails/{baseName}.jpg
//     - GET /api/jobs, GET /api/jobs/{id}
//     - GET /, /livez, /healthz, /readyz, /version
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//
// # Graceful Shutdown
//
//  1. Stop accepting requests and wait for in-flight uploads (30s)
//  2. Kill remaining engine processes
//  3. Stop the metrics collector and metrics server
//  4. Close the job ledger
//
// # Build Requirements
//
// CGO is required for SQLite. FFmpeg and ffprobe must be installed at run time.
//
//	go build -o hls-ingest ./cmd/hls-ingest
package main
