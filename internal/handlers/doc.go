// Package handlers provides the HTTP handlers of the ingest service.
//
// It includes handlers for:
//   - Video upload and transcoding (POST /upload)
//   - Static delivery of playlists, segments and thumbnails
//   - Job ledger lookups
//   - Liveness, health and readiness checks, version and metrics
package handlers
