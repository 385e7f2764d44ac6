// Package middleware provides HTTP middleware for the ingest service.
//
// It includes:
//   - Request logging in W3C Extended Log Format, with the job id of uploads
//   - Prometheus request metrics labelled by route template
//   - gzip compression for JSON and playlist responses
//   - CORS for the configured front-end origins
package middleware
