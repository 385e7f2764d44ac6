// Package transcoder drives the external media engine (FFmpeg) that turns an
// uploaded file into an HLS stream and a thumbnail.
//
// Engine arguments are produced by typed command values (StreamCommand,
// ThumbnailCommand, ProbeCommand) that validate their options before
// serialising them. Processes are executed through a Runner so the engine can
// be replaced in tests; ExecRunner is the production implementation and keeps
// track of live processes so they can be killed on shutdown.
//
// Every invocation is bounded by the configured stage timeout.
package transcoder
