// Package pipeline drives an upload from receipt to a playable HLS stream.
//
// A job moves through Received, EncodingStream, ExtractingThumbnail and
// Finalizing to Completed, or to Failed from any non-terminal state. Stage
// failures are reported as *StageError values, which StatusCode and
// PublicMessage map to the HTTP response. The temporary input is removed once
// per job regardless of outcome, and a failed removal is only logged.
package pipeline
