package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"hls-ingest/internal/transcoder"
	"hls-ingest/internal/upload"
)

// Kind classifies a pipeline failure.
type Kind string

// Failure kinds.
const (
	KindInputMissing        Kind = "input_missing"
	KindUploadFailure       Kind = "upload_failure"
	KindDirectoryCreation   Kind = "directory_creation"
	KindEncodingStream      Kind = "encoding_stream"
	KindThumbnailExtraction Kind = "thumbnail_extraction"
)

// Public messages returned to clients.
const (
	MsgNoFile          = "No file uploaded"
	MsgTooLarge        = "File too large"
	MsgServerError     = "Server error during upload"
	MsgConversion      = "Video conversion failed"
	MsgThumbnailFailed = "Thumbnail generation failed"
)

// StageError is a failure of one pipeline stage.
type StageError struct {
	Kind       Kind
	Stage      Status
	Diagnostic string
	Err        error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed during %s", e.Kind, e.Stage)
	}
	return fmt.Sprintf("%s failed during %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func newStageError(kind Kind, stage Status, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Diagnostic: diagnostic(err), Err: err}
}

// diagnostic prefers the engine's own output over the Go error text.
func diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var engineErr *transcoder.EngineError
	if errors.As(err, &engineErr) && engineErr.Diagnostic != "" {
		return engineErr.Diagnostic
	}
	return err.Error()
}

// StatusCode maps a pipeline error to an HTTP status code.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, upload.ErrUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	var se *StageError
	if errors.As(err, &se) && se.Kind == KindInputMissing {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-facing message for a pipeline error.
// Diagnostics are never exposed.
func PublicMessage(err error) string {
	if errors.Is(err, upload.ErrUploadTooLarge) {
		return MsgTooLarge
	}
	var se *StageError
	if !errors.As(err, &se) {
		return MsgServerError
	}
	switch se.Kind {
	case KindInputMissing:
		return MsgNoFile
	case KindEncodingStream:
		return MsgConversion
	case KindThumbnailExtraction:
		return MsgThumbnailFailed
	default:
		return MsgServerError
	}
}
