package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an UploadJob.
type Status string

// Job states in pipeline order.
const (
	StatusReceived            Status = "received"
	StatusEncodingStream      Status = "encoding_stream"
	StatusExtractingThumbnail Status = "extracting_thumbnail"
	StatusFinalizing          Status = "finalizing"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
)

// ErrInvalidTransition is returned when a job is moved backward or out of a
// terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")

var statusRank = map[Status]int{
	StatusReceived:            0,
	StatusEncodingStream:      1,
	StatusExtractingThumbnail: 2,
	StatusFinalizing:          3,
	StatusCompleted:           4,
	StatusFailed:              4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether s is Completed or Failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Failure records why a job failed.
type Failure struct {
	Stage   Status
	Kind    Kind
	Message string
}

// UploadJob is one upload moving through the pipeline. It is owned by the
// goroutine handling the request.
type UploadJob struct {
	ID               string
	OriginalFilename string
	BaseName         string
	InputPath        string
	OutputDir        string
	PlaylistPath     string
	ThumbnailPath    string
	StreamURL        string
	ThumbnailURL     string
	Status           Status
	Failure          *Failure
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewUploadJob creates a job in the Received state.
func NewUploadJob(id, originalFilename, inputPath string) *UploadJob {
	now := time.Now().UTC()
	return &UploadJob{
		ID:               id,
		OriginalFilename: originalFilename,
		InputPath:        inputPath,
		Status:           StatusReceived,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Transition moves the job forward to next. Completed is only reachable from
// Finalizing; Failed is reachable from any non-terminal state.
func (j *UploadJob) Transition(next Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, j.Status)
	}
	if next == StatusCompleted && j.Status != StatusFinalizing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	if statusRank[next] <= statusRank[j.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the job to Failed and records the stage error.
func (j *UploadJob) Fail(se *StageError) error {
	if err := j.Transition(StatusFailed); err != nil {
		return err
	}
	j.Failure = &Failure{Stage: se.Stage, Kind: se.Kind, Message: se.Diagnostic}
	return nil
}
