package jobs

import (
	"time"

	"hls-ingest/internal/pipeline"
)

// Job is the ledger record of one upload job.
type Job struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"originalFilename"`
	BaseName         string    `json:"baseName,omitempty"`
	Status           string    `json:"status"`
	FailedStage      string    `json:"failedStage,omitempty"`
	FailureKind      string    `json:"failureKind,omitempty"`
	FailureMessage   string    `json:"failureMessage,omitempty"`
	StreamURL        string    `json:"streamUrl,omitempty"`
	ThumbnailURL     string    `json:"thumbnailUrl,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Page is a slice of jobs plus the total count.
type Page struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
	Limit int   `json:"limit"`
}

// recordFromJob flattens an in-flight job into a ledger record. URLs are
// only exposed once the job has completed.
func recordFromJob(j *pipeline.UploadJob) Job {
	rec := Job{
		ID:               j.ID,
		OriginalFilename: j.OriginalFilename,
		BaseName:         j.BaseName,
		Status:           string(j.Status),
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
	if j.Status == pipeline.StatusCompleted {
		rec.StreamURL = j.StreamURL
		rec.ThumbnailURL = j.ThumbnailURL
	}
	if j.Failure != nil {
		rec.FailedStage = string(j.Failure.Stage)
		rec.FailureKind = string(j.Failure.Kind)
		rec.FailureMessage = j.Failure.Message
	}
	return rec
}
