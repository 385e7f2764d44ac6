package handlers

import (
	"context"
	"time"

	"hls-ingest/internal/filesystem"
	"hls-ingest/internal/jobs"
	"hls-ingest/internal/pipeline"
)

// JobReader is the read side of the job ledger.
type JobReader interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, limit int) (*jobs.Page, error)
}

// EngineChecker reports whether the media engine can be executed.
type EngineChecker interface {
	Available(ctx context.Context) error
}

// Options configures Handlers.
type Options struct {
	Pipeline      *pipeline.Pipeline
	Jobs          JobReader
	Engine        EngineChecker
	VideosDir     string
	ThumbnailsDir string
	Retry         filesystem.RetryConfig
}

type Handlers struct {
	pipeline      *pipeline.Pipeline
	jobs          JobReader
	engine        *engineStatus
	videosDir     string
	thumbnailsDir string
	retry         filesystem.RetryConfig
	startTime     time.Time
}

func New(opts Options) *Handlers {
	retry := opts.Retry
	if retry == (filesystem.RetryConfig{}) {
		retry = filesystem.DefaultRetryConfig()
	}
	return &Handlers{
		pipeline:      opts.Pipeline,
		jobs:          opts.Jobs,
		engine:        newEngineStatus(opts.Engine, engineCheckTTL),
		videosDir:     opts.VideosDir,
		thumbnailsDir: opts.ThumbnailsDir,
		retry:         retry,
		startTime:     time.Now(),
	}
}
