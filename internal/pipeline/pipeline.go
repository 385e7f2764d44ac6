package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"hls-ingest/internal/filesystem"
	"hls-ingest/internal/identity"
	"hls-ingest/internal/logging"
	"hls-ingest/internal/metrics"
	"hls-ingest/internal/playlist"
	"hls-ingest/internal/transcoder"
	"hls-ingest/internal/upload"
)

// ThumbnailPolicy controls whether stage 2 waits for stage 1.
type ThumbnailPolicy string

const (
	// PolicySequential runs thumbnail extraction only after the stream succeeded.
	PolicySequential ThumbnailPolicy = "sequential"
	// PolicyParallel runs both stages against the input at the same time.
	PolicyParallel ThumbnailPolicy = "parallel"
)

// ParseThumbnailPolicy validates a policy name. An empty string means sequential.
func ParseThumbnailPolicy(s string) (ThumbnailPolicy, error) {
	switch ThumbnailPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySequential:
		return PolicySequential, nil
	case PolicyParallel:
		return PolicyParallel, nil
	default:
		return "", fmt.Errorf("unknown thumbnail policy %q", s)
	}
}

// Engine runs the two transcoding stages.
type Engine interface {
	EncodeStream(ctx context.Context, input, playlistPath string) (transcoder.StreamOutcome, error)
	ExtractThumbnail(ctx context.Context, input, thumbnailPath string) error
}

// JobStore records job state. Failures to record are logged, never fatal.
type JobStore interface {
	CreateJob(ctx context.Context, job *UploadJob) error
	UpdateJob(ctx context.Context, job *UploadJob) error
}

// Result is the public payload of a completed job.
type Result struct {
	StreamURL    string `json:"streamUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Options configures a Pipeline.
type Options struct {
	Namespace *identity.Namespace
	Receiver  *upload.Receiver
	Engine    Engine
	Store     JobStore
	Policy    ThumbnailPolicy
	// MaxConcurrent bounds jobs running engine stages at once. 0 means unlimited.
	MaxConcurrent int
	Retry         filesystem.RetryConfig
}

// Pipeline receives uploads and drives them through transcoding and cleanup.
type Pipeline struct {
	ns       *identity.Namespace
	receiver *upload.Receiver
	engine   Engine
	store    JobStore
	policy   ThumbnailPolicy
	sem      *semaphore.Weighted
	retry    filesystem.RetryConfig
	active   atomic.Int64
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		ns:       opts.Namespace,
		receiver: opts.Receiver,
		engine:   opts.Engine,
		store:    opts.Store,
		policy:   opts.Policy,
		retry:    opts.Retry,
	}
	if p.policy == "" {
		p.policy = PolicySequential
	}
	if p.retry == (filesystem.RetryConfig{}) {
		p.retry = filesystem.DefaultRetryConfig()
	}
	if opts.MaxConcurrent > 0 {
		p.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return p
}

// Active returns the number of jobs currently running.
func (p *Pipeline) Active() int64 {
	return p.active.Load()
}

// Policy returns the configured thumbnail policy.
func (p *Pipeline) Policy() ThumbnailPolicy {
	return p.policy
}

// Receive persists the video part of r. Errors are *StageError values of
// kind InputMissing or UploadFailure.
func (p *Pipeline) Receive(r *http.Request) (*upload.Upload, error) {
	start := time.Now()
	up, err := p.receiver.Receive(r)
	metrics.StageDuration.WithLabelValues("receive").Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, upload.ErrInputMissing):
			metrics.UploadRejectedTotal.WithLabelValues("missing").Inc()
			metrics.JobFailuresTotal.WithLabelValues(string(KindInputMissing)).Inc()
			return nil, newStageError(KindInputMissing, StatusReceived, err)
		case errors.Is(err, upload.ErrUploadTooLarge):
			metrics.UploadRejectedTotal.WithLabelValues("too_large").Inc()
		default:
			metrics.UploadRejectedTotal.WithLabelValues("error").Inc()
		}
		metrics.JobFailuresTotal.WithLabelValues(string(KindUploadFailure)).Inc()
		return nil, newStageError(KindUploadFailure, StatusReceived, err)
	}

	metrics.UploadBytesTotal.Add(float64(up.Size))
	metrics.UploadSizeBytes.Observe(float64(up.Size))
	return up, nil
}

// Run drives a received upload through both stages and cleanup. The input
// file is removed exactly once whatever the outcome. The returned error is a
// *StageError.
func (p *Pipeline) Run(ctx context.Context, up *upload.Upload) (*Result, error) {
	start := time.Now()
	p.active.Add(1)
	metrics.JobsInProgress.Inc()
	defer func() {
		p.active.Add(-1)
		metrics.JobsInProgress.Dec()
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}()

	job := NewUploadJob(up.ID, up.OriginalFilename, up.Path)
	log := logging.WithJob(job.ID, "")
	p.record(ctx, job, log, true)

	baseName, err := p.ns.Resolve(up.OriginalFilename, up.ContentHash)
	if errors.Is(err, identity.ErrInvalidName) {
		// Nothing usable survives sanitising; the job id is always a valid name.
		log.Warn("Filename %q has no usable characters, naming output after job id", logging.SanitizeField(up.OriginalFilename))
		baseName, err = p.ns.Resolve(up.ID, up.ContentHash)
	}
	if err != nil {
		return p.finish(ctx, job, log, newStageError(KindDirectoryCreation, StatusReceived, err))
	}

	paths, err := p.ns.Allocate(baseName)
	if err != nil {
		return p.finish(ctx, job, log, newStageError(KindDirectoryCreation, StatusReceived, err))
	}
	job.BaseName = paths.BaseName
	job.OutputDir = paths.OutputDir
	job.PlaylistPath = paths.PlaylistPath
	job.ThumbnailPath = paths.ThumbnailPath
	job.StreamURL = paths.StreamURL
	job.ThumbnailURL = paths.ThumbnailURL
	log = logging.WithJob(job.ID, job.BaseName)

	lockStart := time.Now()
	unlock := p.ns.Lock(job.BaseName)
	defer unlock()
	metrics.NamespaceLockWait.Observe(time.Since(lockStart).Seconds())

	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return p.finish(ctx, job, log, newStageError(KindEncodingStream, StatusReceived, err))
		}
		defer p.sem.Release(1)
	}

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return p.finish(ctx, job, log, newStageError(KindDirectoryCreation, StatusReceived, err))
	}

	log.Info("Processing upload %q", logging.SanitizeField(job.OriginalFilename))

	var stageErr *StageError
	if p.policy == PolicyParallel {
		stageErr = p.runParallel(ctx, job, log)
	} else {
		stageErr = p.runSequential(ctx, job, log)
	}
	if stageErr != nil {
		return p.finish(ctx, job, log, stageErr)
	}

	p.advance(ctx, job, log, StatusFinalizing)
	return p.finish(ctx, job, log, nil)
}

func (p *Pipeline) runSequential(ctx context.Context, job *UploadJob, log *logging.JobLogger) *StageError {
	p.advance(ctx, job, log, StatusEncodingStream)
	if se := p.encodeStream(ctx, job, log); se != nil {
		return se
	}

	p.advance(ctx, job, log, StatusExtractingThumbnail)
	return p.extractThumbnail(ctx, job, log)
}

func (p *Pipeline) runParallel(ctx context.Context, job *UploadJob, log *logging.JobLogger) *StageError {
	p.advance(ctx, job, log, StatusEncodingStream)

	var streamErr, thumbErr *StageError
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if se := p.encodeStream(gctx, job, log); se != nil {
			streamErr = se
			return se
		}
		return nil
	})
	g.Go(func() error {
		if se := p.extractThumbnail(gctx, job, log); se != nil {
			thumbErr = se
			return se
		}
		return nil
	})
	_ = g.Wait()

	// A stream failure wins even if the thumbnail was cancelled because of it.
	if streamErr != nil {
		return streamErr
	}
	p.advance(ctx, job, log, StatusExtractingThumbnail)
	return thumbErr
}

func (p *Pipeline) encodeStream(ctx context.Context, job *UploadJob, log *logging.JobLogger) *StageError {
	start := time.Now()
	outcome, err := p.engine.EncodeStream(ctx, job.InputPath, job.PlaylistPath)
	metrics.StageDuration.WithLabelValues(string(StatusEncodingStream)).Observe(time.Since(start).Seconds())
	if err != nil {
		return newStageError(KindEncodingStream, StatusEncodingStream, err)
	}

	pl, err := playlist.Verify(job.PlaylistPath)
	if err != nil {
		return newStageError(KindEncodingStream, StatusEncodingStream, err)
	}

	log.Info("Stream ready (%s): %d segments, %.1fs, took %v", outcome.Mode, len(pl.Segments), pl.Duration(), time.Since(start).Round(time.Millisecond))
	return nil
}

func (p *Pipeline) extractThumbnail(ctx context.Context, job *UploadJob, log *logging.JobLogger) *StageError {
	start := time.Now()
	err := p.engine.ExtractThumbnail(ctx, job.InputPath, job.ThumbnailPath)
	metrics.StageDuration.WithLabelValues(string(StatusExtractingThumbnail)).Observe(time.Since(start).Seconds())
	if err != nil {
		return newStageError(KindThumbnailExtraction, StatusExtractingThumbnail, err)
	}

	log.Debug("Thumbnail ready, took %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// finish removes the input, moves the job to its terminal state and builds
// the response. A cleanup failure never replaces se.
func (p *Pipeline) finish(ctx context.Context, job *UploadJob, log *logging.JobLogger, se *StageError) (*Result, error) {
	cleanupStart := time.Now()
	if err := filesystem.RemoveWithRetry(job.InputPath, p.retry); err != nil {
		metrics.CleanupFailuresTotal.Inc()
		log.Warn("Failed to remove temporary input %s: %v", job.InputPath, err)
	}
	metrics.StageDuration.WithLabelValues(string(StatusFinalizing)).Observe(time.Since(cleanupStart).Seconds())

	if se != nil {
		if err := job.Fail(se); err != nil {
			log.Error("Failed to mark job failed: %v", err)
		}
		p.record(ctx, job, log, false)
		metrics.JobsTotal.WithLabelValues(string(StatusFailed)).Inc()
		metrics.JobFailuresTotal.WithLabelValues(string(se.Kind)).Inc()
		log.Error("Job failed during %s: %s", se.Stage, se.Diagnostic)
		return nil, se
	}

	p.advance(ctx, job, log, StatusCompleted)
	metrics.JobsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	log.Info("Job completed: %s", job.StreamURL)
	return &Result{StreamURL: job.StreamURL, ThumbnailURL: job.ThumbnailURL}, nil
}

func (p *Pipeline) advance(ctx context.Context, job *UploadJob, log *logging.JobLogger, next Status) {
	if err := job.Transition(next); err != nil {
		log.Error("Job status: %v", err)
		return
	}
	log.Debug("Job status %s", next)
	p.record(ctx, job, log, false)
}

// record writes the job to the store. It runs even when ctx was cancelled so
// the ledger sees terminal states.
func (p *Pipeline) record(ctx context.Context, job *UploadJob, log *logging.JobLogger, create bool) {
	if p.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var err error
	if create {
		err = p.store.CreateJob(ctx, job)
	} else {
		err = p.store.UpdateJob(ctx, job)
	}
	if err != nil {
		log.Warn("Failed to record job: %v", err)
	}
}
