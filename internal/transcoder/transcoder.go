package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"hls-ingest/internal/logging"
	"hls-ingest/internal/metrics"
)

// Config configures a Transcoder.
type Config struct {
	FFmpegPath   string
	FFprobePath  string
	StageTimeout time.Duration
	Descriptor   MediaDescriptor
	Thumbnail    ThumbnailSpec
}

// EngineError describes a failed engine invocation.
type EngineError struct {
	Op         string
	ExitCode   int
	Diagnostic string
	Err        error
}

func (e *EngineError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s failed with exit code %d: %v", e.Op, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// StreamOutcome reports how stage 1 encoded the input.
type StreamOutcome struct {
	Mode  VideoMode
	Probe *ProbeResult
}

// Transcoder drives the external media engine.
type Transcoder struct {
	cfg    Config
	runner Runner
}

// New creates a Transcoder. Zero-valued fields of cfg fall back to defaults.
func New(cfg Config, runner Runner) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Descriptor.VideoMode == "" {
		cfg.Descriptor.VideoMode = ModeAuto
	}
	if cfg.Descriptor.SegmentDuration == 0 {
		cfg.Descriptor.SegmentDuration = DefaultMediaDescriptor().SegmentDuration
	}
	if cfg.Thumbnail == (ThumbnailSpec{}) {
		cfg.Thumbnail = DefaultThumbnailSpec()
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	return &Transcoder{cfg: cfg, runner: runner}
}

// Descriptor returns the configured media descriptor.
func (t *Transcoder) Descriptor() MediaDescriptor {
	return t.cfg.Descriptor
}

// Probe reads stream and container metadata for input.
func (t *Transcoder) Probe(ctx context.Context, input string) (*ProbeResult, error) {
	args, err := ProbeCommand{Input: input}.Args()
	if err != nil {
		return nil, err
	}
	stdout, err := t.invoke(ctx, "probe", t.cfg.FFprobePath, args)
	if err != nil {
		return nil, err
	}
	return ParseProbe(stdout)
}

// EncodeStream runs stage 1: segmented stream generation into the directory
// holding playlistPath. It succeeds only when the engine exits zero.
func (t *Transcoder) EncodeStream(ctx context.Context, input, playlistPath string) (StreamOutcome, error) {
	d := t.cfg.Descriptor
	outcome := StreamOutcome{Mode: d.VideoMode}

	if d.VideoMode == ModeAuto {
		probe, err := t.Probe(ctx, input)
		if err != nil {
			logging.Debug("Probe failed for %s, re-encoding: %v", input, err)
		}
		outcome.Probe = probe
		outcome.Mode = ResolveMode(d, probe)
	}

	args, err := StreamCommand{
		Input:      input,
		Playlist:   playlistPath,
		Mode:       outcome.Mode,
		Descriptor: d,
	}.Args()
	if err != nil {
		return outcome, err
	}

	if _, err := t.invoke(ctx, "stream", t.cfg.FFmpegPath, args); err != nil {
		return outcome, err
	}
	metrics.StreamModeTotal.WithLabelValues(string(outcome.Mode)).Inc()
	return outcome, nil
}

// ExtractThumbnail runs stage 2: a single frame written to thumbnailPath and
// then fitted to the configured box.
func (t *Transcoder) ExtractThumbnail(ctx context.Context, input, thumbnailPath string) error {
	spec := t.cfg.Thumbnail
	args, err := ThumbnailCommand{Input: input, Output: thumbnailPath, Spec: spec}.Args()
	if err != nil {
		return err
	}

	if _, err := t.invoke(ctx, "thumbnail", t.cfg.FFmpegPath, args); err != nil {
		return err
	}

	// A source shorter than the offset can exit zero without writing a frame.
	if _, err := os.Stat(thumbnailPath); err != nil {
		return &EngineError{Op: "thumbnail", Diagnostic: "no frame was written", Err: err}
	}

	return NormalizeThumbnail(thumbnailPath, spec)
}

// Available checks that the engine and prober can be executed.
func (t *Transcoder) Available(ctx context.Context) error {
	for _, bin := range []string{t.cfg.FFmpegPath, t.cfg.FFprobePath} {
		if _, _, err := t.runner.Run(ctx, bin, []string{"-version"}); err != nil {
			return fmt.Errorf("%s: %w", bin, err)
		}
	}
	return nil
}

// Cleanup kills engine processes still running, if the runner tracks them.
func (t *Transcoder) Cleanup() {
	if c, ok := t.runner.(interface{ Cleanup() }); ok {
		c.Cleanup()
	}
}

// invoke runs one engine process bounded by the stage timeout.
func (t *Transcoder) invoke(ctx context.Context, op, bin string, args []string) ([]byte, error) {
	if t.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.StageTimeout)
		defer cancel()
	}

	logging.Debug("Engine %s: %s %v", op, bin, args)

	metrics.EngineProcessesActive.Inc()
	start := time.Now()
	stdout, diagnostic, err := t.runner.Run(ctx, bin, args)
	metrics.EngineProcessesActive.Dec()

	if err == nil {
		metrics.EngineInvocationsTotal.WithLabelValues(op, "success").Inc()
		logging.Debug("Engine %s finished in %v", op, time.Since(start))
		return stdout, nil
	}

	status := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		status = "timeout"
	}
	metrics.EngineInvocationsTotal.WithLabelValues(op, status).Inc()

	engineErr := &EngineError{Op: op, Diagnostic: diagnostic, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		engineErr.ExitCode = exitErr.ExitCode()
	}
	return nil, engineErr
}
