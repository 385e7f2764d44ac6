package handlers

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"hls-ingest/internal/logging"
	"hls-ingest/internal/startup"
	"hls-ingest/internal/transcoder"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"

	// RootMessage is the body of GET /.
	RootMessage = "Video upload backend is running."

	engineCheckTTL     = 30 * time.Second
	engineCheckTimeout = 5 * time.Second
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status          string `json:"status"`
	Ready           bool   `json:"ready"`
	Version         string `json:"version"`
	Uptime          string `json:"uptime"`
	EngineAvailable bool   `json:"engineAvailable"`
	EngineError     string `json:"engineError,omitempty"`
	ActiveJobs      int64  `json:"activeJobs"`
	ThumbnailPolicy string `json:"thumbnailPolicy"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// engineStatus caches the result of the engine check so that frequent probes
// do not spawn ffmpeg on every request.
type engineStatus struct {
	checker EngineChecker
	ttl     time.Duration

	mu      sync.Mutex
	checked time.Time
	err     error
}

func newEngineStatus(checker EngineChecker, ttl time.Duration) *engineStatus {
	return &engineStatus{checker: checker, ttl: ttl}
}

func (s *engineStatus) check(ctx context.Context) error {
	if s.checker == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checked.IsZero() && time.Since(s.checked) < s.ttl {
		return s.err
	}

	// The result outlives the request, so an aborted probe must not decide it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), engineCheckTimeout)
	defer cancel()
	s.err = s.checker.Available(ctx)
	s.checked = time.Now()
	if s.err != nil {
		logging.Warn("Media engine check failed: %v", s.err)
	}
	return s.err
}

// engineErrorCategory reduces an engine check error to a short public label.
// The full error, which may name binary paths, only goes to the log.
func engineErrorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, transcoder.ErrEngineUnavailable):
		return "engine not found"
	case errors.Is(err, context.DeadlineExceeded):
		return "engine check timed out"
	default:
		return "engine check failed"
	}
}

// Root answers GET / with a plain-text liveness message.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(RootMessage))
	}
}

// HealthCheck returns the health status of the service. A missing engine
// degrades the status but still answers 200; readiness reports 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	engineErr := h.engine.check(r.Context())

	response := HealthResponse{
		Status:          statusHealthy,
		Ready:           engineErr == nil,
		Version:         startup.Version,
		Uptime:          time.Since(h.startTime).Round(time.Second).String(),
		EngineAvailable: engineErr == nil,
		GoVersion:       runtime.Version(),
		NumCPU:          runtime.NumCPU(),
		NumGoroutine:    runtime.NumGoroutine(),
	}
	if h.pipeline != nil {
		response.ActiveJobs = h.pipeline.Active()
		response.ThumbnailPolicy = string(h.pipeline.Policy())
	}
	if engineErr != nil {
		response.Status = statusDegraded
		response.EngineError = engineErrorCategory(engineErr)
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONResponse(w, response, http.StatusOK)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the media engine can be executed.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.check(r.Context()); err != nil {
		writeJSONStatus(w, "not_ready", http.StatusServiceUnavailable)
		return
	}
	writeJSONStatus(w, "ready", http.StatusOK)
}
