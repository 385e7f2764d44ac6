package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hls-ingest/internal/identity"
	"hls-ingest/internal/jobs"
	"hls-ingest/internal/pipeline"
	"hls-ingest/internal/transcoder"
	"hls-ingest/internal/transcoder/transcodertest"
	"hls-ingest/internal/upload"

	"github.com/gorilla/mux"
)

// =============================================================================
// Test fixtures
// =============================================================================

type mockJobs struct {
	mu      sync.Mutex
	jobs    map[string]jobs.Job
	listErr error
	limits  []int
}

func newMockJobs() *mockJobs {
	return &mockJobs{jobs: make(map[string]jobs.Job)}
}

func (m *mockJobs) Get(_ context.Context, id string) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return &j, nil
}

func (m *mockJobs) List(_ context.Context, limit int) (*jobs.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, limit)
	if m.listErr != nil {
		return nil, m.listErr
	}
	page := &jobs.Page{Limit: jobs.ClampLimit(limit)}
	for _, j := range m.jobs {
		page.Jobs = append(page.Jobs, j)
	}
	page.Total = len(page.Jobs)
	return page, nil
}

type stubEngine struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *stubEngine) Available(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

// ctxEngine is healthy unless the check context is already done.
type ctxEngine struct {
	mu    sync.Mutex
	calls int
}

func (e *ctxEngine) Available(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return ctx.Err()
}

type testServer struct {
	handlers *Handlers
	router   *mux.Router
	runner   *transcodertest.Runner
	roots    identity.Roots
	jobs     *mockJobs
	engine   *stubEngine
}

// noopStore satisfies pipeline.JobStore for handler tests.
type noopStore struct{}

func (noopStore) CreateJob(context.Context, *pipeline.UploadJob) error { return nil }
func (noopStore) UpdateJob(context.Context, *pipeline.UploadJob) error { return nil }

func newTestServer(t *testing.T, runner *transcodertest.Runner) *testServer {
	t.Helper()

	dir := t.TempDir()
	roots := identity.Roots{
		Uploads:    filepath.Join(dir, "uploads"),
		Videos:     filepath.Join(dir, "videos"),
		Thumbnails: filepath.Join(dir, "thumbnails"),
	}
	for _, root := range []string{roots.Uploads, roots.Videos, roots.Thumbnails} {
		if err := os.MkdirAll(root, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	ns := identity.NewNamespace(roots, identity.StrategyNone)
	tr := transcoder.New(transcoder.Config{StageTimeout: 10 * time.Second}, runner)
	p := pipeline.New(pipeline.Options{
		Namespace: ns,
		Receiver:  upload.NewReceiver(ns, 1<<20),
		Engine:    tr,
		Store:     noopStore{},
	})

	ts := &testServer{
		runner: runner,
		roots:  roots,
		jobs:   newMockJobs(),
		engine: &stubEngine{},
	}
	ts.handlers = New(Options{
		Pipeline:      p,
		Jobs:          ts.jobs,
		Engine:        ts.engine,
		VideosDir:     roots.Videos,
		ThumbnailsDir: roots.Thumbnails,
	})

	r := mux.NewRouter()
	r.HandleFunc("/", ts.handlers.Root).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/upload", ts.handlers.Upload).Methods(http.MethodPost)
	r.HandleFunc("/api/jobs", ts.handlers.ListJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}", ts.handlers.GetJob).Methods(http.MethodGet)
	r.HandleFunc("/livez", ts.handlers.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", ts.handlers.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/readyz", ts.handlers.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", ts.handlers.GetVersion).Methods(http.MethodGet)
	r.PathPrefix("/videos/").Handler(http.StripPrefix("/videos/", ts.handlers.ServeVideos()))
	r.PathPrefix("/thumbnails/").Handler(http.StripPrefix("/thumbnails/", ts.handlers.ServeThumbnails()))
	ts.router = r

	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	} else if err := mw.WriteField("title", "no file here"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode body %q: %v", w.Body.String(), err)
	}
	return m
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestUploadSuccess(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})

	w := ts.do(uploadRequest(t, upload.FieldName, "sample video.mp4", []byte("fake mp4")))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get(JobIDHeader) == "" {
		t.Error("Expected job id header")
	}

	body := decodeMap(t, w)
	if body["streamUrl"] != "/videos/sample_video/index.m3u8" {
		t.Errorf("streamUrl = %q", body["streamUrl"])
	}
	if body["thumbnailUrl"] != "/thumbnails/sample_video.jpg" {
		t.Errorf("thumbnailUrl = %q", body["thumbnailUrl"])
	}
	if len(body) != 2 {
		t.Errorf("Expected exactly two fields, got %v", body)
	}

	if names := dirEntries(t, ts.roots.Uploads); len(names) != 0 {
		t.Errorf("Expected uploads root to be empty, found %v", names)
	}

	// The returned URLs resolve through the static handlers.
	for _, url := range []string{body["streamUrl"], body["thumbnailUrl"], "/videos/sample_video/segment_000.ts"} {
		resp := ts.do(httptest.NewRequest(http.MethodGet, url, nil))
		if resp.Code != http.StatusOK {
			t.Errorf("GET %s = %d", url, resp.Code)
		}
	}
}

func TestUploadNoFile(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"multipart without video field", uploadRequest(t, "", "", nil)},
		{"wrong field name", uploadRequest(t, "file", "clip.mp4", []byte("x"))},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("raw"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(tt.req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", w.Code)
			}
			if got := decodeMap(t, w)["error"]; got != pipeline.MsgNoFile {
				t.Errorf("error = %q, want %q", got, pipeline.MsgNoFile)
			}
		})
	}

	for _, root := range []string{ts.roots.Uploads, ts.roots.Videos, ts.roots.Thumbnails} {
		if names := dirEntries(t, root); len(names) != 0 {
			t.Errorf("Expected %s to be empty, found %v", root, names)
		}
	}
	if len(ts.runner.Calls()) != 0 {
		t.Errorf("Engine should not be invoked, got %v", ts.runner.Ops())
	}
}

func TestUploadTooLarge(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})

	w := ts.do(uploadRequest(t, upload.FieldName, "big.mp4", bytes.Repeat([]byte("x"), 1<<20+1)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d", w.Code)
	}
	if got := decodeMap(t, w)["error"]; got != pipeline.MsgTooLarge {
		t.Errorf("error = %q", got)
	}
	if names := dirEntries(t, ts.roots.Uploads); len(names) != 0 {
		t.Errorf("Partial upload left behind: %v", names)
	}
}

func TestUploadStageFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fail    transcodertest.Op
		wantMsg string
	}{
		{"stream failure", transcodertest.OpStream, pipeline.MsgConversion},
		{"thumbnail failure", transcodertest.OpThumbnail, pipeline.MsgThumbnailFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, &transcodertest.Runner{
				Fail:       map[transcodertest.Op]bool{tt.fail: true},
				Diagnostic: "Invalid data found when processing input",
			})

			w := ts.do(uploadRequest(t, upload.FieldName, "clip.mp4", []byte("bad")))
			if w.Code != http.StatusInternalServerError {
				t.Fatalf("Expected 500, got %d", w.Code)
			}
			body := decodeMap(t, w)
			if body["error"] != tt.wantMsg {
				t.Errorf("error = %q, want %q", body["error"], tt.wantMsg)
			}
			if strings.Contains(w.Body.String(), "Invalid data") {
				t.Error("Engine diagnostic leaked into the response")
			}
			if names := dirEntries(t, ts.roots.Uploads); len(names) != 0 {
				t.Errorf("Expected input to be removed, found %v", names)
			}
		})
	}
}

// =============================================================================
// Jobs Tests
// =============================================================================

func TestListJobs(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})
	ts.jobs.jobs["a"] = jobs.Job{ID: "a", Status: "completed"}

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs?limit=10", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var page jobs.Page
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Limit != 10 {
		t.Errorf("page = %+v", page)
	}

	for _, bad := range []string{"abc", "-1"} {
		w := ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs?limit="+bad, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", bad, w.Code)
		}
	}
}

func TestListJobsError(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})
	ts.jobs.listErr = errors.New("disk I/O error")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "disk") {
		t.Error("Internal error leaked into response")
	}
}

func TestGetJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})
	ts.jobs.jobs["job-1"] = jobs.Job{ID: "job-1", Status: "failed", FailureKind: "encoding_stream"}

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var job jobs.Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	if job.ID != "job-1" || job.FailureKind != "encoding_stream" {
		t.Errorf("job = %+v", job)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

// =============================================================================
// Health Tests
// =============================================================================

func TestRoot(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})

	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || w.Body.String() != RootMessage {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}

	w = ts.do(httptest.NewRequest(http.MethodHead, "/livez", nil))
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD /livez = %d with %d body bytes", w.Code, w.Body.Len())
	}
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		engineErr  error
		wantStatus string
		wantReady  int
	}{
		{"engine available", nil, statusHealthy, http.StatusOK},
		{"engine missing", transcoder.ErrEngineUnavailable, statusDegraded, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, &transcodertest.Runner{})
			ts.engine.err = tt.engineErr

			w := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("healthz = %d", w.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus || resp.EngineAvailable != (tt.engineErr == nil) {
				t.Errorf("health = %+v", resp)
			}
			if resp.ThumbnailPolicy != string(pipeline.PolicySequential) {
				t.Errorf("ThumbnailPolicy = %q", resp.ThumbnailPolicy)
			}

			w = ts.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tt.wantReady {
				t.Errorf("readyz = %d, want %d", w.Code, tt.wantReady)
			}

			// Both probes share one cached engine check.
			if ts.engine.calls != 1 {
				t.Errorf("engine checked %d times, want 1", ts.engine.calls)
			}
		})
	}
}

func TestReadinessIgnoresCancelledRequest(t *testing.T) {
	t.Parallel()
	engine := &ctxEngine{}
	h := New(Options{Engine: engine})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := httptest.NewRecorder()
	h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))
	if w.Code != http.StatusOK {
		t.Errorf("readyz with cancelled request = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("readyz after cancelled request = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != statusHealthy {
		t.Errorf("health status = %q, want %q", resp.Status, statusHealthy)
	}
}

func TestHealthHidesEngineErrorDetail(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})
	ts.engine.err = fmt.Errorf("/opt/private/bin/ffmpeg: %w: exec: not found", transcoder.ErrEngineUnavailable)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.EngineError != "engine not found" {
		t.Errorf("EngineError = %q, want %q", resp.EngineError, "engine not found")
	}
	if strings.Contains(w.Body.String(), "/opt/private") {
		t.Errorf("health body leaks binary path: %s", w.Body.String())
	}
}

func TestEngineErrorCategory(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", fmt.Errorf("ffmpeg: %w", transcoder.ErrEngineUnavailable), "engine not found"},
		{"timeout", fmt.Errorf("ffprobe: %w", context.DeadlineExceeded), "engine check timed out"},
		{"other", errors.New("exit status 1"), "engine check failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := engineErrorCategory(tt.err); got != tt.want {
				t.Errorf("engineErrorCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngineStatusExpires(t *testing.T) {
	t.Parallel()
	engine := &stubEngine{}
	status := newEngineStatus(engine, time.Nanosecond)

	_ = status.check(context.Background())
	time.Sleep(time.Millisecond)
	engine.err = transcoder.ErrEngineUnavailable
	if err := status.check(context.Background()); !errors.Is(err, transcoder.ErrEngineUnavailable) {
		t.Errorf("check after expiry = %v", err)
	}
	if engine.calls != 2 {
		t.Errorf("calls = %d, want 2", engine.calls)
	}
}

func TestGetVersion(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})

	w := ts.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var info map[string]string
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info["version"] == "" || info["goVersion"] == "" {
		t.Errorf("version body = %v", info)
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &transcodertest.Runner{})

	w := httptest.NewRecorder()
	ts.handlers.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("Expected Go runtime metrics in output")
	}
}
