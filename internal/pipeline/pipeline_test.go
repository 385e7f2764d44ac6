package pipeline

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"hls-ingest/internal/identity"
	"hls-ingest/internal/playlist"
	"hls-ingest/internal/transcoder"
	"hls-ingest/internal/transcoder/transcodertest"
	"hls-ingest/internal/upload"
)

type memoryStore struct {
	mu       sync.Mutex
	statuses map[string][]Status
	last     map[string]UploadJob
}

func newMemoryStore() *memoryStore {
	return &memoryStore{statuses: make(map[string][]Status), last: make(map[string]UploadJob)}
}

func (s *memoryStore) CreateJob(_ context.Context, job *UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.last[job.ID]; ok {
		return errors.New("duplicate job")
	}
	s.statuses[job.ID] = append(s.statuses[job.ID], job.Status)
	s.last[job.ID] = *job
	return nil
}

func (s *memoryStore) UpdateJob(_ context.Context, job *UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.last[job.ID]; !ok {
		return errors.New("unknown job")
	}
	s.statuses[job.ID] = append(s.statuses[job.ID], job.Status)
	s.last[job.ID] = *job
	return nil
}

func (s *memoryStore) history(id string) []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.statuses[id])
}

func (s *memoryStore) job(id string) UploadJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[id]
}

type testEnv struct {
	ns       *identity.Namespace
	runner   *transcodertest.Runner
	store    *memoryStore
	pipeline *Pipeline
	roots    identity.Roots
}

func newTestEnv(t *testing.T, runner *transcodertest.Runner, policy ThumbnailPolicy, maxConcurrent int) *testEnv {
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
	d := transcoder.DefaultMediaDescriptor()
	tr := transcoder.New(transcoder.Config{StageTimeout: 10 * time.Second, Descriptor: d}, runner)
	store := newMemoryStore()

	return &testEnv{
		ns:     ns,
		runner: runner,
		store:  store,
		roots:  roots,
		pipeline: New(Options{
			Namespace:     ns,
			Receiver:      upload.NewReceiver(ns, 0),
			Engine:        tr,
			Store:         store,
			Policy:        policy,
			MaxConcurrent: maxConcurrent,
		}),
	}
}

// stage writes an input file into the uploads root as the receiver would.
func (e *testEnv) stage(t *testing.T, id, original string) *upload.Upload {
	t.Helper()
	path := filepath.Join(e.roots.Uploads, id+".mp4")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &upload.Upload{ID: id, OriginalFilename: original, Path: path, Size: 16, ContentHash: "ab12cd34ef56ab12cd34"}
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s should not exist (err = %v)", path, err)
	}
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &transcodertest.Runner{}, PolicySequential, 0)
	up := env.stage(t, "job-1", "sample video.mp4")

	res, err := env.pipeline.Run(context.Background(), up)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.StreamURL != "/videos/sample_video/index.m3u8" {
		t.Errorf("StreamURL = %q", res.StreamURL)
	}
	if res.ThumbnailURL != "/thumbnails/sample_video.jpg" {
		t.Errorf("ThumbnailURL = %q", res.ThumbnailURL)
	}

	pl, err := playlist.Verify(filepath.Join(env.roots.Videos, "sample_video", "index.m3u8"))
	if err != nil {
		t.Fatalf("playlist.Verify() error = %v", err)
	}
	if len(pl.Segments) == 0 {
		t.Error("playlist has no segments")
	}
	if _, err := os.Stat(filepath.Join(env.roots.Thumbnails, "sample_video.jpg")); err != nil {
		t.Errorf("thumbnail missing: %v", err)
	}
	assertNotExist(t, up.Path)

	want := []Status{StatusReceived, StatusEncodingStream, StatusExtractingThumbnail, StatusFinalizing, StatusCompleted}
	if got := env.store.history("job-1"); !slices.Equal(got, want) {
		t.Errorf("status history = %v, want %v", got, want)
	}
	if job := env.store.job("job-1"); job.BaseName != "sample_video" || job.Failure != nil {
		t.Errorf("recorded job = %+v", job)
	}
	if env.pipeline.Active() != 0 {
		t.Errorf("Active() = %d after completion", env.pipeline.Active())
	}
}

func TestRunStreamFailure(t *testing.T) {
	t.Parallel()

	runner := &transcodertest.Runner{
		Fail:       map[transcodertest.Op]bool{transcodertest.OpStream: true},
		Diagnostic: "Invalid data found when processing input",
	}
	env := newTestEnv(t, runner, PolicySequential, 0)
	up := env.stage(t, "job-1", "broken.mp4")

	res, err := env.pipeline.Run(context.Background(), up)
	if res != nil {
		t.Errorf("Run() result = %+v, want nil", res)
	}

	var se *StageError
	if !errors.As(err, &se) || se.Kind != KindEncodingStream {
		t.Fatalf("Run() error = %v, want encoding stage error", err)
	}
	if StatusCode(err) != http.StatusInternalServerError || PublicMessage(err) != MsgConversion {
		t.Errorf("response = %d %q", StatusCode(err), PublicMessage(err))
	}
	if slices.Contains(runner.Ops(), transcodertest.OpThumbnail) {
		t.Error("thumbnail extraction ran after stream failure")
	}
	assertNotExist(t, up.Path)
	assertNotExist(t, filepath.Join(env.roots.Thumbnails, "broken.jpg"))

	job := env.store.job("job-1")
	if job.Status != StatusFailed || job.Failure == nil {
		t.Fatalf("recorded job = %+v", job)
	}
	if job.Failure.Stage != StatusEncodingStream || job.Failure.Message != runner.Diagnostic {
		t.Errorf("Failure = %+v", job.Failure)
	}
}

func TestRunThumbnailFailure(t *testing.T) {
	t.Parallel()

	runner := &transcodertest.Runner{Fail: map[transcodertest.Op]bool{transcodertest.OpThumbnail: true}}
	env := newTestEnv(t, runner, PolicySequential, 0)
	up := env.stage(t, "job-1", "clip.mp4")

	_, err := env.pipeline.Run(context.Background(), up)
	var se *StageError
	if !errors.As(err, &se) || se.Kind != KindThumbnailExtraction {
		t.Fatalf("Run() error = %v, want thumbnail stage error", err)
	}
	if PublicMessage(err) != MsgThumbnailFailed {
		t.Errorf("PublicMessage() = %q", PublicMessage(err))
	}

	// The stream from stage 1 stays on disk even though the job failed.
	if _, err := playlist.Verify(filepath.Join(env.roots.Videos, "clip", "index.m3u8")); err != nil {
		t.Errorf("playlist should remain: %v", err)
	}
	assertNotExist(t, up.Path)

	want := []Status{StatusReceived, StatusEncodingStream, StatusExtractingThumbnail, StatusFailed}
	if got := env.store.history("job-1"); !slices.Equal(got, want) {
		t.Errorf("status history = %v, want %v", got, want)
	}
}

// stageUnremovable stages an input whose path is a non-empty directory, so
// removing it fails.
func (e *testEnv) stageUnremovable(t *testing.T, id, original string) *upload.Upload {
	t.Helper()
	up := e.stage(t, id, original)
	if err := os.Remove(up.Path); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(up.Path, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}
	return up
}

func TestRunCleanupFailureIsNotSurfaced(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &transcodertest.Runner{}, PolicySequential, 0)
	up := env.stageUnremovable(t, "job-1", "clip.mp4")

	res, err := env.pipeline.Run(context.Background(), up)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil despite cleanup failure", err)
	}
	if res == nil || res.StreamURL != "/videos/clip/index.m3u8" || res.ThumbnailURL != "/thumbnails/clip.jpg" {
		t.Errorf("Run() result = %+v", res)
	}
	if _, err := os.Stat(up.Path); err != nil {
		t.Errorf("input should still exist after failed removal: %v", err)
	}
	if job := env.store.job("job-1"); job.Status != StatusCompleted || job.Failure != nil {
		t.Errorf("recorded job = %+v", job)
	}
}

func TestRunCleanupFailureKeepsStageError(t *testing.T) {
	t.Parallel()

	runner := &transcodertest.Runner{
		Fail:       map[transcodertest.Op]bool{transcodertest.OpThumbnail: true},
		Diagnostic: "Output file is empty, nothing was encoded",
	}
	env := newTestEnv(t, runner, PolicySequential, 0)
	up := env.stageUnremovable(t, "job-1", "clip.mp4")

	res, err := env.pipeline.Run(context.Background(), up)
	if res != nil {
		t.Errorf("Run() result = %+v, want nil", res)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Kind != KindThumbnailExtraction {
		t.Fatalf("Run() error = %v, want thumbnail stage error", err)
	}
	if PublicMessage(err) != MsgThumbnailFailed {
		t.Errorf("PublicMessage() = %q", PublicMessage(err))
	}

	job := env.store.job("job-1")
	if job.Status != StatusFailed || job.Failure == nil || job.Failure.Stage != StatusExtractingThumbnail {
		t.Errorf("recorded job = %+v", job)
	}
}

func TestRunMissingSegment(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &transcodertest.Runner{}, PolicySequential, 0)
	up := env.stage(t, "job-1", "clip.mp4")

	env.pipeline.engine = segmentDroppingEngine{Engine: env.pipeline.engine}

	_, err := env.pipeline.Run(context.Background(), up)
	var se *StageError
	if !errors.As(err, &se) || se.Kind != KindEncodingStream {
		t.Fatalf("Run() error = %v, want encoding stage error", err)
	}
	if !errors.Is(err, playlist.ErrMissingSegment) {
		t.Errorf("error should wrap ErrMissingSegment: %v", err)
	}
}

type segmentDroppingEngine struct {
	Engine
}

func (e segmentDroppingEngine) EncodeStream(ctx context.Context, input, playlistPath string) (transcoder.StreamOutcome, error) {
	out, err := e.Engine.EncodeStream(ctx, input, playlistPath)
	if err == nil {
		_ = os.Remove(filepath.Join(filepath.Dir(playlistPath), "segment_001.ts"))
	}
	return out, err
}

func TestRunParallelPolicy(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		runner := &transcodertest.Runner{Delay: 50 * time.Millisecond}
		env := newTestEnv(t, runner, PolicyParallel, 0)
		up := env.stage(t, "job-1", "clip.mp4")

		if _, err := env.pipeline.Run(context.Background(), up); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if runner.MaxActive() < 2 {
			t.Errorf("MaxActive() = %d, want stages to overlap", runner.MaxActive())
		}
		want := []Status{StatusReceived, StatusEncodingStream, StatusExtractingThumbnail, StatusFinalizing, StatusCompleted}
		if got := env.store.history("job-1"); !slices.Equal(got, want) {
			t.Errorf("status history = %v, want %v", got, want)
		}
	})

	t.Run("stream failure wins", func(t *testing.T) {
		t.Parallel()
		runner := &transcodertest.Runner{Fail: map[transcodertest.Op]bool{
			transcodertest.OpStream:    true,
			transcodertest.OpThumbnail: true,
		}}
		env := newTestEnv(t, runner, PolicyParallel, 0)
		up := env.stage(t, "job-1", "clip.mp4")

		_, err := env.pipeline.Run(context.Background(), up)
		var se *StageError
		if !errors.As(err, &se) || se.Kind != KindEncodingStream {
			t.Fatalf("Run() error = %v, want encoding stage error", err)
		}
		assertNotExist(t, up.Path)
	})
}

func TestRunConcurrentDistinctUploads(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &transcodertest.Runner{Delay: 20 * time.Millisecond}, PolicySequential, 0)
	a := env.stage(t, "job-a", "a.mp4")
	b := env.stage(t, "job-b", "b.mp4")

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i, up := range []*upload.Upload{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = env.pipeline.Run(context.Background(), up)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("job %d error = %v", i, err)
		}
	}
	if results[0].StreamURL == results[1].StreamURL {
		t.Error("distinct uploads share a stream URL")
	}

	for _, name := range []string{"a", "b"} {
		dir := filepath.Join(env.roots.Videos, name)
		pl, err := playlist.Verify(filepath.Join(dir, "index.m3u8"))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		// Only this job's playlist and segments live in its directory.
		if len(entries) != len(pl.Segments)+1 {
			t.Errorf("%s has %d entries, want %d", name, len(entries), len(pl.Segments)+1)
		}
	}
}

func TestRunSameBaseNameIsSerialised(t *testing.T) {
	t.Parallel()

	runner := &transcodertest.Runner{Delay: 30 * time.Millisecond}
	env := newTestEnv(t, runner, PolicySequential, 0)
	first := env.stage(t, "job-1", "clip.mp4")
	second := env.stage(t, "job-2", "clip.MOV")

	var wg sync.WaitGroup
	for _, up := range []*upload.Upload{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.pipeline.Run(context.Background(), up); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := runner.MaxActive(); got != 1 {
		t.Errorf("MaxActive() = %d, want 1 for jobs sharing a base name", got)
	}
}

func TestRunMaxConcurrent(t *testing.T) {
	t.Parallel()

	runner := &transcodertest.Runner{Delay: 30 * time.Millisecond}
	env := newTestEnv(t, runner, PolicySequential, 1)

	var wg sync.WaitGroup
	for i, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		up := env.stage(t, "job-"+string(rune('a'+i)), name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.pipeline.Run(context.Background(), up); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := runner.MaxActive(); got != 1 {
		t.Errorf("MaxActive() = %d, want 1", got)
	}
}

func TestRunUnusableFilename(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &transcodertest.Runner{}, PolicySequential, 0)
	up := env.stage(t, "0b6f3a52-0c2d-4d7e-9a4b-1f2e3d4c5b6a", "!!!.mp4")

	res, err := env.pipeline.Run(context.Background(), up)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.StreamURL, up.ID) {
		t.Errorf("StreamURL = %q, want job id as base name", res.StreamURL)
	}
}

func TestRunDirectoryCreationFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &transcodertest.Runner{}, PolicySequential, 0)
	up := env.stage(t, "job-1", "clip.mp4")

	// A regular file where the output directory should go.
	if err := os.WriteFile(filepath.Join(env.roots.Videos, "clip"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := env.pipeline.Run(context.Background(), up)
	var se *StageError
	if !errors.As(err, &se) || se.Kind != KindDirectoryCreation {
		t.Fatalf("Run() error = %v, want directory creation error", err)
	}
	if PublicMessage(err) != MsgServerError {
		t.Errorf("PublicMessage() = %q", PublicMessage(err))
	}
	if len(env.runner.Calls()) != 0 {
		t.Errorf("engine ran %d times", len(env.runner.Calls()))
	}
	assertNotExist(t, up.Path)
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
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

func TestReceive(t *testing.T) {
	t.Parallel()

	t.Run("video part", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, &transcodertest.Runner{}, PolicySequential, 0)

		up, err := env.pipeline.Receive(multipartRequest(t, upload.FieldName, "clip.mp4", []byte("data")))
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if up.OriginalFilename != "clip.mp4" || up.Size != 4 {
			t.Errorf("upload = %+v", up)
		}
	})

	t.Run("missing part", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, &transcodertest.Runner{}, PolicySequential, 0)

		_, err := env.pipeline.Receive(multipartRequest(t, "", "", nil))
		var se *StageError
		if !errors.As(err, &se) || se.Kind != KindInputMissing {
			t.Fatalf("Receive() error = %v, want InputMissing", err)
		}
		if StatusCode(err) != http.StatusBadRequest || PublicMessage(err) != MsgNoFile {
			t.Errorf("response = %d %q", StatusCode(err), PublicMessage(err))
		}
		entries, _ := os.ReadDir(env.roots.Uploads)
		if len(entries) != 0 {
			t.Errorf("uploads root has %d entries", len(entries))
		}
	})
}

func TestParseThumbnailPolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]ThumbnailPolicy{"": PolicySequential, "sequential": PolicySequential, "Parallel": PolicyParallel} {
		got, err := ParseThumbnailPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseThumbnailPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseThumbnailPolicy("eventually"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
