package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

type recordingObserver struct {
	mu         sync.Mutex
	operations []string
	stale      int
	attempts   int
	successes  int
	failures   int
}

func (o *recordingObserver) ObserveOperation(volume, operation string, _ float64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "err"
	}
	o.operations = append(o.operations, volume+":"+operation+":"+status)
}

func (o *recordingObserver) ObserveRetryAttempt(_, _ string) { o.mu.Lock(); o.attempts++; o.mu.Unlock() }
func (o *recordingObserver) ObserveRetrySuccess(_, _ string) { o.mu.Lock(); o.successes++; o.mu.Unlock() }
func (o *recordingObserver) ObserveRetryFailure(_, _ string) { o.mu.Lock(); o.failures++; o.mu.Unlock() }
func (o *recordingObserver) ObserveStaleError(_, _ string)   { o.mu.Lock(); o.stale++; o.mu.Unlock() }

func fastConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestVolumeResolver(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"videos":     "/srv/data/videos",
		"data":       "/srv/data",
		"thumbnails": "/srv/data/thumbnails",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/srv/data/videos/a/index.m3u8", "videos"},
		{"/srv/data/videos", "videos"},
		{"/srv/data/thumbnails/a.jpg", "thumbnails"},
		{"/srv/data/other", "data"},
		{"/srv/data/videos-old/x", "data"},
		{"/tmp/x", "unknown"},
	}

	for _, tt := range tests {
		if got := vr.Resolve(tt.path); got != tt.want {
			t.Errorf("Resolve(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}

	var nilResolver *VolumeResolver
	if got := nilResolver.Resolve("/x"); got != "unknown" {
		t.Errorf("nil resolver Resolve = %s, want unknown", got)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	if !isNFSStaleError(syscall.ESTALE) {
		t.Error("ESTALE not detected")
	}
	if !isNFSStaleError(&os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}) {
		t.Error("wrapped ESTALE not detected")
	}
	if isNFSStaleError(syscall.ENOENT) {
		t.Error("ENOENT reported as stale")
	}
	if isNFSStaleError(nil) {
		t.Error("nil reported as stale")
	}
	if isNFSStaleError(errors.New("other")) {
		t.Error("plain error reported as stale")
	}
}

func TestWithRetryRecoversFromStale(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	err := withRetry("stat", "/x", fastConfig(), func() error {
		calls++
		if calls < 3 {
			return syscall.ESTALE
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if obs.stale != 2 || obs.attempts != 2 || obs.successes != 1 || obs.failures != 0 {
		t.Errorf("observer = stale %d attempts %d successes %d failures %d",
			obs.stale, obs.attempts, obs.successes, obs.failures)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	err := withRetry("remove", "/x", fastConfig(), func() error {
		calls++
		return syscall.ESTALE
	})
	if !errors.Is(err, syscall.ESTALE) {
		t.Fatalf("error = %v, want ESTALE", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if obs.failures != 1 {
		t.Errorf("failures = %d, want 1", obs.failures)
	}
}

func TestWithRetryNoRetryOnOtherErrors(t *testing.T) {
	calls := 0
	err := withRetry("stat", "/x", fastConfig(), func() error {
		calls++
		return syscall.EACCES
	})
	if !errors.Is(err, syscall.EACCES) {
		t.Fatalf("error = %v, want EACCES", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStatWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 3 {
		t.Errorf("Size = %d, want 3", info.Size())
	}

	if _, err := StatWithRetry(filepath.Join(dir, "missing"), fastConfig()); !os.IsNotExist(err) {
		t.Errorf("error = %v, want not-exist", err)
	}
}

func TestRemoveWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := RemoveWithRetry(path, fastConfig()); err != nil {
		t.Fatalf("RemoveWithRetry() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists: %v", err)
	}

	if err := RemoveWithRetry(path, fastConfig()); err != nil {
		t.Errorf("removing a missing file should succeed, got %v", err)
	}
}
