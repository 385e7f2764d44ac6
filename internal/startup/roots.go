package startup

import (
	"fmt"
	"os"
	"path/filepath"

	"hls-ingest/internal/logging"
)

// EnsureRoots creates the uploads, videos, thumbnails and database roots and
// verifies they are writable. It is idempotent and must run before the server
// accepts traffic. The error names the first root that failed.
func EnsureRoots(cfg *Config) error {
	section("DIRECTORY SETUP")

	roots := []struct {
		name string
		path string
	}{
		{"uploads", cfg.UploadsDir},
		{"videos", cfg.VideosDir},
		{"thumbnails", cfg.ThumbnailsDir},
		{"database", cfg.DatabaseDir},
	}

	for _, r := range roots {
		if err := ensureDirectory(r.path); err != nil {
			return fmt.Errorf("%s root %s: %w", r.name, r.path, err)
		}
		if err := testWriteAccess(r.path); err != nil {
			return fmt.Errorf("%s root %s is not writable: %w", r.name, r.path, err)
		}
		logging.Info("  [OK] %-10s %s", r.name, r.path)
	}
	return nil
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Creating %s", path)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
