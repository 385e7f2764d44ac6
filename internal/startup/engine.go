package startup

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"hls-ingest/internal/logging"
)

// CheckEngine verifies that the ffmpeg and ffprobe binaries run and logs
// their versions. A failure is reported but does not stop startup; the
// readiness endpoint reflects it.
func CheckEngine(cfg *Config) error {
	section("MEDIA ENGINE")

	for _, bin := range []string{cfg.FFmpegPath, cfg.FFprobePath} {
		version, err := binaryVersion(bin)
		if err != nil {
			logging.Warn("  %s check failed: %v", bin, err)
			logging.Warn("  Uploads will fail until the engine is installed")
			return err
		}
		logging.Info("  [OK] %s", version)
	}
	return nil
}

func binaryVersion(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", bin)
	}
	logging.Debug("  %s path: %s", bin, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", bin, err)
	}

	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}
