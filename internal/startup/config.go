package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"hls-ingest/internal/identity"
	"hls-ingest/internal/jobs"
	"hls-ingest/internal/logging"
	"hls-ingest/internal/pipeline"
	"hls-ingest/internal/transcoder"
	"hls-ingest/internal/workers"
)

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool

	UploadsDir    string
	VideosDir     string
	ThumbnailsDir string
	DatabaseDir   string

	FrontendOrigins []string

	FFmpegPath      string
	FFprobePath     string
	StageTimeout    time.Duration
	SegmentDuration time.Duration
	VideoMode       transcoder.VideoMode
	ScaleHeight     int

	ThumbnailOffset time.Duration
	ThumbnailWidth  int
	ThumbnailHeight int
	ThumbnailPolicy pipeline.ThumbnailPolicy

	NameStrategy      identity.Strategy
	MaxUploadBytes    int64
	MaxConcurrentJobs int

	LogStaticFiles  bool
	LogHealthChecks bool

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from an optional .env file
// and environment variables. It does not touch the filesystem roots; call
// EnsureRoots for that.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to load .env file: %v", err)
	} else if err == nil {
		logging.Info("Loaded environment from .env")
	}

	section("CONFIGURATION")

	cfg, err := parseConfig()
	if err != nil {
		return nil, err
	}
	cfg.log()
	return cfg, nil
}

// parseConfig reads the environment into a Config. Malformed numbers and
// durations fall back to defaults; unknown enum values are errors.
func parseConfig() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "5000"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),
		StageTimeout:    getEnvDuration("STAGE_TIMEOUT", 30*time.Minute),
		SegmentDuration: getEnvDuration("SEGMENT_DURATION", 10*time.Second),
		ScaleHeight:     getEnvInt("SCALE_HEIGHT", 0),
		ThumbnailOffset: getEnvDuration("THUMBNAIL_OFFSET", time.Second),
		ThumbnailWidth:  getEnvInt("THUMBNAIL_WIDTH", 320),
		ThumbnailHeight: getEnvInt("THUMBNAIL_HEIGHT", 180),
		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 0),
		LogStaticFiles:  getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
		FrontendOrigins: splitList(getEnv("FRONTEND_ORIGIN", "*")),
	}

	var err error
	dirs := []struct {
		dst      *string
		key, def string
	}{
		{&cfg.UploadsDir, "UPLOADS_DIR", "./uploads"},
		{&cfg.VideosDir, "VIDEOS_DIR", "./videos"},
		{&cfg.ThumbnailsDir, "THUMBNAILS_DIR", "./thumbnails"},
		{&cfg.DatabaseDir, "DATABASE_DIR", "./data"},
	}
	for _, d := range dirs {
		*d.dst, err = filepath.Abs(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", d.key, err)
		}
	}
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, jobs.FileName)

	if cfg.VideoMode, err = transcoder.ParseVideoMode(getEnv("VIDEO_MODE", "auto")); err != nil {
		return nil, fmt.Errorf("VIDEO_MODE: %w", err)
	}
	if cfg.ThumbnailPolicy, err = pipeline.ParseThumbnailPolicy(getEnv("THUMBNAIL_POLICY", "sequential")); err != nil {
		return nil, fmt.Errorf("THUMBNAIL_POLICY: %w", err)
	}
	if cfg.NameStrategy, err = identity.ParseStrategy(getEnv("NAME_STRATEGY", "none")); err != nil {
		return nil, fmt.Errorf("NAME_STRATEGY: %w", err)
	}
	if cfg.MaxConcurrentJobs, err = workers.ParseLimit(getEnv("MAX_CONCURRENT_JOBS", "0")); err != nil {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS: %w", err)
	}

	if cfg.SegmentDuration < time.Second {
		logging.Warn("  SEGMENT_DURATION %v is below 1s, using default: 10s", cfg.SegmentDuration)
		cfg.SegmentDuration = 10 * time.Second
	}
	if cfg.StageTimeout <= 0 {
		logging.Warn("  STAGE_TIMEOUT must be positive, using default: 30m")
		cfg.StageTimeout = 30 * time.Minute
	}
	if cfg.ScaleHeight < 0 || cfg.ScaleHeight%2 != 0 {
		logging.Warn("  SCALE_HEIGHT %d must be even and non-negative, keeping source size", cfg.ScaleHeight)
		cfg.ScaleHeight = 0
	}
	if cfg.VideoMode == transcoder.ModeCopy && cfg.ScaleHeight > 0 {
		return nil, fmt.Errorf("VIDEO_MODE=copy cannot be combined with SCALE_HEIGHT=%d", cfg.ScaleHeight)
	}
	if cfg.ThumbnailWidth <= 0 || cfg.ThumbnailHeight <= 0 {
		logging.Warn("  Invalid thumbnail size %dx%d, using default: 320x180", cfg.ThumbnailWidth, cfg.ThumbnailHeight)
		cfg.ThumbnailWidth, cfg.ThumbnailHeight = 320, 180
	}
	if cfg.ThumbnailOffset < 0 {
		logging.Warn("  THUMBNAIL_OFFSET must not be negative, using default: 1s")
		cfg.ThumbnailOffset = time.Second
	}
	if cfg.MaxUploadBytes < 0 {
		cfg.MaxUploadBytes = 0
	}

	return cfg, nil
}

func (c *Config) log() {
	logging.Info("  PORT:                %s", c.Port)
	logging.Info("  METRICS_PORT:        %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	logging.Info("  UPLOADS_DIR:         %s", c.UploadsDir)
	logging.Info("  VIDEOS_DIR:          %s", c.VideosDir)
	logging.Info("  THUMBNAILS_DIR:      %s", c.ThumbnailsDir)
	logging.Info("  DATABASE_DIR:        %s", c.DatabaseDir)
	logging.Info("  FRONTEND_ORIGIN:     %s", strings.Join(c.FrontendOrigins, ","))
	logging.Info("  FFMPEG_PATH:         %s", c.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", c.FFprobePath)
	logging.Info("  STAGE_TIMEOUT:       %v", c.StageTimeout)
	logging.Info("  SEGMENT_DURATION:    %v", c.SegmentDuration)
	logging.Info("  VIDEO_MODE:          %s", c.VideoMode)
	logging.Info("  SCALE_HEIGHT:        %d", c.ScaleHeight)
	logging.Info("  THUMBNAIL:           %dx%d at %v", c.ThumbnailWidth, c.ThumbnailHeight, c.ThumbnailOffset)
	logging.Info("  THUMBNAIL_POLICY:    %s", c.ThumbnailPolicy)
	logging.Info("  NAME_STRATEGY:       %s", c.NameStrategy)
	if c.MaxUploadBytes > 0 {
		logging.Info("  MAX_UPLOAD_BYTES:    %d", c.MaxUploadBytes)
	} else {
		logging.Info("  MAX_UPLOAD_BYTES:    unlimited")
	}
	if c.MaxConcurrentJobs > 0 {
		logging.Info("  MAX_CONCURRENT_JOBS: %d", c.MaxConcurrentJobs)
	} else {
		logging.Info("  MAX_CONCURRENT_JOBS: unlimited")
	}
	logging.Info("  LOG_STATIC_FILES:    %v", c.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
}

// Roots returns the filesystem roots used by the identity namespace.
func (c *Config) Roots() identity.Roots {
	return identity.Roots{
		Uploads:    c.UploadsDir,
		Videos:     c.VideosDir,
		Thumbnails: c.ThumbnailsDir,
	}
}

// Volumes maps metric volume labels to their directories.
func (c *Config) Volumes() map[string]string {
	return map[string]string{
		"uploads":    c.UploadsDir,
		"videos":     c.VideosDir,
		"thumbnails": c.ThumbnailsDir,
		"database":   c.DatabaseDir,
	}
}

// TranscoderConfig builds the engine configuration.
func (c *Config) TranscoderConfig() transcoder.Config {
	d := transcoder.DefaultMediaDescriptor()
	d.VideoMode = c.VideoMode
	d.SegmentDuration = c.SegmentDuration
	d.ScaleHeight = c.ScaleHeight

	thumb := transcoder.DefaultThumbnailSpec()
	thumb.Offset = c.ThumbnailOffset
	thumb.Width = c.ThumbnailWidth
	thumb.Height = c.ThumbnailHeight

	return transcoder.Config{
		FFmpegPath:   c.FFmpegPath,
		FFprobePath:  c.FFprobePath,
		StageTimeout: c.StageTimeout,
		Descriptor:   d,
		Thumbnail:    thumb,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
