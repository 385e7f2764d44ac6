package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	loggerMu   sync.RWMutex
	loggerOnce sync.Once
	base       zerolog.Logger
)

// parseLevel resolves the DEBUG and LOG_LEVEL values into a LogLevel.
// A truthy DEBUG always wins.
func parseLevel(debug, level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(debug)) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = parseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if !strings.EqualFold(strings.TrimSpace(format), "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(GetLevel().zerolog()).With().Timestamp().Logger()
}

func logger() *zerolog.Logger {
	loggerOnce.Do(func() {
		loggerMu.Lock()
		base = newLogger(os.Stderr, os.Getenv("LOG_FORMAT"))
		loggerMu.Unlock()
	})
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	l := base
	return &l
}

// SetOutput redirects all log output to w using the given format
// ("console" or "json"). Intended for tests and embedding.
func SetOutput(w io.Writer, format string) {
	loggerOnce.Do(func() {})
	loggerMu.Lock()
	base = newLogger(w, format)
	loggerMu.Unlock()
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	logger().Debug().Msgf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logger().Info().Msgf(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	logger().Warn().Msgf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logger().Error().Msgf(format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	logger().Fatal().Msgf(format, args...)
}

// Printf logs a message that should always print, regardless of level.
func Printf(format string, args ...interface{}) {
	logger().Log().Msgf(format, args...)
}

// JobLogger is a logger bound to a single upload job.
type JobLogger struct {
	l zerolog.Logger
}

// WithJob returns a logger that tags every line with the job id and base name.
func WithJob(id, baseName string) *JobLogger {
	ctx := logger().With().Str("job", id)
	if baseName != "" {
		ctx = ctx.Str("base", baseName)
	}
	return &JobLogger{l: ctx.Logger()}
}

// Debug logs a job-scoped debug message.
func (j *JobLogger) Debug(format string, args ...interface{}) {
	j.l.Debug().Msgf(format, args...)
}

// Info logs a job-scoped info message.
func (j *JobLogger) Info(format string, args ...interface{}) {
	j.l.Info().Msgf(format, args...)
}

// Warn logs a job-scoped warning.
func (j *JobLogger) Warn(format string, args ...interface{}) {
	j.l.Warn().Msgf(format, args...)
}

// Error logs a job-scoped error.
func (j *JobLogger) Error(format string, args ...interface{}) {
	j.l.Error().Msgf(format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
