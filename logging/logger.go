// Package logging provides structured logging for sandboxctl.
//
// It wraps log/slog with the handful of conveniences the orchestrator and
// policies actually need: a process-wide default logger (SetDefault/Default)
// that each re-exec'd stage builds for itself, and level selection from
// SANDBOXCTL_LOG (falling back to RUST_LOG, for parity with the tool this
// was ported from).
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
	// loggerMu protects defaultLogger.
	loggerMu sync.RWMutex
)

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Config holds the logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level slog.Level
	// Format is the output format ("text" or "json").
	Format string
	// Output is the log output destination.
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
}

// NewLogger creates a new structured logger with the given configuration.
func NewLogger(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return slog.New(handler)
}

// SetDefault sets the default global logger. The orchestrator's re-exec
// stages each build their own logger from the environment rather than
// inheriting this one across exec, so SetDefault only needs to hold within
// a single process's lifetime.
func SetDefault(logger *slog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the default global logger.
func Default() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// WithPID returns a logger with process ID context, used by the parent to
// tag the log lines it emits while supervising a specific stage1 child.
func WithPID(logger *slog.Logger, pid int) *slog.Logger {
	return logger.With(slog.Int("pid", pid))
}

// ParseLevel parses a log level string and returns the corresponding slog.Level.
// Valid values: "debug", "info", "warn"/"warning", "error", plus the Rust-style
// "trace" (mapped to Debug) accepted for RUST_LOG compatibility.
// Returns slog.LevelInfo for invalid values.
func ParseLevel(level string) slog.Level {
	switch level {
	case "trace", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromEnv resolves the log level from SANDBOXCTL_LOG, falling back to
// RUST_LOG for parity with the tool this was ported from, and finally to
// slog.LevelInfo if neither is set or recognized.
func LevelFromEnv() slog.Level {
	if v := os.Getenv("SANDBOXCTL_LOG"); v != "" {
		return ParseLevel(v)
	}
	if v := os.Getenv("RUST_LOG"); v != "" {
		return ParseLevel(v)
	}
	return slog.LevelInfo
}
