// Package logging builds the process-wide structured logger from
// configuration. All Sentinel components log through log/slog with
// component-scoped loggers.
package logging

import (
	"io"
	"log/slog"
	"os"

	"mercator-hq/sentinel/pkg/config"
)

// Setup constructs a slog.Logger from the logging configuration and installs
// it as the process default. It returns the logger for callers that want to
// hold a reference directly.
func Setup(cfg *config.LoggingConfig) *slog.Logger {
	return SetupWithWriter(cfg, os.Stdout)
}

// SetupWithWriter is Setup with an explicit output writer. Intended for tests.
func SetupWithWriter(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a configuration level string to a slog.Level.
// Unknown strings map to Info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a logger scoped to the named component, attached to the
// current process default.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
