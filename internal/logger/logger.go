// Package logger configures the process-wide slog logger used by every
// engine in this module (version, matchspec, repodata, solver, installer).
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Init initializes the global slog logger with the given format ("json",
// "text") and level ("debug", "info", "warn", "error"). Every component
// should log via slog.Default().With("component", "...") rather than
// holding its own logger instance.
func Init(format, level string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// For is a convenience constructor for a component-scoped logger.
func For(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
