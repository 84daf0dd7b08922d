// Package logging builds the structured loggers used across eventbridge.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a structured JSON logger for an eventbridge component.
// A nil w writes to stderr.
func New(component string, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With("component", component)
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// Printf adapts logger to the printf-style logging hooks some broker
// client libraries expose.
func Printf(logger *slog.Logger, level slog.Level) func(format string, args ...any) {
	return func(format string, args ...any) {
		ctx := context.Background()
		if !logger.Enabled(ctx, level) {
			return
		}
		logger.Log(ctx, level, fmt.Sprintf(format, args...))
	}
}
