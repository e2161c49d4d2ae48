// Package logging builds the slog logger used by the tddb command.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Config selects the level and output format.
type Config struct {
	// Level is one of debug, info, warn or error. Unknown values mean info.
	Level string

	// Format is "json" or "text". Unknown values mean text.
	Format string
}

// New returns a logger writing to out. Every record carries
// service=tddb and the given store path.
func New(cfg Config, out io.Writer, store string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler

	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "tddb"),
		slog.String("store", store),
	})

	return slog.New(handler)
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
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
