package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name onto slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New builds a JSON slog logger writing to stderr, leaving stdout to the stdio transport.
func New(level string) *slog.Logger {
	return NewWriter(os.Stderr, level)
}

// NewWriter builds a JSON slog logger writing to w.
func NewWriter(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", "grades-mcp-server")
}
