// Package logger builds the slog logger used by the sierra command.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level, format and destination of log output.
type Config struct {
	Level  slog.Level
	Format string // "json" or "text"
	Output io.Writer
}

// New creates a configured slog logger. Output defaults to stderr so command
// results on stdout stay machine readable.
func New(cfg Config) *slog.Logger {
	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

// ParseLevel converts a string to slog.Level. Unknown values give info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
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

// WithCommand tags every record with the CLI command being run.
func WithCommand(logger *slog.Logger, cmd string) *slog.Logger {
	return logger.With("command", cmd)
}
