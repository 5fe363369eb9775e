// Package log builds the slog loggers the engine's components receive
// through their constructors. There is no global logger: each component
// gets one injected and scopes it with With("component", ...).
package log

import (
	"io"
	"log/slog"
	"os"
)

// Config selects level and format.
type Config struct {
	Level     slog.Level
	JSON      bool // JSON handler instead of text
	AddSource bool
}

// New creates a logger writing to stderr.
func New(cfg Config) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests pass a buffer to
// inspect output.
func NewWithWriter(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNop discards everything. Test use only.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
