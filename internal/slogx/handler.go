// Package slogx provides the supervisor's operational logging: a
// color-aware console handler for interactive use, and a rotating file
// handler (via lumberjack) for the supervisor's own log, as distinct from
// the in-memory per-task ring buffers that hold captured child output.
package slogx

import (
	"context"
	"io"
	"log/slog"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// ColorTextHandler wraps slog.TextHandler, prefixing the level with an ANSI
// color code for readability on an interactive terminal.
type ColorTextHandler struct {
	*slog.TextHandler
}

// NewColorTextHandler builds a ColorTextHandler writing to w.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	return &ColorTextHandler{TextHandler: slog.NewTextHandler(w, opts)}
}

func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	var color string
	switch r.Level {
	case slog.LevelDebug:
		color = "\033[36m"
	case slog.LevelInfo:
		color = "\033[32m"
	case slog.LevelWarn:
		color = "\033[33m"
	case slog.LevelError:
		color = "\033[31m"
	default:
		color = "\033[0m"
	}
	r.Message = color + r.Level.String() + "\033[0m  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}

// FileConfig describes where the supervisor's own operational log is
// rotated to. It never receives captured task stdout/stderr.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
	defaultMaxAgeDays = 7
)

// New builds the process-wide logger. When cfg.Path is empty, logs go only
// to the console handler; otherwise a rotating file handler is added via a
// slog.Handler that fans out to both.
func New(console io.Writer, cfg FileConfig) *slog.Logger {
	consoleHandler := NewColorTextHandler(console, nil)
	if cfg.Path == "" {
		return slog.New(consoleHandler)
	}
	fileWriter := &lj.Logger{
		Filename:   cfg.Path,
		MaxSize:    valOr(cfg.MaxSizeMB, defaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, defaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, defaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	fileHandler := slog.NewJSONHandler(fileWriter, nil)
	return slog.New(fanoutHandler{console: consoleHandler, file: fileHandler})
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// fanoutHandler sends every record to both the console and rotating file
// handlers; it is intentionally minimal (no separate level filtering per
// sink) since the supervisor's operational log volume is low.
type fanoutHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return f.console.Enabled(ctx, level) || f.file.Enabled(ctx, level)
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := f.console.Handle(ctx, r.Clone()); err != nil {
		return err
	}
	return f.file.Handle(ctx, r.Clone())
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanoutHandler{console: f.console.WithAttrs(attrs), file: f.file.WithAttrs(attrs)}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return fanoutHandler{console: f.console.WithGroup(name), file: f.file.WithGroup(name)}
}
