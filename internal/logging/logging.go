// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the slog loggers used by the CLI and by runs.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const runLogFile = "run.log"

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// NewConsole returns a text logger writing to w at the given level.
func NewConsole(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// FileLogger is a JSON logger backed by a file inside a session's logs area.
type FileLogger struct {
	Logger *slog.Logger
	Close  func() error
	Path   string
}

// NewRunLogger opens logsDir/run.log for appending and returns a logger that
// writes JSON records there and also forwards to console (if non-nil).
func NewRunLogger(logsDir string, console *slog.Logger) (FileLogger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return FileLogger{Logger: OrNop(console), Close: func() error { return nil }}, err
	}
	path := filepath.Join(logsDir, runLogFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return FileLogger{Logger: OrNop(console), Close: func() error { return nil }}, err
	}
	handler := slog.Handler(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if console != nil {
		handler = tee{handler, console.Handler()}
	}
	return FileLogger{
		Logger: slog.New(handler),
		Close:  file.Close,
		Path:   path,
	}, nil
}

// tee fans records out to several handlers.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
