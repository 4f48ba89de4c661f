// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logger provides structured diagnostic logging for npchat.
//
// It wraps log/slog with a package-level DefaultLogger whose level comes
// from NPCHAT_LOG_LEVEL (debug, info, warn, error). Output goes to stderr
// unless redirected with SetOutput; the TUI redirects to a file so log
// lines never land on top of the rendered screen.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	DefaultLogger *slog.Logger

	mu     sync.Mutex
	level  = new(slog.LevelVar)
	output io.Writer = os.Stderr
)

func init() {
	level.Set(slog.LevelWarn)
	if env := os.Getenv("NPCHAT_LOG_LEVEL"); env != "" {
		if lvl, ok := ParseLevel(env); ok {
			level.Set(lvl)
		}
	}
	rebuild()
}

func rebuild() {
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level.
// Reports false for unknown names.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// SetLevel changes the minimum level for all loggers derived from DefaultLogger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// SetVerbose switches between debug and warn levels.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelWarn)
	}
}

// SetOutput redirects log output. Loggers obtained before the call keep
// writing to the previous destination.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

// OpenFile redirects log output to the named file, creating it 0600.
// The returned closer restores stderr and closes the file.
func OpenFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	SetOutput(f)
	return func() error {
		SetOutput(os.Stderr)
		return f.Close()
	}, nil
}

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return DefaultLogger.With(args...)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs at error level with a context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
