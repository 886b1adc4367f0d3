// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging writes structured slog output to a file. The terminal UI
// owns stdout and stderr, so nothing is printed there; until Init is called
// every record is discarded.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	mu       sync.Mutex
	levelVar = new(slog.LevelVar)
	root     = slog.New(slog.NewTextHandler(io.Discard, nil))
	logFile  *os.File
	logPath  string
)

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Init opens path for appending and routes all loggers to it. Calling Init
// again closes the previous file first.
func Init(path, level string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logPath = path
	levelVar.Set(ParseLevel(level))
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))

	root.Info("logger initialized", "path", path, "level", levelVar.Level().String())
	return nil
}

// InitWriter routes all loggers to w. Used by line-mode commands run with
// --verbose and by tests.
func InitWriter(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	levelVar.Set(ParseLevel(level))
	root = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

// SetLevel changes the minimum level without reopening the file.
func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

// Path returns the active log file, or "" when logging to a writer or nowhere.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// L returns the root logger.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return root
}

// Component returns a logger tagged with component=name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Close flushes and closes the log file. Later records are discarded.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	logPath = ""
	root = slog.New(slog.NewTextHandler(io.Discard, nil))
}
