// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups the burst of events one store write produces.
const DefaultDebounce = 150 * time.Millisecond

// Watcher refreshes a Store when its backing file changes. The parent
// directory is watched because both backends replace or append to sibling
// files (temp-file renames, SQLite -wal files).
type Watcher struct {
	store    *Store
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	log      *slog.Logger

	mu    sync.Mutex
	timer *time.Timer

	started bool
	done    chan struct{}
}

// NewWatcher prepares a watcher for the store file at path.
func NewWatcher(store *Store, path string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    store,
		path:     path,
		debounce: debounce,
		watcher:  fw,
		log:      store.log.With("watcher", filepath.Base(path)),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.watcher.Close()
		return err
	}
	w.started = true
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stop()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				w.stop()
				return
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.stop()
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if _, err := w.store.Refresh(); err != nil {
			w.log.Warn("refresh after change failed", "error", err)
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.watcher.Close()
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}
