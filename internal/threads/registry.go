// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package threads keeps the ordered list of conversations shown in the
// sidebar and the current selection.
//
// Entries are immutable *model.Thread values. Every visible change swaps in
// a new pointer and bumps Version; a no-op update keeps both untouched so
// the UI can skip a redraw.
package threads

import (
	"context"
	"log/slog"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
)

// Remote is the part of the backend the registry needs. *api.Client
// implements it.
type Remote interface {
	ListThreads(ctx context.Context) ([]*model.Thread, error)
	CreateThread(ctx context.Context, title string) (*model.Thread, error)
	UpdateThread(ctx context.Context, id, title string) (*model.Thread, error)
}

// Registry is the ordered thread list. It is not safe for concurrent use;
// chatflow.Controller serializes access.
type Registry struct {
	remote   Remote
	threads  []*model.Thread
	selected string
	version  uint64
	loaded   bool
	log      *slog.Logger
}

// New creates an empty registry backed by remote.
func New(remote Remote) *Registry {
	return &Registry{
		remote: remote,
		log:    logging.Component("threads"),
	}
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Threads returns a copy of the ordered entry slice. The pointers are shared
// and must not be mutated.
func (r *Registry) Threads() []*model.Thread {
	out := make([]*model.Thread, len(r.threads))
	copy(out, r.threads)
	return out
}

// Len returns the number of threads.
func (r *Registry) Len() int {
	return len(r.threads)
}

// Get returns the entry for id, or nil.
func (r *Registry) Get(id string) *model.Thread {
	if i := r.index(id); i >= 0 {
		return r.threads[i]
	}
	return nil
}

// Selected returns the selected thread id, or "".
func (r *Registry) Selected() string {
	return r.selected
}

// SelectedThread returns the selected entry, or nil.
func (r *Registry) SelectedThread() *model.Thread {
	return r.Get(r.selected)
}

// Version increases on every visible change.
func (r *Registry) Version() uint64 {
	return r.version
}

// Loaded reports whether Load has completed at least once.
func (r *Registry) Loaded() bool {
	return r.loaded
}

func (r *Registry) index(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range r.threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) changed() {
	r.version++
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Load replaces the list with the remote one, sorted most recent first.
// On failure the registry is emptied and the error returned for logging;
// the caller carries on with an empty list.
func (r *Registry) Load(ctx context.Context) error {
	list, err := r.remote.ListThreads(ctx)
	return r.Replace(list, err)
}

// Replace is the local half of Load: it installs the result of a
// ListThreads call made elsewhere and returns err unchanged.
func (r *Registry) Replace(list []*model.Thread, err error) error {
	r.loaded = true
	if err != nil {
		r.log.Warn("failed to load threads", "error", err)
		r.threads = nil
		r.selected = ""
		r.changed()
		return err
	}

	// Previews are local state; keep them across reloads.
	previews := make(map[string]string, len(r.threads))
	for _, t := range r.threads {
		if t.LastMessage != "" {
			previews[t.ID] = t.LastMessage
		}
	}
	list = append([]*model.Thread(nil), list...)
	for i, t := range list {
		if p, ok := previews[t.ID]; ok && t.LastMessage == "" {
			list[i] = t.WithLastMessage(p)
		}
	}

	model.SortThreads(list)
	r.threads = list
	if r.index(r.selected) < 0 {
		r.selected = ""
	}
	r.changed()
	r.log.Debug("threads loaded", "count", len(list))
	return nil
}

// Create makes a thread on the backend and inserts it at the head. An empty
// title uses model.DefaultThreadTitle. The new thread is not selected.
func (r *Registry) Create(ctx context.Context, title string) (*model.Thread, error) {
	if title == "" {
		title = model.DefaultThreadTitle
	}
	t, err := r.remote.CreateThread(ctx, title)
	if err != nil {
		r.log.Warn("failed to create thread", "error", err)
		return nil, err
	}
	r.Insert(t)
	return t, nil
}

// Insert puts t at the head, replacing any entry with the same id. Used for
// threads the backend created implicitly.
func (r *Registry) Insert(t *model.Thread) {
	if i := r.index(t.ID); i >= 0 {
		r.threads = append(r.threads[:i], r.threads[i+1:]...)
	}
	r.threads = append([]*model.Thread{t}, r.threads...)
	r.changed()
}

// Rename updates the title on the backend, then replaces only the title of
// the local entry. On failure nothing changes locally and the error is
// returned; it is never retried. For an id the registry does not hold, the
// backend's copy is returned and nothing is inserted.
func (r *Registry) Rename(ctx context.Context, id, title string) (*model.Thread, error) {
	remote, err := r.remote.UpdateThread(ctx, id, title)
	if err != nil {
		r.log.Info("rename failed", "thread", id, "error", err)
		return nil, err
	}
	if t := r.SetTitle(id, title); t != nil {
		return t, nil
	}
	if remote == nil || remote.ID == "" {
		return &model.Thread{ID: id, Title: title}, nil
	}
	return remote, nil
}

// SetTitle is the local half of Rename. It returns the updated entry, or nil
// for an unknown id. An unchanged title keeps the existing entry.
func (r *Registry) SetTitle(id, title string) *model.Thread {
	i := r.index(id)
	if i < 0 {
		return nil
	}
	if r.threads[i].Title == title {
		return r.threads[i]
	}
	r.threads[i] = r.threads[i].WithTitle(title)
	r.changed()
	return r.threads[i]
}

// Drop removes id locally after the backend deleted it. When the selected
// thread goes, the new head becomes selected. It returns the selection
// afterwards, which is "" only when the registry is now empty; replacing the
// last thread is up to the caller.
func (r *Registry) Drop(id string) string {
	if i := r.index(id); i >= 0 {
		r.threads = append(r.threads[:i], r.threads[i+1:]...)
		r.changed()
	}
	if len(r.threads) == 0 {
		r.selected = ""
		return ""
	}
	if r.selected == id || r.index(r.selected) < 0 {
		r.selected = r.threads[0].ID
		r.changed()
	}
	return r.selected
}

// Select marks id as the current thread. Unknown ids are ignored and false
// is returned.
func (r *Registry) Select(id string) bool {
	if r.index(id) < 0 {
		return false
	}
	if r.selected != id {
		r.selected = id
		r.changed()
	}
	return true
}

// Neighbor returns the id offset positions from the selection, clamped to
// the list bounds. Used for keyboard navigation.
func (r *Registry) Neighbor(offset int) string {
	if len(r.threads) == 0 {
		return ""
	}
	i := r.index(r.selected)
	if i < 0 {
		return r.threads[0].ID
	}
	i += offset
	if i < 0 {
		i = 0
	}
	if i >= len(r.threads) {
		i = len(r.threads) - 1
	}
	return r.threads[i].ID
}

// TouchLastMessage sets the preview of id to content. It reports false and
// changes nothing, pointer included, when content is already the preview
// or id is unknown.
func (r *Registry) TouchLastMessage(id, content string) bool {
	i := r.index(id)
	if i < 0 || r.threads[i].LastMessage == content {
		return false
	}
	r.threads[i] = r.threads[i].WithLastMessage(content)
	r.changed()
	return true
}

// Reset forgets every thread, used on logout.
func (r *Registry) Reset() {
	r.threads = nil
	r.selected = ""
	r.loaded = false
	r.changed()
}
