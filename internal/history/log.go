// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"log/slog"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
)

// Log is the message list of the visible thread.
//
// Loads are split into Begin and Apply so the fetch can run without holding
// the caller's lock. Each Begin for a new thread bumps a generation and
// Apply ignores results from older generations, so a slow fetch for a
// thread the user already left never overwrites the current one.
//
// Log is not safe for concurrent use.
type Log struct {
	threadID string
	gen      uint64
	loading  bool
	msgs     []model.Message
	cache    *CacheSource
	log      *slog.Logger
}

// New creates a log whose messages live on the backend.
func New() *Log {
	return &Log{log: logging.Component("history")}
}

// NewLocal creates a log that writes every mutation through to cache.
func NewLocal(cache *CacheSource) *Log {
	l := New()
	l.cache = cache
	return l
}

// Local reports whether the log writes through to a cache.
func (l *Log) Local() bool {
	return l.cache != nil
}

// Begin switches the log to threadID. When threadID is already shown or
// loading it returns fetch=false and leaves everything alone. Otherwise the
// log is cleared and the returned generation must be passed to Apply.
// An empty threadID clears the log without a fetch.
func (l *Log) Begin(threadID string) (gen uint64, fetch bool) {
	if threadID != "" && threadID == l.threadID {
		return l.gen, false
	}
	l.gen++
	l.threadID = threadID
	l.msgs = nil
	l.loading = threadID != ""
	return l.gen, l.loading
}

// Apply installs the result of the fetch started by Begin. It returns false
// when gen is stale. A fetch error clears the log.
func (l *Log) Apply(gen uint64, msgs []model.Message, err error) bool {
	if gen != l.gen {
		l.log.Debug("discarding stale history", "gen", gen, "current", l.gen)
		return false
	}
	l.loading = false
	if err != nil {
		l.log.Warn("failed to load history", "thread", l.threadID, "error", err)
		l.msgs = nil
		return true
	}
	l.msgs = append([]model.Message(nil), msgs...)
	return true
}

// Invalidate forgets which thread is loaded so the next Begin fetches again.
func (l *Log) Invalidate() {
	l.threadID = ""
	l.gen++
	l.loading = false
}

// Bind attaches a log that was started without a thread to threadID. It is
// used when the backend assigned the id on the first send. It has no effect
// when the log already belongs to a thread.
func (l *Log) Bind(threadID string) bool {
	if l.threadID != "" || threadID == "" {
		return false
	}
	l.threadID = threadID
	l.persist()
	return true
}

// Append adds msg to the end and returns the new length. Thread metadata is
// not touched here.
func (l *Log) Append(msg model.Message) int {
	l.msgs = append(l.msgs, msg)
	l.persist()
	return len(l.msgs)
}

func (l *Log) persist() {
	if l.cache == nil || l.threadID == "" {
		return
	}
	if err := l.cache.Save(l.threadID, l.msgs); err != nil {
		l.log.Warn("failed to write message cache", "thread", l.threadID, "error", err)
	}
}

// Messages returns a copy of the log.
func (l *Log) Messages() []model.Message {
	return append([]model.Message(nil), l.msgs...)
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.msgs)
}

// Last returns the newest message.
func (l *Log) Last() (model.Message, bool) {
	if len(l.msgs) == 0 {
		return model.Message{}, false
	}
	return l.msgs[len(l.msgs)-1], true
}

// UserCount returns the number of user-authored messages.
func (l *Log) UserCount() int {
	return model.CountUser(l.msgs)
}

// ThreadID returns the thread the log belongs to, or "".
func (l *Log) ThreadID() string {
	return l.threadID
}

// Loading reports whether a fetch started by Begin is outstanding.
func (l *Log) Loading() bool {
	return l.loading
}

// Generation returns the current load generation.
func (l *Log) Generation() uint64 {
	return l.gen
}

// Reset empties the log and forgets the thread.
func (l *Log) Reset() {
	l.Invalidate()
	l.msgs = nil
}
