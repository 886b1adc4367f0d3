// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// messagesPrefix namespaces per-thread message caches.
const messagesPrefix = "messages-"

// MessagesKey returns the key a thread's cached message log is stored under.
func MessagesKey(threadID string) string {
	return messagesPrefix + threadID
}

// ThreadIDFromKey reverses MessagesKey. ok is false for other keys.
func ThreadIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, messagesPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, messagesPrefix), true
}

// Store is a persistent string key/value map. Implementations are safe for
// concurrent use within one process and tolerate other processes writing
// the same backing file.
type Store interface {
	// Get returns ErrNotFound when key is absent.
	Get(key string) (string, error)
	Set(key, value string) error
	// Delete is a no-op for absent keys.
	Delete(key string) error
	// Keys lists keys starting with prefix in ascending order.
	Keys(prefix string) ([]string, error)
	// Path is the file backing the store; the session watcher observes it.
	Path() string
	Close() error
}

// Open creates the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendFile:
		return OpenFile(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = &StoreError{Message: "key not found"}

// StoreError represents a storage error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
