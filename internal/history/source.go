// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/storage"
)

// Source produces the stored messages of a thread.
type Source interface {
	Fetch(ctx context.Context, threadID string) ([]model.Message, error)
}

// =============================================================================
// REMOTE SOURCE
// =============================================================================

// HistoryFetcher is the chat-history call of the backend. *api.Client
// implements it.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context, threadID string) (*api.History, error)
}

// RemoteSource reads history from the backend. The backend sends neither
// ids nor timestamps, so both are assigned at fetch time in arrival order.
type RemoteSource struct {
	client HistoryFetcher
	now    func() time.Time
}

// NewRemoteSource creates a source over client.
func NewRemoteSource(client HistoryFetcher) *RemoteSource {
	return &RemoteSource{client: client, now: time.Now}
}

// Fetch implements Source.
func (s *RemoteSource) Fetch(ctx context.Context, threadID string) ([]model.Message, error) {
	h, err := s.client.ChatHistory(ctx, threadID)
	if err != nil {
		return nil, err
	}
	at := s.now()
	msgs := make([]model.Message, 0, len(h.Messages))
	for _, m := range h.Messages {
		msgs = append(msgs, model.NewMessage(m.Role, m.Content, at))
	}
	return msgs, nil
}

// =============================================================================
// CACHE SOURCE
// =============================================================================

// CacheSource keeps each thread's messages as a JSON array in a key/value
// store under storage.MessagesKey.
type CacheSource struct {
	kv storage.Store
}

// NewCacheSource creates a cache over kv.
func NewCacheSource(kv storage.Store) *CacheSource {
	return &CacheSource{kv: kv}
}

// Fetch implements Source. A thread with no cache entry has no messages.
func (s *CacheSource) Fetch(ctx context.Context, threadID string) ([]model.Message, error) {
	raw, err := s.kv.Get(storage.MessagesKey(threadID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("decode cached messages for %s: %w", threadID, err)
	}
	return msgs, nil
}

// Save replaces the cached messages of threadID.
func (s *CacheSource) Save(threadID string, msgs []model.Message) error {
	if msgs == nil {
		msgs = []model.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return s.kv.Set(storage.MessagesKey(threadID), string(data))
}

// Append adds msg to the cached messages of threadID without loading it
// into a Log. Used for replies that arrive after the user moved on.
func (s *CacheSource) Append(ctx context.Context, threadID string, msg model.Message) error {
	msgs, err := s.Fetch(ctx, threadID)
	if err != nil {
		return err
	}
	return s.Save(threadID, append(msgs, msg))
}

// Delete drops the cache entry of threadID.
func (s *CacheSource) Delete(threadID string) error {
	return s.kv.Delete(storage.MessagesKey(threadID))
}

// Threads lists the thread ids that have a cache entry.
func (s *CacheSource) Threads() ([]string, error) {
	keys, err := s.kv.Keys(storage.MessagesKey(""))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := storage.ThreadIDFromKey(k); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
