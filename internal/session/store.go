// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/storage"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the authentication state shown to the rest of the client.
type Status int

const (
	// StatusPending means the persisted token has not been read yet.
	StatusPending Status = iota
	StatusUnauthenticated
	StatusAuthenticated
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrMissingCredentials is returned by Login when email or password is blank.
var ErrMissingCredentials = errors.New("email and password are required")

// Authenticator exchanges credentials for a token. *api.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// =============================================================================
// STORE
// =============================================================================

// Store holds the token in memory and mirrors it to a storage.Store.
// It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	kv     storage.Store
	key    string
	token  string
	status Status

	initOnce sync.Once
	initErr  error

	subMu sync.Mutex
	subs  map[int]chan Status
	next  int

	log *slog.Logger
}

// New creates a Pending store persisting under key.
func New(kv storage.Store, key string) *Store {
	return &Store{
		kv:   kv,
		key:  key,
		subs: make(map[int]chan Status),
		log:  logging.Component("session"),
	}
}

// Init reads the persisted token. Only the first call does any work; later
// calls return the first result. A read failure leaves the store
// Unauthenticated.
func (s *Store) Init() error {
	s.initOnce.Do(func() {
		tok, err := s.read()
		s.mu.Lock()
		s.token = tok
		s.status = statusFor(tok)
		st := s.status
		s.mu.Unlock()

		s.initErr = err
		if err != nil {
			s.log.Warn("failed to rehydrate token", "error", err)
		}
		s.log.Info("session rehydrated", "status", st.String())
		s.notify(st)
	})
	return s.initErr
}

func (s *Store) read() (string, error) {
	tok, err := s.kv.Get(s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(tok), nil
}

func statusFor(tok string) Status {
	if tok == "" {
		return StatusUnauthenticated
	}
	return StatusAuthenticated
}

// Status returns the current authentication state.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Token returns the current token, or "" when unauthenticated.
// It implements api.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated reports whether a token is held.
func (s *Store) IsAuthenticated() bool {
	return s.Status() == StatusAuthenticated
}

// SetToken persists tok and then updates memory. On a write failure the
// store is left unchanged. An empty tok is the same as Clear.
func (s *Store) SetToken(tok string) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return s.Clear()
	}
	if err := s.kv.Set(s.key, tok); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.apply(tok)
	return nil
}

// Clear removes the token from storage and memory.
func (s *Store) Clear() error {
	err := s.kv.Delete(s.key)
	// Memory is cleared even if the delete failed so a logout always takes
	// effect in this process.
	s.apply("")
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Logout ends the session.
func (s *Store) Logout() error {
	s.log.Info("logout")
	return s.Clear()
}

// Login authenticates and stores the token. On failure the store is not
// touched and the error carries the user-visible message.
func (s *Store) Login(ctx context.Context, auth Authenticator, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	tok, err := auth.Login(ctx, email, password)
	if err != nil {
		s.log.Info("login failed", "email", email, "error", err)
		return err
	}
	if err := s.SetToken(tok); err != nil {
		return err
	}
	s.log.Info("login succeeded", "email", email)
	return nil
}

// Refresh re-reads the persisted token and reports whether it changed.
// Calls made before Init do nothing.
func (s *Store) Refresh() (bool, error) {
	if s.Status() == StatusPending {
		return false, nil
	}
	tok, err := s.read()
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	same := tok == s.token
	s.mu.RUnlock()
	if same {
		return false, nil
	}
	s.log.Info("token changed on disk", "authenticated", tok != "")
	s.apply(tok)
	return true, nil
}

func (s *Store) apply(tok string) {
	s.mu.Lock()
	prev := s.status
	s.token = tok
	s.status = statusFor(tok)
	st := s.status
	s.mu.Unlock()

	if st != prev {
		s.notify(st)
	}
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe returns a channel that receives the latest status after each
// change. Slow readers only see the most recent value. The returned func
// unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Status, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan Status, 1)
	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Store) notify(st Status) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		// Drop a stale unread value so the newest one fits.
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
