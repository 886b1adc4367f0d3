// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/model"
)

// =============================================================================
// HANDLER PLUMBING
// =============================================================================

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func codedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

type handlerFunc func(r *http.Request, u *user) (any, error)

// handle wraps fn with call counting, injected failures and bearer auth,
// and writes the result as JSON. Errors become {"detail": ...}.
func (s *Server) handle(op api.Op, auth bool, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.serve(op, auth, fn, r)
		if err != nil {
			code := http.StatusInternalServerError
			var cerr *codedError
			if errors.As(err, &cerr) {
				code = cerr.code
			}
			writeJSON(w, code, errorBody(err))
			return
		}
		if res == nil {
			res = struct{}{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) serve(op api.Op, auth bool, fn handlerFunc, r *http.Request) (any, error) {
	s.mu.Lock()
	s.calls[op]++
	if f := s.failures[op]; f != nil {
		if f.times > 0 {
			f.times--
			if f.times == 0 {
				delete(s.failures, op)
			}
		}
		s.mu.Unlock()
		return nil, &codedError{err: errors.New(f.detail), code: f.status}
	}

	var u *user
	if auth {
		u = s.authenticateLocked(r)
		if u == nil {
			s.mu.Unlock()
			return nil, codedErrorf(http.StatusUnauthorized, "Could not validate credentials")
		}
	}
	s.mu.Unlock()
	return fn(r, u)
}

func (s *Server) authenticateLocked(r *http.Request) *user {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return nil
	}
	email, ok := s.tokens[strings.TrimSpace(tok)]
	if !ok {
		return nil
	}
	return s.users[email]
}

func errorBody(err error) map[string]any {
	if err.Error() == "" {
		return map[string]any{}
	}
	return map[string]any{"detail": err.Error()}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func parseBody[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return data, codedErrorf(http.StatusUnprocessableEntity, "unable to parse request body")
	}
	return data, nil
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type userPublic struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
}

type threadPublic struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type threadsPublic struct {
	Data  []threadPublic `json:"data"`
	Count int            `json:"count"`
}

// timeLayout matches the zone-less timestamps the real backend emits.
const timeLayout = "2006-01-02T15:04:05.000000"

func publicUser(u *user) userPublic {
	return userPublic{ID: u.ID, Email: u.Email, FullName: u.FullName, IsActive: true}
}

func publicThread(t *thread) threadPublic {
	return threadPublic{
		ID:        t.ID,
		Title:     t.Title,
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt.Format(timeLayout),
		UpdatedAt: t.UpdatedAt.Format(timeLayout),
	}
}

// =============================================================================
// AUTH
// =============================================================================

func (s *Server) login(r *http.Request, _ *user) (any, error) {
	if err := r.ParseForm(); err != nil {
		return nil, codedErrorf(http.StatusUnprocessableEntity, "unable to parse form")
	}
	email := strings.ToLower(strings.TrimSpace(r.PostForm.Get("username")))
	password := r.PostForm.Get("password")

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[email]
	if u == nil || u.Password != password {
		return nil, codedErrorf(http.StatusBadRequest, "Incorrect email or password")
	}
	return api.Token{AccessToken: s.issueLocked(email), TokenType: "bearer"}, nil
}

func (s *Server) signup(r *http.Request, _ *user) (any, error) {
	req, err := parseBody[api.SignupRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Email == "" || len(req.Password) < 8 {
		return nil, codedErrorf(http.StatusUnprocessableEntity, "email and a password of at least 8 characters are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[strings.ToLower(req.Email)] != nil {
		return nil, codedErrorf(http.StatusBadRequest, "The user with this email already exists in the system")
	}
	u := s.addUserLocked(req.Email, req.Password, req.FullName)
	return publicUser(u), nil
}

func (s *Server) testToken(_ *http.Request, u *user) (any, error) {
	return publicUser(u), nil
}

// =============================================================================
// THREADS
// =============================================================================

func (s *Server) listThreads(_ *http.Request, u *user) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := threadsPublic{Data: []threadPublic{}}
	for _, t := range s.sortedLocked(u.ID) {
		list.Data = append(list.Data, publicThread(t))
	}
	list.Count = len(list.Data)
	return list, nil
}

// ownedLocked resolves the {id} URL parameter to a thread of u.
func (s *Server) ownedLocked(r *http.Request, u *user) (*thread, error) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return nil, codedErrorf(http.StatusUnprocessableEntity, "invalid thread id")
	}
	t := s.threads[id]
	if t == nil {
		return nil, codedErrorf(http.StatusNotFound, "Thread not found")
	}
	if t.UserID != u.ID {
		return nil, codedErrorf(http.StatusBadRequest, "Not enough permissions")
	}
	return t, nil
}

func (s *Server) getThread(r *http.Request, u *user) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ownedLocked(r, u)
	if err != nil {
		return nil, err
	}
	return publicThread(t), nil
}

type threadTitle struct {
	Title *string `json:"title"`
}

func (s *Server) createThread(r *http.Request, u *user) (any, error) {
	req, err := parseBody[threadTitle](r)
	if err != nil {
		return nil, err
	}
	if req.Title == nil || *req.Title == "" {
		return nil, codedErrorf(http.StatusUnprocessableEntity, "title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return publicThread(s.createThreadLocked(u.ID, *req.Title)), nil
}

func (s *Server) updateThread(r *http.Request, u *user) (any, error) {
	req, err := parseBody[threadTitle](r)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ownedLocked(r, u)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		t.Title = *req.Title
		t.UpdatedAt = s.now().UTC()
	}
	return publicThread(t), nil
}

func (s *Server) deleteThread(r *http.Request, u *user) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ownedLocked(r, u)
	if err != nil {
		return nil, err
	}
	delete(s.threads, t.ID)
	delete(s.messages, t.ID)
	return map[string]string{"message": "Thread deleted successfully"}, nil
}

// =============================================================================
// CHATBOT
// =============================================================================

type chatMessage struct {
	Content  string `json:"content"`
	ThreadID string `json:"thread_id"`
}

type chatReply struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id,omitempty"`
}

// chat answers content. Without a thread_id a thread is created and its id
// returned with the reply.
func (s *Server) chat(r *http.Request, u *user) (any, error) {
	req, err := parseBody[chatMessage](r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, codedErrorf(http.StatusUnprocessableEntity, "content is required")
	}

	s.mu.Lock()
	var out chatReply
	if req.ThreadID == "" {
		t := s.createThreadLocked(u.ID, model.DefaultThreadTitle)
		req.ThreadID = t.ID
		out.ThreadID = t.ID
	} else if t := s.threads[req.ThreadID]; t == nil || t.UserID != u.ID {
		s.mu.Unlock()
		return nil, codedErrorf(http.StatusNotFound, "Thread not found")
	}
	reply := s.reply
	s.mu.Unlock()

	// The chatbot runs outside the lock; it may be slow in tests.
	out.Response = reply(req.ThreadID, req.Content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.threads[req.ThreadID]; t != nil {
		s.messages[req.ThreadID] = append(s.messages[req.ThreadID],
			api.HistoryMessage{Content: req.Content, Role: model.RoleUser},
			api.HistoryMessage{Content: out.Response, Role: model.RoleAssistant})
		t.UpdatedAt = s.now().UTC()
	}
	return out, nil
}

type historyRequest struct {
	ThreadID string `json:"thread_id"`
}

type historyResponse struct {
	ThreadID string               `json:"thread_id"`
	Messages []api.HistoryMessage `json:"messages"`
}

func (s *Server) chatHistory(r *http.Request, u *user) (any, error) {
	req, err := parseBody[historyRequest](r)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.threads[req.ThreadID]
	if t == nil || t.UserID != u.ID {
		return nil, codedErrorf(http.StatusNotFound, "Thread not found")
	}
	msgs := append([]api.HistoryMessage{}, s.messages[req.ThreadID]...)
	return historyResponse{ThreadID: req.ThreadID, Messages: msgs}, nil
}
