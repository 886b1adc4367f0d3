// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockapi is an in-memory implementation of the chat backend's
// /api/v1 surface. Tests drive the real client against it through
// httptest, and the mock-server command serves it for offline demos.
//
// Any route can be told to fail with a status and detail, and every route
// counts its calls.
package mockapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
)

// Prefix is where the API is mounted by Handler.
const Prefix = "/api/v1"

// ReplyFunc produces the chatbot answer for a user message.
type ReplyFunc func(threadID, content string) string

// EchoReply answers with the message it was given.
func EchoReply(threadID, content string) string {
	return "You said: " + content
}

type user struct {
	ID       string
	Email    string
	Password string
	FullName string
}

type thread struct {
	ID        string
	Title     string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type failure struct {
	status int
	detail string
	times  int // 0 = until cleared
}

// Server is the in-memory backend. It is safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	users    map[string]*user // by email
	tokens   map[string]string
	threads  map[string]*thread
	messages map[string][]api.HistoryMessage
	calls    map[api.Op]int
	failures map[api.Op]*failure
	reply    ReplyFunc
	now      func() time.Time
}

// New creates an empty backend that echoes messages.
func New() *Server {
	return &Server{
		users:    make(map[string]*user),
		tokens:   make(map[string]string),
		threads:  make(map[string]*thread),
		messages: make(map[string][]api.HistoryMessage),
		calls:    make(map[api.Op]int),
		failures: make(map[api.Op]*failure),
		reply:    EchoReply,
		now:      time.Now,
	}
}

// =============================================================================
// TEST CONTROLS
// =============================================================================

// AddUser registers an account and returns its id.
func (s *Server) AddUser(email, password, fullName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, fullName).ID
}

func (s *Server) addUserLocked(email, password, fullName string) *user {
	u := &user{ID: uuid.NewString(), Email: email, Password: password, FullName: fullName}
	s.users[strings.ToLower(email)] = u
	return u
}

// IssueToken returns a valid token for email without a login call.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(strings.ToLower(email))
}

func (s *Server) issueLocked(email string) string {
	tok := "tok-" + uuid.NewString()
	s.tokens[tok] = email
	return tok
}

// RevokeTokens invalidates every issued token; later calls get 401.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// SetReply replaces the chatbot.
func (s *Server) SetReply(fn ReplyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

// Fail makes op fail with status and detail until ClearFailures. An empty
// detail sends an error body without one.
func (s *Server) Fail(op api.Op, status int, detail string) {
	s.FailTimes(op, status, detail, 0)
}

// FailTimes is Fail for the next n calls only.
func (s *Server) FailTimes(op api.Op, status int, detail string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = &failure{status: status, detail: detail, times: n}
}

// ClearFailures undoes every Fail.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[api.Op]*failure)
}

// Calls returns how many requests op has received, failed ones included.
func (s *Server) Calls(op api.Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Thread is a snapshot of a stored thread.
type Thread struct {
	ID     string
	Title  string
	UserID string
}

// Threads returns every stored thread, newest first.
func (s *Server) Threads() []Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Thread, 0, len(s.threads))
	for _, t := range s.sortedLocked("") {
		out = append(out, Thread{ID: t.ID, Title: t.Title, UserID: t.UserID})
	}
	return out
}

// AddThread stores a thread for the user with email and returns its id.
func (s *Server) AddThread(email, title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[strings.ToLower(email)]
	if u == nil {
		panic(fmt.Sprintf("mockapi: unknown user %q", email))
	}
	return s.createThreadLocked(u.ID, title).ID
}

// AddMessage appends to the stored history of threadID.
func (s *Server) AddMessage(threadID string, role model.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[threadID] = append(s.messages[threadID], api.HistoryMessage{Content: content, Role: role})
}

// Messages returns the stored history of threadID.
func (s *Server) Messages(threadID string) []api.HistoryMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.HistoryMessage(nil), s.messages[threadID]...)
}

func (s *Server) createThreadLocked(userID, title string) *thread {
	now := s.now().UTC()
	// Keep creation times strictly increasing so ordering is stable.
	for _, t := range s.threads {
		if !now.After(t.CreatedAt) {
			now = t.CreatedAt.Add(time.Microsecond)
		}
	}
	t := &thread{ID: uuid.NewString(), Title: title, UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.threads[t.ID] = t
	return t
}

func (s *Server) sortedLocked(userID string) []*thread {
	out := make([]*thread, 0, len(s.threads))
	for _, t := range s.threads {
		if userID == "" || t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// =============================================================================
// ROUTING
// =============================================================================

// Handler returns the API mounted under Prefix.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Route(Prefix, s.AddRoutes)
	return r
}

// AddRoutes registers the API on r.
func (s *Server) AddRoutes(r chi.Router) {
	r.Route("/login", func(r chi.Router) {
		r.Post("/access-token", s.handle(api.OpLogin, false, s.login))
		r.Post("/test-token", s.handle(api.OpTestToken, true, s.testToken))
	})
	r.Route("/users", func(r chi.Router) {
		r.Post("/signup", s.handle(api.OpSignup, false, s.signup))
	})
	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.handle(api.OpListThreads, true, s.listThreads))
		r.Post("/", s.handle(api.OpCreateThread, true, s.createThread))
		r.Get("/{id}", s.handle(api.OpGetThread, true, s.getThread))
		r.Put("/{id}", s.handle(api.OpUpdateThread, true, s.updateThread))
		r.Delete("/{id}", s.handle(api.OpDeleteThread, true, s.deleteThread))
	})
	r.Route("/chatbot", func(r chi.Router) {
		r.Post("/chat", s.handle(api.OpSendMessage, true, s.chat))
		r.Post("/chat-history", s.handle(api.OpFetchHistory, true, s.chatHistory))
	})
}

func requestLogger(next http.Handler) http.Handler {
	log := logging.Component("mockapi")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", r.Header.Get(api.RequestIDHeader),
			"duration", time.Since(start))
	})
}
