// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/threadchat/internal/logging"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests.
const ShutdownTimeout = 5 * time.Second

// Config controls the listener and the middleware stack.
type Config struct {
	// Addr is the listen address. Port 0 picks a free port.
	Addr string

	// CORS enables cross-origin headers when set.
	CORS *CORSConfig

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64
	RateBurst int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig listens on the loopback API port.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server is a bound listener plus the http.Server that will serve it.
type Server struct {
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
}

// Listen binds cfg.Addr and wraps handler in the middleware stack. Nothing
// is served until Run is called.
func Listen(cfg Config, handler http.Handler) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	stack := []func(http.Handler) http.Handler{RecoveryMiddleware(), SecurityHeadersMiddleware()}
	if cfg.CORS != nil {
		stack = append(stack, CORSMiddleware(cfg.CORS))
	}
	if cfg.RateLimit > 0 {
		stack = append(stack, RateLimitMiddleware(NewRateLimiter(cfg.RateLimit, cfg.RateBurst)))
	}

	return &Server{
		listener: ln,
		server: &http.Server{
			Handler:           Chain(stack...)(handler),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		logger: logging.Component("server"),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL returns the base URL clients should use.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", s.Addr())
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// IsLoopback reports whether addr (host or host:port) only accepts local
// connections. An empty host listens on every interface and is not loopback.
func IsLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
