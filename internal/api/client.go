// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the typed client for the chat backend under /api/v1.
//
// Every call except Login and Signup sends the bearer token read from a
// TokenSource at request time. Failures come back as *Error, whose message
// is the server-provided detail when there is one and a fixed message per
// operation otherwise. Nothing is retried.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/threadchat/internal/logging"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the backend a fresh install talks to.
	DefaultBaseURL = "http://localhost:8000/api/v1"

	// RequestIDHeader carries a per-request id the backend can log.
	RequestIDHeader = "X-Request-ID"

	// MaxResponseSize bounds response bodies (4MB).
	MaxResponseSize = 4 * 1024 * 1024
)

// TokenSource supplies the current bearer token. An empty token sends no
// Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns itself.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() string { return string(s) }

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend. It is safe for concurrent use.
type Client struct {
	http    *resty.Client
	baseURL string
	tokens  TokenSource
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a client for baseURL. tokens may be nil for callers
// that only log in.
func NewClient(baseURL string, tokens TokenSource) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		log:     logging.Component("api"),
	}
	c.http = c.newResty(resty.New(), "threadchat")
	return c
}

func (c *Client) newResty(r *resty.Client, userAgent string) *resty.Client {
	r.SetBaseURL(c.baseURL).
		SetRetryCount(0).
		SetLogger(restyLogger{c.log}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	r.SetResponseBodyLimit(MaxResponseSize)
	return r
}

// WithTimeout bounds every request. Zero keeps the HTTP client default.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.http.SetTimeout(timeout)
	return c
}

// WithRateLimit spaces requests to at most rps per second. Zero disables it.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithUserAgent overrides the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.http.SetHeader("User-Agent", ua)
	}
	return c
}

// WithHTTPClient replaces the underlying transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = c.newResty(resty.NewWithClient(hc), c.http.Header.Get("User-Agent"))
	return c
}

// WithLogger replaces the component logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.log = l
		c.http.SetLogger(restyLogger{l})
	}
	return c
}

// WithTokenSource replaces the token source.
func (c *Client) WithTokenSource(tokens TokenSource) *Client {
	c.tokens = tokens
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// request describes one call. Exactly one of form and body may be set.
type request struct {
	op     Op
	method string
	path   string
	form   map[string]string
	body   any
	auth   bool
}

// do executes req and unmarshals a successful body into out (when non-nil).
// A body that does not decode is logged and leaves out at its zero value.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Op: req.op, Err: err}
		}
	}

	reqID := uuid.NewString()
	r := c.http.R().
		SetContext(ctx).
		SetHeader(RequestIDHeader, reqID)

	if req.auth && c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			r.SetAuthToken(tok)
		}
	}
	switch {
	case req.form != nil:
		r.SetFormData(req.form)
	case req.body != nil:
		r.SetHeader("Content-Type", "application/json").SetBody(req.body)
	}

	start := time.Now()
	res, err := r.Execute(req.method, req.path)
	if err != nil {
		c.log.Warn("request failed", "op", req.op, "method", req.method, "path", req.path,
			"request_id", reqID, "error", err)
		return &Error{Op: req.op, RequestID: reqID, Err: err}
	}

	c.log.Debug("request complete", "op", req.op, "method", req.method, "path", req.path,
		"status", res.StatusCode(), "duration", time.Since(start), "request_id", reqID)

	if !res.IsSuccess() {
		apiErr := &Error{
			Op:        req.op,
			Status:    res.StatusCode(),
			Detail:    parseDetail(res.Body()),
			RequestID: reqID,
		}
		c.log.Info("backend returned error", "op", req.op, "status", apiErr.Status,
			"detail", apiErr.Detail, "request_id", reqID)
		return apiErr
	}

	if out != nil && len(res.Body()) > 0 {
		if err := json.Unmarshal(res.Body(), out); err != nil {
			c.log.Warn("malformed response body", "op", req.op, "request_id", reqID, "error", err)
		}
	}
	return nil
}

// restyLogger sends resty's own warnings to the log file instead of stderr,
// which the terminal UI owns.
type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
