// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL+"/api/v1", StaticToken("T"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin_FormEncoded(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/login/access-token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"), "login must not send a bearer token")
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "a@b.c", r.PostForm.Get("username"))
		assert.Equal(t, "pw", r.PostForm.Get("password"))
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok-123", "token_type": "bearer"})
	})

	tok, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
}

func TestLogin_Failure(t *testing.T) {
	t.Run("server detail", func(t *testing.T) {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Incorrect email or password"})
		})
		_, err := c.Login(context.Background(), "a@b.c", "bad")
		require.Error(t, err)
		assert.Equal(t, "Incorrect email or password", err.Error())

		var apiErr *Error
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.False(t, errors.Is(err, ErrUnauthorized))
	})

	t.Run("generic message", func(t *testing.T) {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "<html>oops</html>")
		})
		_, err := c.Login(context.Background(), "a@b.c", "pw")
		require.Error(t, err)
		assert.Equal(t, "Login failed", err.Error())
	})

	t.Run("missing token", func(t *testing.T) {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{})
		})
		_, err := c.Login(context.Background(), "a@b.c", "pw")
		assert.EqualError(t, err, "Login failed")
	})
}

func TestBearerHeader(t *testing.T) {
	var auth atomic.Value
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}, "count": 0})
	})

	_, err := c.ListThreads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer T", auth.Load())
}

func TestListThreads_Decodes(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/threads/", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": "u-1", "title": "First", "user_id": "me", "created_at": "2024-05-01T10:00:00.123456"},
				{"id": 7, "title": "Numeric"},
				{"title": "no id, skipped"},
			},
			"count": 3,
		})
	})

	threads, err := c.ListThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "u-1", threads[0].ID)
	assert.Equal(t, "First", threads[0].Title)
	require.NotNil(t, threads[0].CreatedAt)
	assert.Equal(t, 2024, threads[0].CreatedAt.Year())
	assert.Equal(t, "7", threads[1].ID)
	assert.Nil(t, threads[1].CreatedAt)
}

func TestThreadMutations(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/threads/":
			writeJSON(w, http.StatusOK, map[string]any{"id": "new-1", "title": body["title"]})
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/threads/new-1":
			writeJSON(w, http.StatusOK, map[string]any{"id": "new-1", "title": body["title"]})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/threads/new-1":
			writeJSON(w, http.StatusOK, map[string]any{"message": "Thread deleted successfully"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/threads/new-1":
			writeJSON(w, http.StatusOK, map[string]any{"id": "new-1", "title": "Renamed"})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Thread not found"})
		}
	})
	ctx := context.Background()

	created, err := c.CreateThread(ctx, "New Conversation")
	require.NoError(t, err)
	assert.Equal(t, "new-1", created.ID)
	assert.Equal(t, "New Conversation", created.Title)

	renamed, err := c.UpdateThread(ctx, "new-1", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)

	got, err := c.GetThread(ctx, "new-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	msg, err := c.DeleteThread(ctx, "new-1")
	require.NoError(t, err)
	assert.Equal(t, "Thread deleted successfully", msg)

	_, err = c.DeleteThread(ctx, "missing")
	assert.EqualError(t, err, "Thread not found")
}

func TestGenericMessagesPerOperation(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	ctx := context.Background()

	_, err := c.ListThreads(ctx)
	assert.EqualError(t, err, "Failed to fetch threads")
	_, err = c.CreateThread(ctx, "x")
	assert.EqualError(t, err, "Failed to create thread")
	_, err = c.UpdateThread(ctx, "1", "x")
	assert.EqualError(t, err, "Failed to update thread")
	_, err = c.DeleteThread(ctx, "1")
	assert.EqualError(t, err, "Failed to delete thread")
	_, err = c.SendMessage(ctx, "hi", "")
	assert.EqualError(t, err, "Failed to get chatbot response")
	_, err = c.ChatHistory(ctx, "1")
	assert.EqualError(t, err, "Failed to fetch chat history")
}

func TestSendMessage_OmitsEmptyThreadID(t *testing.T) {
	var calls int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "hello", raw["content"])
		if n == 1 {
			_, present := raw["thread_id"]
			assert.False(t, present, "thread_id must be omitted when empty")
			writeJSON(w, http.StatusOK, map[string]any{"response": "<p>hi</p>", "thread_id": "t-9"})
			return
		}
		assert.Equal(t, "t-9", raw["thread_id"])
		writeJSON(w, http.StatusOK, map[string]any{"response": "again"})
	})

	reply, err := c.SendMessage(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", reply.Response)
	assert.Equal(t, "t-9", reply.ThreadID.String())

	reply, err = c.SendMessage(context.Background(), "hello", "t-9")
	require.NoError(t, err)
	assert.Empty(t, reply.ThreadID)
}

func TestChatHistory(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chatbot/chat-history", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "t-1", body["thread_id"])
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": []map[string]string{
				{"content": "hi", "role": "user"},
				{"content": "hello", "role": "assistant"},
			},
		})
	})

	h, err := c.ChatHistory(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", h.ThreadID.String())
	require.Len(t, h.Messages, 2)
	assert.Equal(t, "assistant", string(h.Messages[1].Role))
}

func TestUnauthorized(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
	})

	_, err := c.ListThreads(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "Could not validate credentials", Message(err))
}

func TestValidationDetailList(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "title"}, "msg": "field required"}},
		})
	})

	_, err := c.CreateThread(context.Background(), "")
	assert.EqualError(t, err, "field required")
}

func TestNoRetries(t *testing.T) {
	var calls int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ListThreads(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, StaticToken("T")).WithTimeout(2 * time.Second)
	_, err := c.ListThreads(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.Status)
	assert.NotNil(t, apiErr.Unwrap())
	assert.Equal(t, "Failed to fetch threads", apiErr.Error())
}

func TestRateLimit_CancelledContext(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	})
	c.WithRateLimit(0.001, 1)

	// First call consumes the only token.
	_, err := c.ListThreads(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListThreads(ctx)
	assert.Error(t, err)
}

func TestTestToken(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer T", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "email": "a@b.c", "full_name": "Ada"})
	})

	u, err := c.TestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", u.Email)
	assert.Equal(t, "Ada", u.FullName)
}
