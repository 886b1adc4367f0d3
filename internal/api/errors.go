// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Op names a backend operation. It selects the fallback error message.
type Op string

const (
	OpLogin        Op = "login"
	OpSignup       Op = "signup"
	OpTestToken    Op = "test_token"
	OpListThreads  Op = "list_threads"
	OpGetThread    Op = "get_thread"
	OpCreateThread Op = "create_thread"
	OpUpdateThread Op = "update_thread"
	OpDeleteThread Op = "delete_thread"
	OpSendMessage  Op = "send_message"
	OpFetchHistory Op = "fetch_history"
)

var genericMessages = map[Op]string{
	OpLogin:        "Login failed",
	OpSignup:       "Sign up failed",
	OpTestToken:    "Failed to verify session",
	OpListThreads:  "Failed to fetch threads",
	OpGetThread:    "Failed to fetch thread",
	OpCreateThread: "Failed to create thread",
	OpUpdateThread: "Failed to update thread",
	OpDeleteThread: "Failed to delete thread",
	OpSendMessage:  "Failed to get chatbot response",
	OpFetchHistory: "Failed to fetch chat history",
}

// GenericMessage returns the fallback message for op.
func (op Op) GenericMessage() string {
	if msg, ok := genericMessages[op]; ok {
		return msg
	}
	return "Request failed"
}

// ErrUnauthorized matches any *Error from an authenticated call that the
// backend rejected with 401, meaning the session token is no longer valid.
var ErrUnauthorized = errors.New("session expired or invalid")

// Error is returned by every Client method. Status is 0 when the request
// never got a response; Err then holds the transport failure.
type Error struct {
	Op        Op
	Status    int
	Detail    string
	RequestID string
	Err       error
}

// Error returns the user-visible message.
func (e *Error) Error() string {
	return e.Message()
}

// Message is the server detail when present, else the per-operation message.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Op.GenericMessage()
}

// Unwrap exposes the transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrUnauthorized for 401 responses outside the login flow.
func (e *Error) Is(target error) bool {
	if target == ErrUnauthorized {
		return e.Status == http.StatusUnauthorized && e.Op != OpLogin && e.Op != OpSignup
	}
	return false
}

// Describe is a longer form for logs and the CLI.
func (e *Error) Describe() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message(), e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (HTTP %d)", e.Message(), e.Status)
	default:
		return e.Message()
	}
}

// Message extracts the user-visible text from any error, preferring the
// *Error message.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// parseDetail reads {"detail": ...} from an error body. FastAPI-style
// validation errors carry a list of {msg} objects, which are joined.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
