// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/threadchat/internal/model"
)

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// User is the public user record.
type User struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
}

// SignupRequest registers a new account.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// ChatReply is the chatbot response. ThreadID is set when the backend
// created or resolved a thread for the message.
type ChatReply struct {
	Response string `json:"response"`
	ThreadID ID     `json:"thread_id"`
}

// HistoryMessage is one entry of a fetched history. The backend does not
// send ids or timestamps.
type HistoryMessage struct {
	Content string     `json:"content"`
	Role    model.Role `json:"role"`
}

// History is the chat-history response.
type History struct {
	ThreadID ID               `json:"thread_id"`
	Messages []HistoryMessage `json:"messages"`
}

type threadTitle struct {
	Title string `json:"title"`
}

type chatRequest struct {
	Content  string `json:"content"`
	ThreadID string `json:"thread_id,omitempty"`
}

type historyRequest struct {
	ThreadID string `json:"thread_id"`
}

type deleteResponse struct {
	Message string `json:"message"`
}

// =============================================================================
// WIRE THREAD
// =============================================================================

// wireThread tolerates numeric ids and timestamps without a zone, both of
// which some backends emit.
type wireThread struct {
	ID        ID     `json:"id"`
	Title     string `json:"title"`
	UserID    ID     `json:"user_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (w wireThread) toModel() *model.Thread {
	return &model.Thread{
		ID:        string(w.ID),
		Title:     w.Title,
		UserID:    string(w.UserID),
		CreatedAt: parseTime(w.CreatedAt),
		UpdatedAt: parseTime(w.UpdatedAt),
	}
}

type wireThreadList struct {
	Data  []wireThread `json:"data"`
	Count int          `json:"count"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// parseTime returns nil for empty or unrecognized values. Zone-less values
// are read as UTC.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ID is a backend identifier. It decodes from a JSON string or number.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = ID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = ID(n.String())
	return nil
}

// String returns the value as a plain string.
func (f ID) String() string { return string(f) }
