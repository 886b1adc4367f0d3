// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"sync"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is a role the chat backend produces.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a thread's message log. Content may carry
// HTML markup produced by the backend.
type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Role      Role   `json:"role"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// NewMessage creates a message stamped with at. Its ID is derived from the
// same instant and is unique within the process.
func NewMessage(role Role, content string, at time.Time) Message {
	ms := at.UnixMilli()
	return Message{
		ID:        nextID(ms),
		Content:   content,
		Role:      role,
		Timestamp: ms,
	}
}

var (
	idMu   sync.Mutex
	lastID int64
)

// nextID returns ms as a decimal string, bumped past the last issued value
// when two messages land in the same millisecond.
func nextID(ms int64) string {
	idMu.Lock()
	defer idMu.Unlock()
	if ms <= lastID {
		ms = lastID + 1
	}
	lastID = ms
	return strconv.FormatInt(ms, 10)
}

// CountUser returns how many messages in msgs were authored by the user.
func CountUser(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.IsUser() {
			n++
		}
	}
	return n
}
