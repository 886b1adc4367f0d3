// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"time"
)

// DefaultThreadTitle is used for threads created before any message is sent.
const DefaultThreadTitle = "New Conversation"

// Thread is a conversation entry as shown in the sidebar.
type Thread struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	UserID      string     `json:"user_id,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	LastMessage string     `json:"lastMessage,omitempty"`
}

// WithTitle returns a copy of t whose title is replaced. Every other field,
// including the preview, is carried over.
func (t *Thread) WithTitle(title string) *Thread {
	c := *t
	c.Title = title
	return &c
}

// WithLastMessage returns a copy of t with a new preview.
func (t *Thread) WithLastMessage(content string) *Thread {
	c := *t
	c.LastMessage = content
	return &c
}

// DisplayTitle returns the title, or the default title when it is empty.
func (t *Thread) DisplayTitle() string {
	if t.Title == "" {
		return DefaultThreadTitle
	}
	return t.Title
}

// SortThreads orders threads most recent first: by creation time descending,
// with ties and missing timestamps broken by id descending. Threads with a
// creation time sort ahead of those without one.
func SortThreads(threads []*Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		a, b := threads[i], threads[j]
		switch {
		case a.CreatedAt != nil && b.CreatedAt != nil:
			if !a.CreatedAt.Equal(*b.CreatedAt) {
				return a.CreatedAt.After(*b.CreatedAt)
			}
		case a.CreatedAt != nil:
			return true
		case b.CreatedAt != nil:
			return false
		}
		return a.ID > b.ID
	})
}
