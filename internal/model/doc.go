// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the thread registry,
// the message log and the remote client.
//
// # Key Types
//
//   - Thread: a conversation entry with title and last-message preview
//   - Message: a single chat message; immutable once created
//   - Role: who authored a message (user or assistant)
//
// Thread values are treated as immutable. Updates produce a new *Thread
// through WithTitle or WithLastMessage, so an unchanged pointer means an
// unchanged entry.
//
// # Usage
//
//	msg := model.NewMessage(model.RoleUser, "Hello!", time.Now())
//	title := model.DeriveTitle(msg.Content)
package model
