// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatflow drives a conversation: selecting and managing threads,
// loading their history, and sending messages with an optimistic local
// echo.
//
// After every change to the visible log two derived updates run. The first
// user message of a thread that has no title yet names the thread, once.
// The newest message becomes the thread's sidebar preview.
package chatflow
