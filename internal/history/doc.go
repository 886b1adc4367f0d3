// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history holds the message log of the visible thread and the
// sources it is loaded from: the backend's chat-history endpoint or a local
// per-thread cache in the key/value store.
package history
