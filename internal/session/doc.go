// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the bearer token.
//
// A Store starts Pending, rehydrates the persisted token exactly once in
// Init, and then moves between Unauthenticated and Authenticated as the
// user logs in and out. The Watcher notices when another threadchat process
// changes the persisted token and refreshes the Store.
//
// # Usage
//
//	st := session.New(kv, cfg.Session.TokenKey)
//	if err := st.Init(); err != nil {
//	    log.Warn("token rehydrate failed", "error", err)
//	}
//	if st.Status() == session.StatusUnauthenticated {
//	    err = st.Login(ctx, client, email, password)
//	}
package session
