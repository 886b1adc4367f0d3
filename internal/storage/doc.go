// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local key/value store that survives restarts.
//
// Two keys families are used by threadchat:
//
//   - the session token, under the configured token key ("jwtToken")
//   - per-thread message caches, under MessagesKey(threadID)
//
// # Backends
//
//   - SQLiteStore: a single kv table in a modernc.org/sqlite database
//   - FileStore: one JSON object rewritten atomically on each change, with
//     writes serialized across processes by an advisory lock file
//
// Sealed wraps either backend and encrypts values with a secret.Sealer.
//
// # Usage
//
//	st, err := storage.Open(storage.BackendSQLite, path)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//	err = st.Set("jwtToken", token)
package storage
