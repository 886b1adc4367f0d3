// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !unix && !windows

package storage

import "os"

// Platforms without advisory locks fall back to the in-process mutex.
// Use the sqlite backend when several processes share the store there.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
