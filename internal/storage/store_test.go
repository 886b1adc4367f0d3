// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/threadchat/internal/secret"
)

func backends(t *testing.T) map[string]func(dir string) Store {
	return map[string]func(dir string) Store{
		BackendSQLite: func(dir string) Store {
			s, err := Open(BackendSQLite, filepath.Join(dir, "state.db"))
			require.NoError(t, err)
			return s
		},
		BackendFile: func(dir string) Store {
			s, err := Open(BackendFile, filepath.Join(dir, "state.json"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_CRUD(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()

			_, err := s.Get("jwtToken")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set("jwtToken", "abc"))
			v, err := s.Get("jwtToken")
			require.NoError(t, err)
			assert.Equal(t, "abc", v)

			require.NoError(t, s.Set("jwtToken", "def"))
			v, err = s.Get("jwtToken")
			require.NoError(t, err)
			assert.Equal(t, "def", v)

			require.NoError(t, s.Delete("jwtToken"))
			_, err = s.Get("jwtToken")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting again is fine.
			require.NoError(t, s.Delete("jwtToken"))
		})
	}
}

func TestStore_KeysByPrefix(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()

			require.NoError(t, s.Set(MessagesKey("b"), "[]"))
			require.NoError(t, s.Set(MessagesKey("a_1"), "[]"))
			require.NoError(t, s.Set("jwtToken", "t"))
			require.NoError(t, s.Set("messagesX", "not a cache key"))

			keys, err := s.Keys("messages-")
			require.NoError(t, err)
			assert.Equal(t, []string{"messages-a_1", "messages-b"}, keys)
		})
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			s := open(dir)
			require.NoError(t, s.Set("jwtToken", "persisted"))
			require.NoError(t, s.Close())

			s2 := open(dir)
			defer s2.Close()
			v, err := s2.Get("jwtToken")
			require.NoError(t, err)
			assert.Equal(t, "persisted", v)
		})
	}
}

func TestFileStore_SeesExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	a, err := OpenFile(path)
	require.NoError(t, err)
	b, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, a.Set("jwtToken", "from-a"))
	v, err := b.Get("jwtToken")
	require.NoError(t, err)
	assert.Equal(t, "from-a", v)
}

func TestFileStore_ConcurrentWritersKeepAllKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	stores := make([]*FileStore, 2)
	for i := range stores {
		st, err := OpenFile(path)
		require.NoError(t, err)
		stores[i] = st
	}

	const perStore = 25
	var wg sync.WaitGroup
	errs := make(chan error, len(stores)*perStore)
	for i, st := range stores {
		wg.Add(1)
		go func(i int, st *FileStore) {
			defer wg.Done()
			for n := 0; n < perStore; n++ {
				errs <- st.Set(fmt.Sprintf("k%d-%02d", i, n), "v")
			}
		}(i, st)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	keys, err := stores[0].Keys("k")
	require.NoError(t, err)
	assert.Len(t, keys, len(stores)*perStore)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("redis", filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)
}

func TestSealed_EncryptsAtRest(t *testing.T) {
	dir := t.TempDir()
	inner, err := OpenFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	sealer, err := secret.FromKeyFile(filepath.Join(dir, "master.key"))
	require.NoError(t, err)

	s := NewSealed(inner, sealer)
	require.NoError(t, s.Set("jwtToken", "super-secret-token"))

	raw, err := inner.Get("jwtToken")
	require.NoError(t, err)
	assert.True(t, secret.IsSealed(raw))
	assert.NotContains(t, raw, "super-secret-token")

	v, err := s.Get("jwtToken")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-token", v)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessagesKey(t *testing.T) {
	assert.Equal(t, "messages-42", MessagesKey("42"))

	id, ok := ThreadIDFromKey("messages-42")
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	_, ok = ThreadIDFromKey("jwtToken")
	assert.False(t, ok)
}
