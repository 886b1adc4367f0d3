// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/storage"
)

type countingSource struct {
	calls map[string]int
	msgs  map[string][]model.Message
	err   error
}

func newCountingSource() *countingSource {
	return &countingSource{calls: map[string]int{}, msgs: map[string][]model.Message{}}
}

func (s *countingSource) Fetch(ctx context.Context, threadID string) ([]model.Message, error) {
	s.calls[threadID]++
	if s.err != nil {
		return nil, s.err
	}
	return s.msgs[threadID], nil
}

// load runs one Begin, Fetch, Apply cycle the way chatflow does.
func load(ctx context.Context, l *Log, src Source, threadID string) error {
	gen, fetch := l.Begin(threadID)
	if !fetch {
		return nil
	}
	msgs, err := src.Fetch(ctx, threadID)
	l.Apply(gen, msgs, err)
	return err
}

func msg(role model.Role, content string) model.Message {
	return model.NewMessage(role, content, time.Now())
}

func TestLoad_SameThreadFetchesOnce(t *testing.T) {
	src := newCountingSource()
	src.msgs["t1"] = []model.Message{msg(model.RoleUser, "hi")}
	l := New()

	require.NoError(t, load(context.Background(), l, src, "t1"))
	require.NoError(t, load(context.Background(), l, src, "t1"))

	assert.Equal(t, 1, src.calls["t1"])
	assert.Equal(t, 1, l.Len())
}

func TestLoad_SwitchingBackRefetches(t *testing.T) {
	src := newCountingSource()
	l := New()
	ctx := context.Background()

	require.NoError(t, load(ctx, l, src, "a"))
	require.NoError(t, load(ctx, l, src, "b"))
	require.NoError(t, load(ctx, l, src, "a"))

	assert.Equal(t, 2, src.calls["a"])
	assert.Equal(t, "a", l.ThreadID())
}

func TestLoad_FailureClearsLog(t *testing.T) {
	src := newCountingSource()
	src.msgs["a"] = []model.Message{msg(model.RoleUser, "old")}
	l := New()
	require.NoError(t, load(context.Background(), l, src, "a"))
	require.Equal(t, 1, l.Len())

	src.err = errors.New("Failed to fetch chat history")
	err := load(context.Background(), l, src, "b")
	assert.Error(t, err)
	assert.Zero(t, l.Len(), "a failed load must not leave the previous thread's messages")
	assert.False(t, l.Loading())
}

func TestApply_DiscardsStaleGeneration(t *testing.T) {
	l := New()
	genA, fetch := l.Begin("a")
	require.True(t, fetch)
	genB, fetch := l.Begin("b")
	require.True(t, fetch)

	assert.False(t, l.Apply(genA, []model.Message{msg(model.RoleUser, "from a")}, nil))
	assert.Zero(t, l.Len())
	assert.True(t, l.Loading())

	assert.True(t, l.Apply(genB, []model.Message{msg(model.RoleUser, "from b")}, nil))
	require.Equal(t, 1, l.Len())
	assert.Equal(t, "from b", l.Messages()[0].Content)
}

func TestBegin_EmptyThreadNeverFetches(t *testing.T) {
	l := New()
	l.Append(msg(model.RoleUser, "x"))

	_, fetch := l.Begin("")
	assert.False(t, fetch)
	assert.Zero(t, l.Len())
}

func TestAppendAndAccessors(t *testing.T) {
	l := New()
	_, ok := l.Last()
	assert.False(t, ok)

	assert.Equal(t, 1, l.Append(msg(model.RoleUser, "q")))
	assert.Equal(t, 2, l.Append(msg(model.RoleAssistant, "a")))

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, "a", last.Content)
	assert.Equal(t, 1, l.UserCount())

	got := l.Messages()
	got[0].Content = "mutated"
	assert.Equal(t, "q", l.Messages()[0].Content)

	l.Reset()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.ThreadID())
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	src := newCountingSource()
	l := New()
	require.NoError(t, load(context.Background(), l, src, "a"))
	l.Invalidate()
	require.NoError(t, load(context.Background(), l, src, "a"))
	assert.Equal(t, 2, src.calls["a"])
}

func openCache(t *testing.T) *CacheSource {
	t.Helper()
	kv, err := storage.OpenFile(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return NewCacheSource(kv)
}

func TestLocalLog_WritesThrough(t *testing.T) {
	cache := openCache(t)
	l := NewLocal(cache)
	ctx := context.Background()
	assert.True(t, l.Local())

	require.NoError(t, load(ctx, l, cache, "t1"))
	l.Append(msg(model.RoleUser, "hello"))
	l.Append(msg(model.RoleAssistant, "hi there"))

	cached, err := cache.Fetch(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "hello", cached[0].Content)
	assert.Equal(t, model.RoleAssistant, cached[1].Role)

	// A fresh log sees the same messages.
	other := NewLocal(cache)
	require.NoError(t, load(ctx, other, cache, "t1"))
	assert.Equal(t, l.Messages(), other.Messages())
}

func TestLocalLog_BindPersistsPendingMessages(t *testing.T) {
	cache := openCache(t)
	l := NewLocal(cache)
	l.Append(msg(model.RoleUser, "first"))

	ids, err := cache.Threads()
	require.NoError(t, err)
	assert.Empty(t, ids, "nothing is cached before the log has a thread")

	assert.True(t, l.Bind("new-id"))
	assert.False(t, l.Bind("other"))

	cached, err := cache.Fetch(context.Background(), "new-id")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "first", cached[0].Content)
}

func TestCacheSource(t *testing.T) {
	cache := openCache(t)
	ctx := context.Background()

	msgs, err := cache.Fetch(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, cache.Append(ctx, "b", msg(model.RoleAssistant, "late reply")))
	require.NoError(t, cache.Save("a", nil))

	ids, err := cache.Threads()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, cache.Delete("a"))
	ids, err = cache.Threads()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

type fakeHistory struct {
	history *api.History
	err     error
}

func (f fakeHistory) ChatHistory(ctx context.Context, threadID string) (*api.History, error) {
	return f.history, f.err
}

func TestRemoteSource_AssignsIDsInOrder(t *testing.T) {
	src := NewRemoteSource(fakeHistory{history: &api.History{
		ThreadID: "t1",
		Messages: []api.HistoryMessage{
			{Content: "q", Role: model.RoleUser},
			{Content: "a", Role: model.RoleAssistant},
		},
	}})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return fixed }

	msgs, err := src.Fetch(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.Equal(t, "q", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.GreaterOrEqual(t, msgs[0].Timestamp, fixed.UnixMilli())
}

func TestRemoteSource_PropagatesError(t *testing.T) {
	src := NewRemoteSource(fakeHistory{err: errors.New("boom")})
	_, err := src.Fetch(context.Background(), "t1")
	assert.Error(t, err)
}
