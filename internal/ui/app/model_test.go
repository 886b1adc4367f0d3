// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/chatflow"
	"github.com/jeranaias/threadchat/internal/mockapi"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/render"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/storage"
	"github.com/jeranaias/threadchat/internal/ui/styles"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct-horse"
)

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	backend *mockapi.Server
	sess    *session.Store
	client  *api.Client
	ctrl    *chatflow.Controller
}

func newHarness(t *testing.T, loggedIn bool) (*harness, Model) {
	t.Helper()
	backend := mockapi.New()
	backend.AddUser(testEmail, testPassword, "Ada")
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	kv, err := storage.OpenFile(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	sess := session.New(kv, "jwtToken")
	require.NoError(t, sess.Init())
	client := api.NewClient(srv.URL+mockapi.Prefix, sess)
	if loggedIn {
		require.NoError(t, sess.Login(context.Background(), client, testEmail, testPassword))
	}

	h := &harness{backend: backend, sess: sess, client: client}
	h.ctrl = chatflow.New(client, sess, nil)

	opts := render.DefaultOptions()
	opts.Markdown = false
	m := New(Options{
		Session:    sess,
		Auth:       client,
		Controller: h.ctrl,
		Renderer:   render.New(opts),
		Theme:      styles.NewTheme(styles.ModeDark),
		Server:     "mock",
	})
	// Status changes are fed by hand; a closed subscription makes the
	// listener command return immediately.
	m.Close()
	m = settle(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return h, m
}

// authenticate walks the model to the chat screen.
func authenticate(t *testing.T, m Model) Model {
	t.Helper()
	m = settle(t, m, session.StatusMsg{Status: session.StatusAuthenticated})
	require.Equal(t, screenChat, m.screen)
	return m
}

// cmdTimeout bounds how long a command may block. Timers such as cursor
// blinks outlast it and are dropped.
const cmdTimeout = 400 * time.Millisecond

func ignored(msg tea.Msg) bool {
	name := fmt.Sprintf("%T", msg)
	return strings.HasPrefix(name, "cursor.") ||
		name == "spinner.TickMsg" ||
		name == "components.ToastTickMsg"
}

// run executes cmd, expanding batches, and returns the messages produced
// in time.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	select {
	case msg := <-done:
		if batch, ok := msg.(tea.BatchMsg); ok {
			var (
				mu  sync.Mutex
				wg  sync.WaitGroup
				out []tea.Msg
			)
			for _, c := range batch {
				wg.Add(1)
				go func(c tea.Cmd) {
					defer wg.Done()
					msgs := run(c)
					mu.Lock()
					out = append(out, msgs...)
					mu.Unlock()
				}(c)
			}
			wg.Wait()
			return out
		}
		if msg == nil || ignored(msg) {
			return nil
		}
		return []tea.Msg{msg}
	case <-time.After(cmdTimeout):
		return nil
	}
}

// settle feeds msg and every message its commands produce until the model
// is quiet.
func settle(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	queue := []tea.Msg{msg}
	for i := 0; len(queue) > 0; i++ {
		require.Less(t, i, 50, "update loop did not settle")
		next, cmd := m.Update(queue[0])
		m = next.(Model)
		queue = append(queue[1:], run(cmd)...)
	}
	return m
}

func press(t *testing.T, m Model, k tea.KeyType) Model {
	t.Helper()
	return settle(t, m, tea.KeyMsg{Type: k})
}

func typeRunes(t *testing.T, m Model, s string) Model {
	t.Helper()
	return settle(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func messageContents(v chatflow.View) []string {
	out := make([]string, 0, len(v.Messages))
	for _, msg := range v.Messages {
		out = append(out, msg.Content)
	}
	return out
}

// =============================================================================
// LOGIN
// =============================================================================

func TestInit_ReadsPersistedSession(t *testing.T) {
	_, m := newHarness(t, true)
	require.Equal(t, screenLoading, m.screen)
	for _, msg := range run(m.Init()) {
		m = settle(t, m, msg)
	}
	assert.Equal(t, screenChat, m.screen)
}

func TestLogin_ShowsServerDetail(t *testing.T) {
	h, m := newHarness(t, false)
	m = settle(t, m, session.StatusMsg{Status: session.StatusUnauthenticated})
	require.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), "Email")

	m = typeRunes(t, m, testEmail)
	m = press(t, m, tea.KeyTab)
	m = typeRunes(t, m, "wrong")
	m = press(t, m, tea.KeyEnter)

	assert.Equal(t, "Incorrect email or password", m.loginErr)
	assert.Contains(t, m.View(), "Incorrect email or password")
	assert.False(t, h.sess.IsAuthenticated())
	assert.False(t, m.loggingIn)
}

func TestLogin_MissingFields(t *testing.T) {
	h, m := newHarness(t, false)
	m = settle(t, m, session.StatusMsg{Status: session.StatusUnauthenticated})

	m = press(t, m, tea.KeyEnter)
	assert.Equal(t, loginFieldPassword, m.loginField, "enter on email moves to password")
	m = press(t, m, tea.KeyEnter)

	assert.Equal(t, "Please enter your email and password.", m.loginErr)
	assert.Zero(t, h.backend.Calls(api.OpLogin))
}

func TestLogin_StoresToken(t *testing.T) {
	h, m := newHarness(t, false)
	m = settle(t, m, session.StatusMsg{Status: session.StatusUnauthenticated})

	m = typeRunes(t, m, testEmail)
	m = press(t, m, tea.KeyTab)
	m = typeRunes(t, m, testPassword)
	m = press(t, m, tea.KeyEnter)

	require.True(t, h.sess.IsAuthenticated())
	assert.Empty(t, m.loginErr)
	assert.Equal(t, testEmail, m.account)
	assert.Empty(t, m.password.Value())

	m = authenticate(t, m)
	assert.Contains(t, m.View(), testEmail)
}

// =============================================================================
// CHAT SCREEN
// =============================================================================

func TestChat_LoadsThreadsAndHistory(t *testing.T) {
	h, m := newHarness(t, true)
	id := h.backend.AddThread(testEmail, "Trip planning")
	h.backend.AddMessage(id, model.RoleUser, "Where should we go?")
	h.backend.AddMessage(id, model.RoleAssistant, "Somewhere warm.")

	m = authenticate(t, m)

	assert.Equal(t, id, m.view.Selected)
	assert.Equal(t, []string{"Where should we go?", "Somewhere warm."}, messageContents(m.view))
	out := m.View()
	assert.Contains(t, out, "Trip planning")
	assert.Contains(t, out, "Somewhere warm.")
	assert.False(t, m.busy())
}

func TestChat_SubmitAppendsReplyAndTitlesThread(t *testing.T) {
	h, m := newHarness(t, true)
	id := h.backend.AddThread(testEmail, model.DefaultThreadTitle)
	m = authenticate(t, m)

	m.composer.SetValue("  Hello there  ")
	m = press(t, m, tea.KeyEnter)

	assert.Equal(t, []string{"Hello there", "You said: Hello there"}, messageContents(m.view))
	assert.Empty(t, m.composer.Value())
	assert.True(t, m.composer.Focused())
	assert.False(t, m.view.Submitting)

	threads := h.backend.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, id, threads[0].ID)
	assert.Equal(t, "Hello there", threads[0].Title)
	assert.Equal(t, "Hello there", m.view.SelectedThread().Title)
}

func TestChat_SendFailureShowsToast(t *testing.T) {
	h, m := newHarness(t, true)
	h.backend.AddThread(testEmail, model.DefaultThreadTitle)
	m = authenticate(t, m)
	h.backend.Fail(api.OpSendMessage, http.StatusInternalServerError, "")

	m.composer.SetValue("Are you there?")
	m = press(t, m, tea.KeyEnter)

	assert.Equal(t, []string{"Are you there?"}, messageContents(m.view), "optimistic message stays")
	require.True(t, m.toasts.HasToasts())
	assert.Equal(t, chatflow.SendFailedToast, m.toasts.Toasts()[0].Message)
	assert.True(t, m.composer.Focused(), "input re-enabled")
	assert.Contains(t, m.View(), "Failed to get a response.")

	m = press(t, m, tea.KeyEsc)
	assert.False(t, m.toasts.HasToasts())
}

func TestChat_InputDisabledWhileSubmitting(t *testing.T) {
	h, m := newHarness(t, true)
	h.backend.AddThread(testEmail, model.DefaultThreadTitle)
	m = authenticate(t, m)

	m.composer.SetValue("first")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.True(t, m.view.Submitting)
	assert.Contains(t, m.View(), "Thinking...")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m = next.(Model)
	assert.Empty(t, m.composer.Value())

	for _, msg := range run(cmd) {
		m = settle(t, m, msg)
	}
	assert.False(t, m.view.Submitting)
	assert.Equal(t, 1, h.backend.Calls(api.OpSendMessage))
}

func TestChat_EmptyAccountGetsAThread(t *testing.T) {
	h, m := newHarness(t, true)
	m = authenticate(t, m)

	require.Len(t, m.view.Threads, 1, "an authenticated user always has a conversation")
	assert.Equal(t, m.view.Threads[0].ID, m.view.Selected)
	assert.Equal(t, model.DefaultThreadTitle, m.view.Threads[0].Title)
	assert.Len(t, h.backend.Threads(), 1)
	assert.Equal(t, 1, h.backend.Calls(api.OpCreateThread))
}

func TestChat_EmptyListAfterFailedLoadCreatesNothing(t *testing.T) {
	h, m := newHarness(t, true)
	h.backend.FailTimes(api.OpListThreads, http.StatusInternalServerError, "", 1)
	m = authenticate(t, m)

	assert.Empty(t, m.view.Threads)
	assert.Zero(t, h.backend.Calls(api.OpCreateThread))
}

func TestChat_SendWaitsForHistory(t *testing.T) {
	h, m := newHarness(t, true)
	older := h.backend.AddThread(testEmail, "Original")
	h.backend.AddMessage(older, model.RoleUser, "old question")
	h.backend.AddMessage(older, model.RoleAssistant, "old answer")
	h.backend.AddThread(testEmail, "Newer")
	m = authenticate(t, m)

	m = press(t, m, tea.KeyTab)
	next, loadCmd := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	require.Equal(t, older, m.view.Selected)
	require.True(t, m.view.Loading)

	m = press(t, m, tea.KeyTab)
	m.composer.SetValue("typed early")
	m = press(t, m, tea.KeyEnter)
	assert.Zero(t, h.backend.Calls(api.OpSendMessage))
	assert.Equal(t, "typed early", m.composer.Value(), "the draft is kept")

	for _, msg := range run(loadCmd) {
		m = settle(t, m, msg)
	}
	assert.Equal(t, []string{"old question", "old answer"}, messageContents(m.view))

	m = press(t, m, tea.KeyEnter)
	assert.Equal(t, []string{"old question", "old answer", "typed early", "You said: typed early"}, messageContents(m.view))
	assert.Equal(t, "Original", m.view.SelectedThread().Title)
	assert.Zero(t, h.backend.Calls(api.OpUpdateThread))
}

func TestChat_BlankInputIsIgnored(t *testing.T) {
	h, m := newHarness(t, true)
	h.backend.AddThread(testEmail, model.DefaultThreadTitle)
	m = authenticate(t, m)

	m.composer.SetValue("   ")
	m = press(t, m, tea.KeyEnter)

	assert.Empty(t, m.view.Messages)
	assert.Zero(t, h.backend.Calls(api.OpSendMessage))
}

func TestChat_NewThreadThenDelete(t *testing.T) {
	h, m := newHarness(t, true)
	first := h.backend.AddThread(testEmail, "Older")
	m = authenticate(t, m)

	m = press(t, m, tea.KeyCtrlN)
	require.Len(t, m.view.Threads, 2)
	created := m.view.Selected
	assert.NotEqual(t, first, created)
	assert.Equal(t, model.DefaultThreadTitle, m.view.Threads[0].Title)

	m = press(t, m, tea.KeyTab)
	require.Equal(t, focusSidebar, m.focus)
	m = typeRunes(t, m, "d")
	assert.Contains(t, m.View(), "Press y to confirm")
	m = typeRunes(t, m, "y")

	require.Len(t, m.view.Threads, 1)
	assert.Equal(t, first, m.view.Selected)
	assert.Len(t, h.backend.Threads(), 1)
}

func TestChat_DeleteCancelledByOtherKey(t *testing.T) {
	h, m := newHarness(t, true)
	h.backend.AddThread(testEmail, "Keep me")
	m = authenticate(t, m)

	m = press(t, m, tea.KeyTab)
	m = typeRunes(t, m, "d")
	m = typeRunes(t, m, "n")

	assert.Len(t, m.view.Threads, 1)
	assert.Zero(t, h.backend.Calls(api.OpDeleteThread))
}

func TestChat_DeleteFailureShowsToast(t *testing.T) {
	h, m := newHarness(t, true)
	h.backend.AddThread(testEmail, "Stuck")
	m = authenticate(t, m)
	h.backend.Fail(api.OpDeleteThread, http.StatusInternalServerError, "")

	m = press(t, m, tea.KeyTab)
	m = typeRunes(t, m, "d")
	m = typeRunes(t, m, "y")

	assert.Len(t, m.view.Threads, 1)
	require.True(t, m.toasts.HasToasts())
	assert.Equal(t, api.OpDeleteThread.GenericMessage(), m.toasts.Toasts()[0].Message)
}

func TestChat_RenameFromSidebar(t *testing.T) {
	h, m := newHarness(t, true)
	id := h.backend.AddThread(testEmail, "Old name")
	m = authenticate(t, m)

	m = press(t, m, tea.KeyTab)
	m = typeRunes(t, m, "r")
	require.True(t, m.renaming)
	m.rename.SetValue("New name")
	m = press(t, m, tea.KeyEnter)

	assert.False(t, m.renaming)
	assert.Equal(t, "New name", m.view.SelectedThread().Title)
	threads := h.backend.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, id, threads[0].ID)
	assert.Equal(t, "New name", threads[0].Title)
}

func TestChat_SidebarNavigationLoadsHistory(t *testing.T) {
	h, m := newHarness(t, true)
	older := h.backend.AddThread(testEmail, "Older")
	h.backend.AddMessage(older, model.RoleUser, "from the older thread")
	newer := h.backend.AddThread(testEmail, "Newer")
	m = authenticate(t, m)
	require.Equal(t, newer, m.view.Selected)

	m = press(t, m, tea.KeyTab)
	m = press(t, m, tea.KeyDown)

	assert.Equal(t, older, m.view.Selected)
	assert.Equal(t, []string{"from the older thread"}, messageContents(m.view))

	m = press(t, m, tea.KeyDown)
	assert.Equal(t, older, m.view.Selected, "stays on the last thread")
}

func TestChat_UnauthorizedReturnsToLogin(t *testing.T) {
	h, m := newHarness(t, true)
	h.backend.AddThread(testEmail, "Anything")
	m = authenticate(t, m)
	h.backend.RevokeTokens()

	m = press(t, m, tea.KeyCtrlN)
	assert.False(t, h.sess.IsAuthenticated(), "401 clears the session")

	m = settle(t, m, session.StatusMsg{Status: session.StatusUnauthenticated})
	assert.Equal(t, screenLogin, m.screen)
	assert.Equal(t, SessionExpiredText, m.loginErr)
	assert.Empty(t, h.ctrl.Snapshot().Threads)
}

func TestChat_LogoutKey(t *testing.T) {
	h, m := newHarness(t, true)
	m = authenticate(t, m)

	m = press(t, m, tea.KeyCtrlO)
	assert.False(t, h.sess.IsAuthenticated())
}

func TestQuit(t *testing.T) {
	_, m := newHarness(t, false)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
