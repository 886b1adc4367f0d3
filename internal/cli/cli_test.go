// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/chatflow"
	"github.com/jeranaias/threadchat/internal/config"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/mockapi"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/render"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct-horse"
)

// =============================================================================
// HARNESS
// =============================================================================

type cliEnv struct {
	backend *mockapi.Server
	home    string
	baseURL string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	backend := mockapi.New()
	backend.AddUser(testEmail, testPassword, "Ada Lovelace")
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	t.Setenv("THREADCHAT_SERVER_BASE_URL", srv.URL+mockapi.Prefix)
	t.Setenv("THREADCHAT_STORAGE_BACKEND", config.BackendFile)
	t.Setenv("NO_COLOR", "1")
	t.Cleanup(logging.Close)
	t.Cleanup(config.ResetGlobalForTesting)

	return &cliEnv{backend: backend, home: home, baseURL: srv.URL + mockapi.Prefix}
}

// run executes one command line and returns stdout, stderr and the error.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	_, _, err := e.run(t, testPassword+"\n", "login", "--email", testEmail, "--password-stdin")
	require.NoError(t, err)
}

// decodeData unwraps the data field of a --json response.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.True(t, resp.Success, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// =============================================================================
// AUTH
// =============================================================================

func TestLoginWhoamiLogout(t *testing.T) {
	e := newCLIEnv(t)

	out, _, err := e.run(t, testPassword+"\n", "login", "-e", testEmail, "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as "+testEmail)

	out, _, err = e.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, testEmail)
	assert.Contains(t, out, "Ada Lovelace")

	out, _, err = e.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, _, err = e.run(t, "", "whoami")
	require.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, ExitAuthError, exitCode(err))
}

func TestLogin_PromptsForEmail(t *testing.T) {
	e := newCLIEnv(t)

	_, stderr, err := e.run(t, testEmail+"\n"+testPassword+"\n", "login")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Email: ")
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run(t, "nope\n", "login", "-e", testEmail, "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, describe(err), "Incorrect email or password")
	assert.Equal(t, ExitGeneralError, exitCode(err))
}

func TestLogin_TokenIsSealedAtRest(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	data, err := os.ReadFile(filepath.Join(e.home, "state.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tok-", "token should not be stored in clear text")
	assert.FileExists(t, filepath.Join(e.home, keyFileName))
}

func TestWhoami_RevokedTokenClearsSession(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)
	e.backend.RevokeTokens()

	_, _, err := e.run(t, "", "whoami")
	require.Error(t, err)
	assert.Equal(t, ExitAuthError, exitCode(err))

	_, _, err = e.run(t, "", "whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestSignup(t *testing.T) {
	e := newCLIEnv(t)

	out, _, err := e.run(t, "s3cret-pass\n", "signup", "-e", "grace@example.com", "--password-stdin", "--name", "Grace")
	require.NoError(t, err)
	assert.Contains(t, out, "Created account grace@example.com")

	_, _, err = e.run(t, "s3cret-pass\n", "login", "-e", "grace@example.com", "--password-stdin")
	assert.NoError(t, err)
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_CreatesThreadImplicitly(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	out, _, err := e.run(t, "", "--json", "ask", "Hello", "there")
	require.NoError(t, err)

	var res struct {
		ThreadID string        `json:"thread_id"`
		Created  bool          `json:"created"`
		Reply    model.Message `json:"reply"`
	}
	decodeData(t, out, &res)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.ThreadID)
	assert.Equal(t, "You said: Hello there", res.Reply.Content)
	assert.Equal(t, model.RoleAssistant, res.Reply.Role)

	list := e.backend.Threads()
	require.Len(t, list, 1)
	assert.Equal(t, res.ThreadID, list[0].ID)
	assert.Equal(t, "Hello there", list[0].Title)
}

func TestAsk_ExistingThread(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)
	id := e.backend.AddThread(testEmail, "Existing")

	out, stderr, err := e.run(t, "", "ask", "--thread", id, "--raw", "again")
	require.NoError(t, err)
	assert.Contains(t, out, "You said: again")
	assert.NotContains(t, stderr, "Started conversation")
	assert.Len(t, e.backend.Messages(id), 2)
	assert.Len(t, e.backend.Threads(), 1)
}

func TestAsk_UnknownThread(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	_, _, err := e.run(t, "", "ask", "--thread", "missing", "hi")
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, exitCode(err))
	assert.Zero(t, e.backend.Calls(api.OpSendMessage))
}

func TestAsk_ReadsStdin(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	out, _, err := e.run(t, "from a pipe\n", "ask", "--raw", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "You said: from a pipe")
}

func TestAsk_EmptyMessage(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	_, _, err := e.run(t, "   \n", "ask", "-")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCode(err))
	assert.Zero(t, e.backend.Calls(api.OpSendMessage))
}

func TestAsk_SendFailure(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)
	e.backend.Fail(api.OpSendMessage, http.StatusInternalServerError, "model offline")

	_, _, err := e.run(t, "", "ask", "hi")
	require.Error(t, err)
	assert.Contains(t, describe(err), "model offline")
}

func TestAsk_RequiresLogin(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run(t, "", "ask", "hi")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

// =============================================================================
// THREADS / HISTORY
// =============================================================================

func TestThreadsCommands(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	out, _, err := e.run(t, "", "threads", "new", "Trip", "plans")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, _, err = e.run(t, "", "--json", "threads", "list")
	require.NoError(t, err)
	var list []model.Thread
	decodeData(t, out, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Trip plans", list[0].Title)

	out, _, err = e.run(t, "", "threads", "rename", id, "Holiday")
	require.NoError(t, err)
	assert.Contains(t, out, "Renamed to Holiday")
	assert.Equal(t, "Holiday", e.backend.Threads()[0].Title)

	out, _, err = e.run(t, "", "--json", "threads", "rename", id, "Beach")
	require.NoError(t, err)
	var renamed model.Thread
	decodeData(t, out, &renamed)
	assert.Equal(t, id, renamed.ID)
	assert.Equal(t, "Beach", renamed.Title)

	out, _, err = e.run(t, "", "threads", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Beach")

	_, _, err = e.run(t, "", "threads", "rm", id)
	require.NoError(t, err)
	assert.Empty(t, e.backend.Threads(), "rm does not create a replacement thread")

	out, _, err = e.run(t, "", "threads", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No conversations")
}

func TestThreadsRename_BlankTitle(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run(t, "", "threads", "rename", "abc", " ")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestThreadsRemove_Missing(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	_, _, err := e.run(t, "", "threads", "rm", uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, exitCode(err))
}

func TestHistory(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)
	id := e.backend.AddThread(testEmail, "Seeded")
	e.backend.AddMessage(id, model.RoleUser, "What is Go?")
	e.backend.AddMessage(id, model.RoleAssistant, "A programming language.")

	out, _, err := e.run(t, "", "history", "--raw", id)
	require.NoError(t, err)
	assert.Contains(t, out, "What is Go?")
	assert.Contains(t, out, "A programming language.")
	assert.Less(t, strings.Index(out, "What is Go?"), strings.Index(out, "A programming language."))

	out, _, err = e.run(t, "", "--json", "history", id)
	require.NoError(t, err)
	var msgs []model.Message
	decodeData(t, out, &msgs)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

// =============================================================================
// CONFIG / VERSION
// =============================================================================

func TestConfigPath(t *testing.T) {
	e := newCLIEnv(t)

	out, _, err := e.run(t, "", "--json", "config", "path")
	require.NoError(t, err)
	var paths map[string]string
	decodeData(t, out, &paths)
	assert.Equal(t, filepath.Join(e.home, "config.toml"), paths["config"])
	assert.Equal(t, filepath.Join(e.home, "state.json"), paths["state"])
	assert.Equal(t, filepath.Join(e.home, "threadchat.log"), paths["log"])
}

func TestConfigShow_IncludesOverrides(t *testing.T) {
	e := newCLIEnv(t)

	out, _, err := e.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url")
	assert.Contains(t, out, e.baseURL)
}

func TestServerFlag_Invalid(t *testing.T) {
	newCLIEnv(t)

	_, _, err := runBare(t, "--server", "ftp://example.com", "config", "show")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCode(err))
}

// runBare runs the root command without a backend.
func runBare(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return (&cliEnv{}).run(t, "", args...)
}

func TestVersion(t *testing.T) {
	out, _, err := runBare(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "threadchat "+Version)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not logged in", ErrNotLoggedIn, ExitAuthError},
		{"command error", &CommandError{Code: ExitConfigError, Err: errors.New("bad")}, ExitConfigError},
		{"unknown thread", chatflow.ErrUnknownThread, ExitNotFound},
		{"deadline", context.DeadlineExceeded, ExitTimeout},
		{"transport", &api.Error{Op: api.OpListThreads, Err: errors.New("refused")}, ExitNetworkError},
		{"not found", &api.Error{Op: api.OpGetThread, Status: 404}, ExitNotFound},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestJSONErrorResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONErrorResponse("threadchat ask", ErrNotLoggedIn).Write(&buf))

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrNotLoggedIn.Error(), *resp.Error)
	assert.Equal(t, "threadchat ask", resp.Command)
}

// =============================================================================
// LINE-MODE CHAT
// =============================================================================

type scriptedReader struct {
	lines   []string
	history []string
}

func (r *scriptedReader) Prompt(string) (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) AppendHistory(item string) {
	r.history = append(r.history, item)
}

func newTestREPL(t *testing.T, lines ...string) (*repl, *mockapi.Server, *bytes.Buffer, *scriptedReader) {
	t.Helper()
	backend := mockapi.New()
	backend.AddUser(testEmail, testPassword, "Ada")
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL+mockapi.Prefix, api.StaticToken(backend.IssueToken(testEmail)))
	ctrl := chatflow.New(client, nil, nil)
	_, err := ctrl.NewThread(context.Background(), "")
	require.NoError(t, err)

	opts := render.DefaultOptions()
	opts.Markdown = false
	var out bytes.Buffer
	in := &scriptedReader{lines: lines}
	return newREPL(ctrl, in, &out, render.New(opts)), backend, &out, in
}

func TestREPL_SendsAndQuits(t *testing.T) {
	r, backend, out, in := newTestREPL(t, "Hi", "", "/history", "/quit", "never sent")

	require.NoError(t, r.run(context.Background()))
	assert.Contains(t, out.String(), "You said: Hi")
	assert.Equal(t, []string{"Hi", "/history", "/quit"}, in.history)
	assert.Equal(t, 1, backend.Calls(api.OpSendMessage))
	assert.Equal(t, []string{"never sent"}, in.lines)
}

func TestREPL_SlashCommands(t *testing.T) {
	r, backend, out, _ := newTestREPL(t, "/new Second", "/threads", "/switch nope", "/bogus", "exit")

	require.NoError(t, r.run(context.Background()))
	text := out.String()
	assert.Contains(t, text, "Started Second")
	assert.Contains(t, text, "No conversation nope")
	assert.Contains(t, text, "Unknown command /bogus")
	assert.Len(t, backend.Threads(), 2)
}

func TestREPL_HelpAndUsage(t *testing.T) {
	r, _, out, in := newTestREPL(t, "/help", "/switch", "/q", "unreached")

	require.NoError(t, r.run(context.Background()))
	text := out.String()
	assert.Contains(t, text, "/new [title]")
	assert.Contains(t, text, "Usage: /switch ID")
	assert.Equal(t, []string{"unreached"}, in.lines)
}

func TestREPL_CompletesThreadIDs(t *testing.T) {
	r, _, _, _ := newTestREPL(t)
	id := r.ctrl.Snapshot().Selected
	require.NotEmpty(t, id)

	assert.Equal(t, []string{"/switch " + id}, r.completer.Line("/switch "+id[:4]))
	assert.Equal(t, []string{"/threads"}, r.completer.Line("/th"))
}

func TestREPL_SwitchLoadsHistory(t *testing.T) {
	r, backend, out, _ := newTestREPL(t)
	id := backend.AddThread(testEmail, "Older")
	backend.AddMessage(id, model.RoleUser, "earlier question")
	_, err := r.ctrl.LoadThreads(context.Background())
	require.NoError(t, err)

	r.in = &scriptedReader{lines: []string{"/switch " + id}}
	require.NoError(t, r.run(context.Background()))
	assert.Contains(t, out.String(), "earlier question")
	assert.Equal(t, id, r.ctrl.Snapshot().Selected)
}

func TestREPL_SendFailureKeepsGoing(t *testing.T) {
	r, backend, out, _ := newTestREPL(t, "first", "second")
	backend.FailTimes(api.OpSendMessage, http.StatusBadGateway, "upstream", 1)

	require.NoError(t, r.run(context.Background()))
	assert.Contains(t, out.String(), chatflow.SendFailedToast)
	assert.Contains(t, out.String(), "You said: second")
}

func TestREPL_ExpiredSessionEnds(t *testing.T) {
	r, backend, _, in := newTestREPL(t, "hello", "after")
	backend.RevokeTokens()

	err := r.run(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, []string{"after"}, in.lines)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_ToStdout(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)
	id := e.backend.AddThread(testEmail, "Recipes")
	e.backend.AddMessage(id, model.RoleUser, "Pancakes?")
	e.backend.AddMessage(id, model.RoleAssistant, "Flour, eggs, milk.")

	out, _, err := e.run(t, "", "export", id, "-o", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "# Recipes")
	assert.Contains(t, out, "Pancakes?")
	assert.Contains(t, out, "Flour, eggs, milk.")
}

func TestExport_HTMLFile(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)
	id := e.backend.AddThread(testEmail, "Recipes")
	e.backend.AddMessage(id, model.RoleUser, "Pancakes?")
	dir := t.TempDir()

	out, _, err := e.run(t, "", "--json", "export", id, "--format", "html", "-o", dir)
	require.NoError(t, err)
	var res map[string]string
	decodeData(t, out, &res)
	assert.Equal(t, "html", res["format"])
	assert.Equal(t, dir, filepath.Dir(res["path"]))

	data, err := os.ReadFile(res["path"])
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>Recipes</title>")
}

func TestExport_BadFormat(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run(t, "", "export", "abc", "--format", "pdf")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCode(err))
}
