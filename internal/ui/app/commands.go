// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/threadchat/internal/chatflow"
	"github.com/jeranaias/threadchat/internal/session"
)

// =============================================================================
// MESSAGES
// =============================================================================

// loginDoneMsg carries the result of a login attempt. Success is also
// announced through the session subscription.
type loginDoneMsg struct {
	email string
	err   error
}

type threadsLoadedMsg struct {
	load chatflow.Load
	err  error
}

type historyLoadedMsg struct {
	threadID string
	err      error
}

type threadCreatedMsg struct {
	err error
}

type threadDeletedMsg struct {
	load chatflow.Load
	err  error
}

type threadRenamedMsg struct {
	err error
}

type submitDoneMsg struct {
	out chatflow.Outcome
}

// =============================================================================
// COMMANDS
// =============================================================================

// Every command below runs off the event loop. The controller guards its
// own state, so only the returned message touches the model.

func loginCmd(ctx context.Context, sess *session.Store, auth session.Authenticator, email, password string) tea.Cmd {
	return func() tea.Msg {
		return loginDoneMsg{email: email, err: sess.Login(ctx, auth, email, password)}
	}
}

// loadThreadsCmd loads the list and, when it came back empty, creates the
// first conversation.
func loadThreadsCmd(ctx context.Context, ctrl *chatflow.Controller) tea.Cmd {
	return func() tea.Msg {
		ld, err := ctrl.LoadThreads(ctx)
		if err != nil {
			return threadsLoadedMsg{load: ld, err: err}
		}
		created, err := ctrl.EnsureThread(ctx)
		if created.ThreadID != "" {
			ld = created
		}
		return threadsLoadedMsg{load: ld, err: err}
	}
}

// completeLoadCmd returns nil when the load needs no request.
func completeLoadCmd(ctx context.Context, ctrl *chatflow.Controller, ld chatflow.Load) tea.Cmd {
	if !ld.NeedsFetch() {
		return nil
	}
	return func() tea.Msg {
		return historyLoadedMsg{threadID: ld.ThreadID, err: ctrl.CompleteLoad(ctx, ld)}
	}
}

func newThreadCmd(ctx context.Context, ctrl *chatflow.Controller) tea.Cmd {
	return func() tea.Msg {
		_, err := ctrl.NewThread(ctx, "")
		return threadCreatedMsg{err: err}
	}
}

func deleteThreadCmd(ctx context.Context, ctrl *chatflow.Controller, id string) tea.Cmd {
	return func() tea.Msg {
		ld, err := ctrl.DeleteThread(ctx, id)
		return threadDeletedMsg{load: ld, err: err}
	}
}

func renameThreadCmd(ctx context.Context, ctrl *chatflow.Controller, id, title string) tea.Cmd {
	return func() tea.Msg {
		return threadRenamedMsg{err: ctrl.RenameThread(ctx, id, title)}
	}
}

func submitCmd(ctx context.Context, ctrl *chatflow.Controller, p *chatflow.Pending) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{out: ctrl.CompleteSubmit(ctx, p)}
	}
}
