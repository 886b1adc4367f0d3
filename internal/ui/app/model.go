// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the full-screen bubbletea program: a login form shown
// while the session is unauthenticated, and the thread sidebar, message
// pane and composer once it is.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/chatflow"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/render"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/ui/components"
	"github.com/jeranaias/threadchat/internal/ui/styles"
)

// SessionExpiredText is shown on the login form after a 401 or logout from
// another process.
const SessionExpiredText = "Your session has ended. Please sign in again."

// =============================================================================
// MODEL STATE
// =============================================================================

type screen int

const (
	screenLoading screen = iota
	screenLogin
	screenChat
)

type focus int

const (
	focusComposer focus = iota
	focusSidebar
)

const (
	loginFieldEmail = iota
	loginFieldPassword
)

// composerLines is the visible height of the message input.
const composerLines = 3

// Options carries the collaborators of the program.
type Options struct {
	Session    *session.Store
	Auth       session.Authenticator
	Controller *chatflow.Controller
	Renderer   *render.Renderer
	Theme      *styles.Theme

	// SidebarWidth is the preferred width on wide terminals.
	SidebarWidth int
	// Server is shown in the status bar.
	Server string
	// Account is the signed-in email when already known.
	Account string
	// Context bounds every request the program makes. Defaults to
	// context.Background.
	Context context.Context
}

// Model is the root bubbletea model.
type Model struct {
	sess     *session.Store
	auth     session.Authenticator
	ctrl     *chatflow.Controller
	renderer *render.Renderer
	theme    *styles.Theme
	ctx      context.Context
	logger   *slog.Logger

	keys   KeyMap
	help   help.Model
	screen screen
	width  int
	height int
	server string

	// Login form
	email      textinput.Model
	password   textinput.Model
	loginField int
	loginErr   string
	loggingIn  bool
	account    string

	// Chat screen
	sidebar       *components.Sidebar
	sidebarWidth  int
	viewport      viewport.Model
	composer      textarea.Model
	spinner       spinner.Model
	spinning      bool
	toasts        *components.ToastManager
	toastTicking  bool
	focus         focus
	renaming      bool
	rename        textinput.Model
	confirmDelete string
	loading       bool

	view chatflow.View

	status      <-chan session.Status
	unsubscribe func()
	now         func() time.Time
}

// New builds the model and subscribes to session changes.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ModeAuto)
	}
	sidebarWidth := opts.SidebarWidth
	if sidebarWidth <= 0 {
		sidebarWidth = 30
	}

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = ""
	email.CharLimit = 254
	email.SetValue(opts.Account)
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = ""
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'

	composer := textarea.New()
	composer.Placeholder = "Send a message..."
	composer.ShowLineNumbers = false
	composer.Prompt = ""
	composer.CharLimit = 0
	composer.SetHeight(composerLines)
	composer.KeyMap.InsertNewline = DefaultKeyMap().Newline

	rename := textinput.New()
	rename.Prompt = "> "
	rename.CharLimit = 255

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	m := Model{
		sess:         opts.Session,
		auth:         opts.Auth,
		ctrl:         opts.Controller,
		renderer:     opts.Renderer,
		theme:        theme,
		ctx:          ctx,
		logger:       logging.Component("ui"),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		screen:       screenLoading,
		server:       opts.Server,
		email:        email,
		password:     password,
		account:      opts.Account,
		sidebar:      components.NewSidebar(sidebarWidth),
		sidebarWidth: sidebarWidth,
		viewport:     viewport.New(80, 20),
		composer:     composer,
		spinner:      sp,
		toasts:       components.NewToastManager(),
		rename:       rename,
		now:          time.Now,
	}
	if m.renderer == nil {
		m.renderer = render.New(render.DefaultOptions())
	}
	m.status, m.unsubscribe = m.sess.Subscribe()
	return m
}

// Close drops the session subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init reads the persisted token and starts listening for session changes.
func (m Model) Init() tea.Cmd {
	sess := m.sess
	return tea.Batch(
		session.WaitCmd(m.status),
		func() tea.Msg {
			if err := sess.Init(); err != nil {
				m.logger.Warn("failed to read session", "error", err)
			}
			return session.StatusMsg{Status: sess.Status()}
		},
		textinput.Blink,
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case session.StatusMsg:
		return m.handleStatus(msg)

	case loginDoneMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.loginErr = loginErrorText(msg.err)
			return m, nil
		}
		m.account = msg.email
		m.loginErr = ""
		m.password.Reset()
		return m, nil

	case threadsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.logger.Warn("thread list failed", "error", msg.err)
		}
		m.refresh()
		return m, m.startLoad(msg.load)

	case historyLoadedMsg:
		if msg.err != nil {
			m.logger.Warn("history load failed", "thread", msg.threadID, "error", msg.err)
		}
		m.refresh()
		return m, nil

	case threadCreatedMsg:
		m.refresh()
		if msg.err != nil {
			return m, m.toast(api.Message(msg.err))
		}
		return m, m.focusComposer()

	case threadDeletedMsg:
		m.refresh()
		if msg.err != nil {
			return m, m.toast(api.Message(msg.err))
		}
		return m, m.startLoad(msg.load)

	case threadRenamedMsg:
		if msg.err != nil {
			m.logger.Info("rename failed", "error", msg.err)
		}
		m.refresh()
		return m, nil

	case submitDoneMsg:
		m.refresh()
		cmds := []tea.Cmd{m.focusComposer()}
		if msg.out.Toast != "" {
			cmds = append(cmds, m.toast(msg.out.Toast))
		}
		return m, tea.Batch(cmds...)

	case components.ToastTickMsg:
		m.toasts.Tick(msg.Time)
		if m.toasts.HasToasts() {
			return m, components.ToastTickCmd()
		}
		m.toastTicking = false
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.forward(msg)
}

// forward hands anything unhandled to the focused input.
func (m Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.screen == screenLogin && m.loginField == loginFieldEmail:
		m.email, cmd = m.email.Update(msg)
	case m.screen == screenLogin:
		m.password, cmd = m.password.Update(msg)
	case m.renaming:
		m.rename, cmd = m.rename.Update(msg)
	case m.screen == screenChat && m.focus == focusComposer:
		m.composer, cmd = m.composer.Update(msg)
	}
	return m, cmd
}

// =============================================================================
// SESSION
// =============================================================================

func (m Model) handleStatus(msg session.StatusMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{session.WaitCmd(m.status)}

	switch msg.Status {
	case session.StatusAuthenticated:
		if m.screen == screenChat {
			return m, tea.Batch(cmds...)
		}
		m.screen = screenChat
		m.loading = true
		m.layout()
		m.refresh()
		cmds = append(cmds, loadThreadsCmd(m.ctx, m.ctrl), m.focusComposer(), m.spin())

	case session.StatusUnauthenticated:
		if m.screen == screenChat {
			m.loginErr = SessionExpiredText
		}
		m.ctrl.Reset()
		m.toasts.Clear()
		m.renaming = false
		m.confirmDelete = ""
		m.composer.Reset()
		m.screen = screenLogin
		m.loginField = loginFieldEmail
		m.password.Reset()
		m.password.Blur()
		cmds = append(cmds, m.email.Focus())

	default:
		m.screen = screenLoading
	}
	return m, tea.Batch(cmds...)
}

func loginErrorText(err error) string {
	if errors.Is(err, session.ErrMissingCredentials) {
		return "Please enter your email and password."
	}
	return api.Message(err)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	switch m.screen {
	case screenLogin:
		return m.handleLoginKey(msg)
	case screenChat:
		return m.handleChatKey(msg)
	}
	return m, nil
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		return m, m.switchLoginField()
	case "enter":
		if m.loginField == loginFieldEmail {
			return m, m.switchLoginField()
		}
		if m.loggingIn {
			return m, nil
		}
		m.loggingIn = true
		m.loginErr = ""
		return m, tea.Batch(
			loginCmd(m.ctx, m.sess, m.auth, m.email.Value(), m.password.Value()),
			m.spin(),
		)
	}
	return m.forward(msg)
}

func (m *Model) switchLoginField() tea.Cmd {
	if m.loginField == loginFieldEmail {
		m.loginField = loginFieldPassword
		m.email.Blur()
		return m.password.Focus()
	}
	m.loginField = loginFieldEmail
	m.password.Blur()
	return m.email.Focus()
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.renaming {
		return m.handleRenameKey(msg)
	}
	if m.confirmDelete != "" {
		id := m.confirmDelete
		m.confirmDelete = ""
		if key.Matches(msg, m.keys.Confirm) {
			return m, deleteThreadCmd(m.ctx, m.ctrl, id)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Dismiss):
		if m.toasts.HasToasts() {
			m.toasts.Dismiss()
			return m, nil
		}
		if m.focus == focusSidebar {
			return m, m.focusComposer()
		}
		return m, nil
	case key.Matches(msg, m.keys.NewThread):
		return m, newThreadCmd(m.ctx, m.ctrl)
	case key.Matches(msg, m.keys.Logout):
		if err := m.sess.Logout(); err != nil {
			return m, m.toast(err.Error())
		}
		return m, nil
	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusComposer {
			m.focusSidebar()
			return m, nil
		}
		return m, m.focusComposer()
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleComposerKey(msg)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		return m.selectNeighbor(-1)
	case key.Matches(msg, m.keys.Down):
		return m.selectNeighbor(1)
	case key.Matches(msg, m.keys.Rename):
		t := m.view.SelectedThread()
		if t == nil {
			return m, nil
		}
		m.renaming = true
		m.rename.SetValue(t.DisplayTitle())
		m.rename.CursorEnd()
		return m, m.rename.Focus()
	case key.Matches(msg, m.keys.Delete):
		m.confirmDelete = m.view.Selected
		return m, nil
	case key.Matches(msg, m.keys.Send):
		return m, m.focusComposer()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil
	}
	return m, nil
}

func (m Model) selectNeighbor(offset int) (tea.Model, tea.Cmd) {
	id := m.ctrl.Neighbor(offset)
	if id == "" || id == m.view.Selected {
		return m, nil
	}
	ld, err := m.ctrl.BeginSelect(id)
	if err != nil {
		m.logger.Warn("select failed", "thread", id, "error", err)
		return m, nil
	}
	m.refresh()
	return m, m.startLoad(ld)
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.renaming = false
		m.rename.Blur()
		return m, nil
	case "enter":
		m.renaming = false
		m.rename.Blur()
		title := strings.TrimSpace(m.rename.Value())
		t := m.view.SelectedThread()
		if title == "" || t == nil || title == t.Title {
			return m, nil
		}
		return m, renameThreadCmd(m.ctx, m.ctrl, t.ID, title)
	}
	return m.forward(msg)
}

func (m Model) handleComposerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Input is disabled while a reply is pending.
	if m.ctrl.Submitting() {
		return m, nil
	}
	if !key.Matches(msg, m.keys.Send) {
		return m.forward(msg)
	}
	// The draft waits until the history of the thread has arrived.
	if m.view.Loading {
		return m, nil
	}

	p, err := m.ctrl.BeginSubmit(m.composer.Value())
	if err != nil {
		if errors.Is(err, chatflow.ErrLoading) {
			m.refresh()
		}
		return m, nil
	}
	m.composer.Reset()
	m.composer.Blur()
	m.refresh()
	return m, tea.Batch(submitCmd(m.ctx, m.ctrl, p), m.spin())
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Model) startLoad(ld chatflow.Load) tea.Cmd {
	cmd := completeLoadCmd(m.ctx, m.ctrl, ld)
	if cmd == nil {
		return nil
	}
	m.refresh()
	return tea.Batch(cmd, m.spin())
}

func (m *Model) focusComposer() tea.Cmd {
	m.focus = focusComposer
	m.sidebar.Focused = false
	if m.ctrl.Submitting() {
		return nil
	}
	return m.composer.Focus()
}

func (m *Model) focusSidebar() {
	m.focus = focusSidebar
	m.sidebar.Focused = true
	m.composer.Blur()
}

// toast shows an error toast and starts the expiry ticker if needed.
func (m *Model) toast(message string) tea.Cmd {
	m.toasts.Add(components.NewErrorToast(message))
	if m.toastTicking {
		return nil
	}
	m.toastTicking = true
	return components.ToastTickCmd()
}

func (m Model) busy() bool {
	return m.loggingIn || m.loading || m.view.Loading || m.view.Submitting
}

// spin starts the spinner unless it is already running.
func (m *Model) spin() tea.Cmd {
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

// refresh snapshots the controller and re-renders the message pane.
func (m *Model) refresh() {
	if m.ctrl == nil {
		return
	}
	m.view = m.ctrl.Snapshot()
	if m.confirmDelete != "" && m.confirmDelete != m.view.Selected {
		m.confirmDelete = ""
	}
	wasBottom := m.viewport.AtBottom()
	m.viewport.SetContent(components.RenderMessages(m.theme, m.renderer, m.view.Messages, m.viewport.Width))
	if wasBottom || m.view.Submitting {
		m.viewport.GotoBottom()
	}
}

// layout sizes the panes for the current terminal.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	sw := m.theme.SidebarWidth(m.sidebarWidth)
	m.sidebar.Width = sw
	m.sidebar.Height = max(m.height-1, 1)

	mainWidth := max(m.width-sw, 20)
	m.composer.SetWidth(max(mainWidth-m.theme.InputContainer.GetHorizontalFrameSize(), 10))
	m.help.Width = m.width

	// header, thinking line and status bar, plus the composer box
	chrome := 1 + m.theme.Header.GetVerticalFrameSize() + 1 + 1 +
		composerLines + m.theme.InputContainer.GetVerticalFrameSize()
	if m.help.ShowAll {
		chrome += len(m.keys.FullHelp()[0]) + 1
	}
	m.viewport.Width = mainWidth
	m.viewport.Height = max(m.height-chrome, 3)
}
