// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/threadchat/internal/ui/components"
	"github.com/jeranaias/threadchat/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the current screen.
func (m Model) View() string {
	switch m.screen {
	case screenLogin:
		return m.loginView()
	case screenChat:
		return m.chatView()
	default:
		return m.center(m.spinner.View() + " Loading...")
	}
}

func (m Model) center(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

func (m Model) loginView() string {
	t := m.theme
	var b strings.Builder
	b.WriteString(t.LoginTitle.Render("threadchat"))
	b.WriteString("\n")
	b.WriteString(t.LoginLabel.Render("Email"))
	b.WriteString("\n")
	b.WriteString(m.email.View())
	b.WriteString("\n\n")
	b.WriteString(t.LoginLabel.Render("Password"))
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")

	switch {
	case m.loggingIn:
		b.WriteString(m.spinner.View() + " Signing in...")
	case m.loginErr != "":
		b.WriteString(t.LoginError.Render(m.loginErr))
	default:
		b.WriteString(t.LoginHint.Render("enter: sign in  tab: next field  ctrl+c: quit"))
	}
	return m.center(t.LoginBox.Width(48).Render(b.String()))
}

func (m Model) chatView() string {
	t := m.theme
	mainWidth := m.viewport.Width

	title := "New Chat"
	if sel := m.view.SelectedThread(); sel != nil {
		title = sel.DisplayTitle()
	}
	header := t.Header.Width(mainWidth).Render(util.TruncateWidth(title, max(mainWidth-4, 1)))

	vp := m.viewport
	var toasts string
	if m.toasts.HasToasts() {
		toasts = components.RenderToastStack(m.toasts.Toasts(), mainWidth, 0, m.now())
		vp.Height = max(vp.Height-lipgloss.Height(toasts), 1)
		if m.viewport.AtBottom() {
			vp.GotoBottom()
		}
	}

	var thinking string
	switch {
	case m.view.Submitting:
		thinking = m.spinner.View() + " " + t.ThinkingText.Render("Thinking...")
	case m.view.Loading || m.loading:
		thinking = m.spinner.View() + " " + t.ThinkingText.Render("Loading messages...")
	case m.confirmDelete != "":
		thinking = t.LoginError.Render("Delete this conversation? Press y to confirm.")
	}

	box := t.InputContainer
	if m.focus == focusComposer && !m.view.Submitting {
		box = t.InputContainerFocused
	}
	composer := box.Width(mainWidth - box.GetHorizontalBorderSize()).Render(m.composer.View())

	parts := []string{header, vp.View()}
	if toasts != "" {
		parts = append(parts, lipgloss.PlaceHorizontal(mainWidth, lipgloss.Right, toasts))
	}
	parts = append(parts, thinking, composer)
	main := lipgloss.JoinVertical(lipgloss.Left, parts...)

	sidebar := m.sidebar
	if m.renaming {
		sidebar.Editing = m.rename.View()
	} else {
		sidebar.Editing = ""
	}
	body := main
	if sidebar.Width > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			sidebar.View(t, m.view.Threads, m.view.Selected), main)
	}

	return lipgloss.JoinVertical(lipgloss.Left, body, m.footer())
}

func (m Model) footer() string {
	if m.help.ShowAll {
		return m.help.FullHelpView(m.keys.FullHelp())
	}
	activity := components.ActivityIdle
	switch {
	case m.view.Submitting:
		activity = components.ActivitySending
	case m.view.Loading || m.loading:
		activity = components.ActivityLoading
	}
	bar := components.StatusBar{
		Width:     m.width,
		Account:   m.account,
		Server:    m.server,
		Activity:  activity,
		Shortcuts: m.keys.ShortHelp(),
	}
	return bar.View(m.theme)
}
