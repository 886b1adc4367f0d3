// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/jeranaias/threadchat/internal/ui/styles"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// Activity is what the chat pane is doing right now.
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityLoading
	ActivitySending
)

// String returns the label shown in the status bar.
func (a Activity) String() string {
	switch a {
	case ActivityLoading:
		return "Loading..."
	case ActivitySending:
		return "Waiting for reply..."
	default:
		return "Ready"
	}
}

// Icon returns an ASCII marker so the state reads without color.
func (a Activity) Icon() string {
	if a == ActivityIdle {
		return styles.StatusIndicators.Success
	}
	return styles.StatusIndicators.Pending
}

// StatusBar is the bottom line of the chat screen.
type StatusBar struct {
	Width     int
	Account   string
	Server    string
	Activity  Activity
	Shortcuts []key.Binding
}

// View renders the bar. Shortcuts are dropped from the right until the
// line fits.
func (s StatusBar) View(theme *styles.Theme) string {
	left := s.Activity.Icon() + " " + s.Activity.String()
	if s.Account != "" {
		left += "  " + s.Account
	}
	if s.Server != "" {
		left += " @ " + s.Server
	}

	inner := s.Width - theme.StatusBar.GetHorizontalFrameSize()
	if inner < 1 {
		inner = 1
	}

	shortcuts := make([]string, 0, len(s.Shortcuts))
	for _, b := range s.Shortcuts {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		shortcuts = append(shortcuts, theme.ShortcutKey.Render(h.Key)+" "+theme.ShortcutDesc.Render(h.Desc))
	}

	var right string
	for len(shortcuts) > 0 {
		right = strings.Join(shortcuts, "  ")
		if lipgloss.Width(left)+lipgloss.Width(right)+2 <= inner {
			break
		}
		shortcuts = shortcuts[:len(shortcuts)-1]
		right = ""
	}

	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return theme.StatusBar.Width(s.Width).Render(left + strings.Repeat(" ", gap) + right)
}
