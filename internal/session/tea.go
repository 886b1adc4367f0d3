// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	tea "github.com/charmbracelet/bubbletea"
)

// StatusMsg is delivered to the UI when the session status changes.
type StatusMsg struct {
	Status Status
}

// WaitCmd blocks on ch and turns the next status into a StatusMsg. The UI
// re-issues it after every message to keep listening. A closed channel
// yields nil.
func WaitCmd(ch <-chan Status) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return StatusMsg{Status: st}
	}
}
