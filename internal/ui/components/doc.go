// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the stateless and lightly stateful pieces the
threadchat TUI is assembled from.

# Components

Sidebar (sidebar.go) - Scrolling thread list with title and preview rows.
RenderMessages (messages.go) - Message log rendering for the chat pane.
ToastManager (toast.go) - Transient notifications with expiry.
StatusBar (statusbar.go) - Bottom line with account, state and shortcuts.

Every render function takes the *styles.Theme explicitly:

	sidebar := components.NewSidebar(theme.SidebarWidth(32))
	sidebar.Height = 20
	view := sidebar.View(theme, threads, selectedID)
*/
package components
