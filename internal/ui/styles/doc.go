// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles holds the palette and lipgloss styles of the chat TUI.
//
// Colors are lipgloss.AdaptiveColor values so one definition serves light
// and dark terminals. NewTheme detects the terminal with termenv unless the
// configured theme forces a background.
package styles
