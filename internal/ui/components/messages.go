// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/render"
	"github.com/jeranaias/threadchat/internal/ui/styles"
)

// RenderMessages draws the message log for a pane width columns wide.
// User text is shown as typed; assistant content goes through the
// renderer.
func RenderMessages(theme *styles.Theme, r *render.Renderer, msgs []model.Message, width int) string {
	if len(msgs) == 0 {
		return theme.EmptyState.Render("No messages yet. Type below to start the conversation.")
	}
	bodyWidth := max(width-4, 10)
	r.SetWidth(bodyWidth)

	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, renderMessage(theme, r, m, bodyWidth))
	}
	return strings.Join(parts, "\n\n")
}

func renderMessage(theme *styles.Theme, r *render.Renderer, m model.Message, width int) string {
	label := theme.AssistantLabel
	bubble := theme.AssistantBubble
	body := r.Render(m.Content)
	if m.IsUser() {
		label = theme.UserLabel
		bubble = theme.UserBubble
		body = r.Sanitize(m.Content)
	}
	header := label.Render(m.Role.DisplayName()) + " " +
		theme.Timestamp.Render(m.Time().Format("15:04"))
	return header + "\n" + bubble.Width(width).Render(body)
}
