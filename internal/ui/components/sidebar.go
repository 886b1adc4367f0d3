// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/ui/styles"
	"github.com/jeranaias/threadchat/internal/util"
)

// rowsPerThread is the title line plus the preview line.
const rowsPerThread = 2

// Sidebar draws the thread list. It keeps only the scroll offset; the
// threads and selection come from the caller on every render.
type Sidebar struct {
	Width   int
	Height  int
	Focused bool
	// Editing replaces the selected title with this line while renaming.
	Editing string

	offset int
}

// NewSidebar creates a sidebar of the given width.
func NewSidebar(width int) *Sidebar {
	return &Sidebar{Width: width}
}

// visible returns how many threads fit.
func (s *Sidebar) visible() int {
	// Title plus its margin take two rows.
	return max((s.Height-2)/rowsPerThread, 1)
}

// scrollTo adjusts the offset so index is on screen.
func (s *Sidebar) scrollTo(index, total int) {
	n := s.visible()
	if index < s.offset {
		s.offset = index
	}
	if index >= s.offset+n {
		s.offset = index - n + 1
	}
	s.offset = min(s.offset, max(total-n, 0))
	s.offset = max(s.offset, 0)
}

// View renders threads with selected highlighted.
func (s *Sidebar) View(theme *styles.Theme, threads []*model.Thread, selected string) string {
	if s.Width <= 0 {
		return ""
	}
	inner := max(s.Width-2, 4)

	var b strings.Builder
	b.WriteString(theme.SidebarTitle.Render(util.TruncateWidth("Conversations", inner)))
	b.WriteString("\n")

	if len(threads) == 0 {
		b.WriteString(theme.ThreadPreview.Render("No conversations"))
	}

	sel := -1
	for i, t := range threads {
		if t.ID == selected {
			sel = i
			break
		}
	}
	if sel >= 0 {
		s.scrollTo(sel, len(threads))
	}

	end := min(s.offset+s.visible(), len(threads))
	for i := s.offset; i < end; i++ {
		t := threads[i]
		title := t.DisplayTitle()
		style := theme.ThreadItem
		if i == sel {
			style = theme.ThreadSelected
			if s.Editing != "" {
				title = s.Editing
				style = theme.ThreadEditInput
			}
		}
		b.WriteString(style.Width(inner).Render(util.TruncateWidth(title, inner-1)))
		b.WriteString("\n")
		preview := util.TruncateWidth(model.PlainText(t.LastMessage), inner-3)
		b.WriteString(theme.ThreadPreview.Render(preview))
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	frame := theme.Sidebar
	if s.Focused {
		frame = theme.SidebarFocused
	}
	return frame.Width(s.Width - 1).Height(max(s.Height, 1)).Render(b.String())
}
