// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/render"
	"github.com/jeranaias/threadchat/internal/ui/styles"
)

func TestToastManager(t *testing.T) {
	m := NewToastManager()
	assert.False(t, m.HasToasts())

	first := m.AddError("one")
	second := m.AddStatus("two")
	assert.NotEqual(t, first, second)

	toasts := m.Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, "two", toasts[0].Message, "newest first")

	m.Dismiss()
	assert.Equal(t, "one", m.Toasts()[0].Message)

	m.Clear()
	assert.False(t, m.HasToasts())
}

func TestToastManager_CapsVisible(t *testing.T) {
	m := NewToastManager()
	for i := 0; i < 5; i++ {
		m.AddStatus(fmt.Sprint(i))
	}
	assert.Len(t, m.Toasts(), 3)
}

func TestToastManager_TickExpires(t *testing.T) {
	m := NewToastManager()
	m.AddStatus("short")
	m.AddError("long")

	now := time.Now()
	assert.True(t, m.Tick(now.Add(DefaultToastDuration+time.Millisecond)))
	require.Len(t, m.Toasts(), 1)
	assert.Equal(t, "long", m.Toasts()[0].Message)

	assert.False(t, m.Tick(now.Add(ErrorToastDuration+time.Second)))
}

func TestRenderToast(t *testing.T) {
	toast := NewErrorToast("Failed to get a response. Please try again.")
	out := RenderToast(toast, 100, toast.CreatedAt)
	assert.Contains(t, out, "Failed to get a response.")
	assert.Contains(t, out, styles.StatusIndicators.Error)
	assert.Contains(t, out, "8s")

	assert.Empty(t, RenderToastStack(nil, 80, 24, time.Now()))
	assert.Contains(t, RenderToastStack([]Toast{toast}, 80, 24, time.Now()), "Dismiss")
}

func threadsN(n int) []*model.Thread {
	out := make([]*model.Thread, n)
	for i := range out {
		out[i] = &model.Thread{ID: fmt.Sprintf("t%02d", i), Title: fmt.Sprintf("Thread %02d", i)}
	}
	return out
}

func TestSidebar_ShowsSelectionAndPreview(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	threads := threadsN(2)
	threads[1] = threads[1].WithLastMessage("<p>last <b>reply</b></p>")

	s := NewSidebar(30)
	s.Height = 20
	out := s.View(theme, threads, "t01")
	assert.Contains(t, out, "Thread 00")
	assert.Contains(t, out, "Thread 01")
	assert.Contains(t, out, "last reply")
	assert.NotContains(t, out, "<b>")
}

func TestSidebar_ScrollsToSelection(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	threads := threadsN(20)
	s := NewSidebar(30)
	s.Height = 8 // three threads fit

	out := s.View(theme, threads, "t15")
	assert.Contains(t, out, "Thread 15")
	assert.NotContains(t, out, "Thread 00")

	out = s.View(theme, threads, "t00")
	assert.Contains(t, out, "Thread 00")
	assert.NotContains(t, out, "Thread 15")
}

func TestSidebar_EditingAndEmpty(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	s := NewSidebar(30)
	s.Height = 10
	assert.Contains(t, s.View(theme, nil, ""), "No conversations")

	s.Editing = "Renaming..."
	out := s.View(theme, threadsN(1), "t00")
	assert.Contains(t, out, "Renaming...")
	assert.NotContains(t, out, "Thread 00")

	assert.Empty(t, NewSidebar(0).View(theme, threadsN(1), "t00"))
}

func TestRenderMessages(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	r := render.New(render.Options{Width: 60, Markdown: false})

	assert.Contains(t, RenderMessages(theme, r, nil, 60), "No messages yet")

	msgs := []model.Message{
		model.NewMessage(model.RoleUser, "what is 2+2?", time.Now()),
		model.NewMessage(model.RoleAssistant, "<p>It is <strong>4</strong>.</p>", time.Now()),
	}
	out := RenderMessages(theme, r, msgs, 60)
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "Assistant")
	assert.Contains(t, out, "what is 2+2?")
	assert.Contains(t, out, "**4**")
	assert.True(t, strings.Index(out, "You") < strings.Index(out, "Assistant"))
}

func TestStatusBar_DropsShortcutsThatDoNotFit(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	bar := StatusBar{
		Width:    120,
		Account:  "ada@example.com",
		Activity: ActivitySending,
		Shortcuts: []key.Binding{
			key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new thread")),
			key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		},
	}

	out := bar.View(theme)
	assert.Contains(t, out, "Waiting for reply...")
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "new thread")
	assert.Contains(t, out, "quit")

	bar.Width = 50
	out = bar.View(theme)
	assert.Contains(t, out, "ada@example.com")
	assert.NotContains(t, out, "quit")
}
