// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns message content into terminal text.
//
// Backend replies arrive as HTML converted from Markdown. Content is first
// sanitized, then converted back to Markdown and drawn with glamour. With
// markdown rendering off, the Markdown is shown as-is with fenced code
// highlighted by chroma.
package render

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"

	"github.com/jeranaias/threadchat/internal/logging"
)

// Style names accepted in Options.Style.
const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
)

// maxCache bounds the rendered-output cache.
const maxCache = 512

// Options configures a Renderer.
type Options struct {
	Width     int
	Style     string
	Markdown  bool
	Highlight bool
	// CodeStyle is the chroma style used when Markdown is off.
	CodeStyle string
}

// DefaultOptions renders markdown at 80 columns with the terminal's
// background deciding the palette.
func DefaultOptions() Options {
	return Options{
		Width:     80,
		Style:     StyleAuto,
		Markdown:  true,
		Highlight: true,
		CodeStyle: "monokai",
	}
}

// Renderer is safe for concurrent use.
type Renderer struct {
	mu     sync.Mutex
	opts   Options
	policy *bluemonday.Policy
	md     *glamour.TermRenderer
	cache  map[string]string
	log    *slog.Logger
}

// New creates a renderer. A glamour setup failure falls back to plain
// output instead of failing.
func New(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.CodeStyle == "" {
		opts.CodeStyle = "monokai"
	}
	r := &Renderer{
		opts:   opts,
		policy: NewPolicy(),
		cache:  make(map[string]string),
		log:    logging.Component("render"),
	}
	r.rebuild()
	return r
}

func (r *Renderer) rebuild() {
	r.md = nil
	r.cache = make(map[string]string)
	if !r.opts.Markdown {
		return
	}
	styleOpt := glamour.WithAutoStyle()
	if r.opts.Style != "" && r.opts.Style != StyleAuto {
		styleOpt = glamour.WithStandardStyle(r.opts.Style)
	}
	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(r.opts.Width))
	if err != nil {
		r.log.Warn("markdown renderer unavailable", "error", err)
		return
	}
	r.md = md
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts.Width
}

// SetWidth changes the wrap width. Cached output is dropped.
func (r *Renderer) SetWidth(width int) {
	if width <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if width == r.opts.Width {
		return
	}
	r.opts.Width = width
	r.rebuild()
}

// Sanitize removes anything outside the user-content policy from HTML.
// Text without tags is returned unchanged.
func (r *Renderer) Sanitize(content string) string {
	if !LooksLikeHTML(content) {
		return content
	}
	return r.policy.Sanitize(content)
}

// Markdown returns content as Markdown, converting HTML when present.
func (r *Renderer) Markdown(content string) string {
	if !LooksLikeHTML(content) {
		return strings.TrimSpace(content)
	}
	md, err := ToMarkdown(r.policy.Sanitize(content))
	if err != nil {
		r.log.Debug("html conversion failed", "error", err)
		return strings.TrimSpace(r.policy.Sanitize(content))
	}
	return md
}

// Render draws content for the terminal.
func (r *Renderer) Render(content string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out, ok := r.cache[content]; ok {
		return out
	}

	md := r.Markdown(content)
	out := r.draw(md)
	if len(r.cache) >= maxCache {
		r.cache = make(map[string]string)
	}
	r.cache[content] = out
	return out
}

func (r *Renderer) draw(md string) string {
	if r.md != nil {
		out, err := r.md.Render(md)
		if err == nil {
			return strings.Trim(out, "\n")
		}
		r.log.Debug("markdown render failed", "error", err)
	}
	text := highlightFences(md, r.opts.CodeStyle, r.opts.Highlight)
	return lipgloss.NewStyle().Width(r.opts.Width).Render(text)
}
