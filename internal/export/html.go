// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/render"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone page with embedded CSS.
type HTMLExporter struct {
	options Options
	md      goldmark.Markdown
	policy  *bluemonday.Policy
}

// NewHTMLExporter creates an HTML exporter. Raw HTML inside Markdown is
// dropped by the converter; HTML message bodies go through the sanitizer.
func NewHTMLExporter(opts Options) *HTMLExporter {
	if opts.Theme != "light" {
		opts.Theme = "dark"
	}
	return &HTMLExporter{
		options: opts,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:  render.NewPolicy(),
	}
}

type htmlMessage struct {
	Role  string
	Label string
	Time  string
	Body  template.HTML
}

type htmlPage struct {
	Title    string
	ThreadID string
	Created  string
	Exported string
	Count    int
	Theme    string
	Metadata bool
	Messages []htmlMessage
}

// Export converts t to HTML.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	page := htmlPage{
		Title:    t.Thread.DisplayTitle(),
		ThreadID: t.Thread.ID,
		Exported: t.exportedAt().Format(time.RFC3339),
		Count:    len(t.Messages),
		Theme:    e.options.Theme,
		Metadata: e.options.IncludeMetadata,
	}
	if t.Thread.CreatedAt != nil {
		page.Created = formatTimestamp(t.Thread.CreatedAt.Local())
	}
	for _, msg := range t.Messages {
		body, err := e.body(msg.Content)
		if err != nil {
			return nil, err
		}
		m := htmlMessage{Role: string(msg.Role), Label: roleLabel(msg.Role), Body: body}
		if m.Role != string(model.RoleUser) && m.Role != string(model.RoleAssistant) {
			m.Role = "other"
		}
		if e.options.IncludeTimestamps && msg.Timestamp != 0 {
			m.Time = formatTimestamp(msg.Time().Local())
		}
		page.Messages = append(page.Messages, m)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// body returns sanitized HTML for one message.
func (e *HTMLExporter) body(content string) (template.HTML, error) {
	src := strings.TrimSpace(content)
	if !render.LooksLikeHTML(src) {
		var buf bytes.Buffer
		if err := e.md.Convert([]byte(src), &buf); err != nil {
			return "", err
		}
		src = buf.String()
	}
	return template.HTML(e.policy.Sanitize(src)), nil
}

func (e *HTMLExporter) FileExtension() string { return ".html" }

func (e *HTMLExporter) MimeType() string { return "text/html" }

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="generator" content="threadchat">
<title>{{.Title}}</title>
<style>
:root { --font-sans: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; --font-mono: "SF Mono", Menlo, Consolas, monospace; }
.dark-theme { --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89; --border: #414868; --user: #7aa2f7; --assistant: #9ece6a; --code: #16161e; }
.light-theme { --bg: #ffffff; --panel: #f7f8fa; --text: #24292e; --muted: #6a737d; --border: #e1e4e8; --user: #0366d6; --assistant: #22863a; --code: #f6f8fa; }
body { margin: 0; padding: 24px; font-family: var(--font-sans); line-height: 1.6; background: var(--bg); color: var(--text); }
.container { max-width: 880px; margin: 0 auto; }
header { border-bottom: 1px solid var(--border); margin-bottom: 16px; }
header h1 { margin: 0 0 8px; font-size: 1.6em; }
.meta { color: var(--muted); font-size: 0.85em; margin: 0 0 12px; }
.message { background: var(--panel); border: 1px solid var(--border); border-radius: 8px; padding: 12px 16px; margin: 12px 0; }
.message .role { font-weight: 600; margin-bottom: 4px; }
.message.user .role { color: var(--user); }
.message.assistant .role { color: var(--assistant); }
.message time { color: var(--muted); font-size: 0.8em; margin-left: 8px; font-weight: normal; }
pre, code { font-family: var(--font-mono); background: var(--code); }
pre { padding: 10px; border-radius: 6px; overflow-x: auto; }
footer { color: var(--muted); font-size: 0.8em; text-align: center; margin-top: 24px; }
</style>
</head>
<body class="{{.Theme}}-theme">
<div class="container">
<header>
<h1>{{.Title}}</h1>
{{- if .Metadata}}
<p class="meta">{{.Count}} messages{{if .Created}} &middot; created {{.Created}}{{end}} &middot; thread {{.ThreadID}}</p>
{{- end}}
</header>
<main>
{{- range .Messages}}
<section class="message {{.Role}}">
<div class="role">{{.Label}}{{if .Time}}<time>{{.Time}}</time>{{end}}</div>
<div class="content">{{.Body}}</div>
</section>
{{- end}}
</main>
<footer>Exported from threadchat on {{.Exported}}</footer>
</div>
</body>
</html>
`))
