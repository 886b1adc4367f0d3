// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraphs", "<p>one</p><p>two</p>", "one\n\ntwo"},
		{"emphasis", "<p><strong>bold</strong> and <em>it</em></p>", "**bold** and *it*"},
		{"heading", "<h2>Title</h2><p>body</p>", "## Title\n\nbody"},
		{"inline code", "<p>run <code>go test</code></p>", "run `go test`"},
		{"unordered list", "<ul><li>a</li><li>b</li></ul>", "- a\n- b"},
		{"ordered list", "<ol><li>a</li><li>b</li></ol>", "1. a\n2. b"},
		{"link", `<a href="https://example.com">site</a>`, "[site](https://example.com)"},
		{"bare link", `<a href="https://example.com">https://example.com</a>`, "<https://example.com>"},
		{"code block", `<pre><code class="language-go">x := 1
</code></pre>`, "```go\nx := 1\n```"},
		{"escapes literal stars", "<p>2 * 3</p>", `2 \* 3`},
		{"line break", "<p>a<br>b</p>", "a  \nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMarkdown(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize(t *testing.T) {
	r := New(Options{Markdown: false})

	out := r.Sanitize(`<p onclick="x()">hi</p><script>alert(1)</script>`)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "onclick")
	assert.Contains(t, out, "hi")

	kept := r.Sanitize(`<pre><code class="language-python">print(1)</code></pre>`)
	assert.Contains(t, kept, `class="language-python"`)

	assert.Equal(t, "plain 1 < 2", r.Sanitize("plain 1 < 2"))
}

func TestMarkdown_PlainTextUnchanged(t *testing.T) {
	r := New(Options{Markdown: false})
	assert.Equal(t, "just **markdown**", r.Markdown("  just **markdown**\n"))
}

func TestRender_PlainHighlightsCode(t *testing.T) {
	r := New(Options{Width: 60, Markdown: false, Highlight: true})
	out := r.Render(`<p>Example:</p><pre><code class="language-go">func main() {}</code></pre>`)

	assert.Contains(t, out, "Example:")
	assert.Contains(t, out, "func")
	assert.Contains(t, out, "\x1b[", "code should carry color escapes")
	assert.NotContains(t, out, "```")
}

func TestRender_PlainWithoutHighlight(t *testing.T) {
	r := New(Options{Width: 60, Markdown: false, Highlight: false})
	out := r.Render(`<pre><code>x = 1</code></pre>`)
	assert.Contains(t, out, "x = 1")
	assert.NotContains(t, out, "```")
	assert.NotContains(t, out, "\x1b[")
}

func TestRender_Markdown(t *testing.T) {
	r := New(Options{Width: 40, Style: StyleNoTTY, Markdown: true})
	out := r.Render("<p>Hello <strong>there</strong></p><ul><li>item</li></ul>")

	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "there")
	assert.Contains(t, out, "item")
	assert.NotContains(t, out, "<strong>")
}

func TestRender_CacheAndWidth(t *testing.T) {
	r := New(Options{Width: 40, Style: StyleNoTTY, Markdown: true})
	long := strings.Repeat("word ", 30)

	first := r.Render(long)
	assert.Equal(t, first, r.Render(long))

	r.SetWidth(20)
	assert.Equal(t, 20, r.Width())
	narrow := r.Render(long)
	assert.Greater(t, strings.Count(narrow, "\n"), strings.Count(first, "\n"))

	r.SetWidth(0)
	assert.Equal(t, 20, r.Width())
}

func TestHighlight_UnknownLanguageFallsBack(t *testing.T) {
	out := Highlight("some words", "no-such-language", "no-such-style")
	assert.Contains(t, out, "some")
}
