// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// =============================================================================
// SANITIZING
// =============================================================================

var languageClass = regexp.MustCompile(`^language-[\w+#.-]+$`)

// NewPolicy returns the user-generated-content policy plus the language
// class on code elements, which picks the highlighter.
func NewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(languageClass).OnElements("code")
	return p
}

var tagPattern = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][a-zA-Z0-9]*[^>]*>`)

// LooksLikeHTML reports whether s contains at least one tag.
func LooksLikeHTML(s string) bool {
	return tagPattern.MatchString(s)
}

// =============================================================================
// HTML TO MARKDOWN
// =============================================================================

// ToMarkdown converts sanitized HTML into Markdown. Unknown elements keep
// their text. The result is what the markdown renderer receives.
func ToMarkdown(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}
	w := &mdWriter{}
	w.children(doc)
	return w.result(), nil
}

type listState struct {
	ordered bool
	n       int
}

type mdWriter struct {
	b      strings.Builder
	lists  []listState
	quote  int
	inPre  bool
	pendNL int
}

func (w *mdWriter) result() string {
	return strings.TrimSpace(collapseBlank(w.b.String()))
}

// block ends the current line and asks for n newlines before the next text.
func (w *mdWriter) block(n int) {
	if n > w.pendNL {
		w.pendNL = n
	}
}

func (w *mdWriter) write(s string) {
	if s == "" {
		return
	}
	if w.pendNL > 0 && w.b.Len() > 0 {
		for i := 0; i < w.pendNL; i++ {
			w.b.WriteString("\n")
			if w.quote > 0 && i == w.pendNL-1 {
				w.b.WriteString(strings.Repeat("> ", w.quote))
			}
		}
	} else if w.b.Len() == 0 && w.quote > 0 {
		w.b.WriteString(strings.Repeat("> ", w.quote))
	}
	w.pendNL = 0
	w.b.WriteString(s)
}

func (w *mdWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

var spaceRun = regexp.MustCompile(`[ \t\r\n]+`)

func (w *mdWriter) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if w.inPre {
			w.write(n.Data)
			return
		}
		text := spaceRun.ReplaceAllString(n.Data, " ")
		if strings.TrimSpace(text) == "" && w.pendNL > 0 {
			return
		}
		if w.pendNL > 0 || w.b.Len() == 0 {
			text = strings.TrimLeft(text, " ")
		}
		w.write(escapeInline(text))
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head:
		return
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Table:
		w.block(2)
		w.children(n)
		w.block(2)
	case atom.Br:
		w.write("  ")
		w.block(1)
	case atom.Hr:
		w.block(2)
		w.write("---")
		w.block(2)
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		w.block(2)
		w.write(strings.Repeat("#", level) + " ")
		w.children(n)
		w.block(2)
	case atom.Strong, atom.B:
		w.wrap(n, "**")
	case atom.Em, atom.I:
		w.wrap(n, "*")
	case atom.Del, atom.S:
		w.wrap(n, "~~")
	case atom.Code:
		w.write("`" + textContent(n) + "`")
	case atom.Pre:
		w.pre(n)
	case atom.A:
		href := attr(n, "href")
		text := strings.TrimSpace(textContent(n))
		switch {
		case href == "":
			w.children(n)
		case text == "" || text == href:
			w.write("<" + href + ">")
		default:
			w.write("[" + escapeInline(text) + "](" + href + ")")
		}
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			w.write("[" + escapeInline(alt) + "]")
		}
	case atom.Ul, atom.Ol:
		w.block(boolInt(len(w.lists) == 0, 2, 1))
		w.lists = append(w.lists, listState{ordered: n.DataAtom == atom.Ol})
		w.children(n)
		w.lists = w.lists[:len(w.lists)-1]
		w.block(boolInt(len(w.lists) == 0, 2, 1))
	case atom.Li:
		w.li(n)
	case atom.Blockquote:
		w.block(2)
		w.quote++
		w.children(n)
		w.quote--
		w.block(2)
	case atom.Tr:
		w.block(1)
		first := true
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if !first {
				w.write(" | ")
			}
			first = false
			w.write(strings.TrimSpace(spaceRun.ReplaceAllString(textContent(c), " ")))
		}
		w.block(1)
	default:
		w.children(n)
	}
}

func (w *mdWriter) wrap(n *html.Node, mark string) {
	inner := &mdWriter{}
	inner.children(n)
	text := strings.TrimSpace(inner.b.String())
	if text == "" {
		return
	}
	w.write(mark + text + mark)
}

func (w *mdWriter) li(n *html.Node) {
	depth := len(w.lists)
	marker := "- "
	if depth > 0 {
		st := &w.lists[depth-1]
		st.n++
		if st.ordered {
			marker = fmt.Sprintf("%d. ", st.n)
		}
	}
	w.block(1)
	w.write(strings.Repeat("  ", max(depth-1, 0)) + marker)
	w.children(n)
	w.block(1)
}

func (w *mdWriter) pre(n *html.Node) {
	lang := ""
	code := n
	if c := firstElement(n); c != nil && c.DataAtom == atom.Code {
		code = c
		for _, cls := range strings.Fields(attr(c, "class")) {
			if strings.HasPrefix(cls, "language-") {
				lang = strings.TrimPrefix(cls, "language-")
			}
		}
	}
	body := strings.TrimRight(textContent(code), "\n")
	w.block(2)
	w.write("```" + lang + "\n" + body + "\n```")
	w.block(2)
}

func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Br {
			b.WriteString("\n")
			continue
		}
		b.WriteString(textContent(c))
	}
	return b.String()
}

var mdSpecial = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`")

// escapeInline keeps literal text from being read as emphasis or code.
func escapeInline(s string) string {
	return mdSpecial.Replace(s)
}

var blankRun = regexp.MustCompile(`\n{3,}`)

func collapseBlank(s string) string {
	return blankRun.ReplaceAllString(s, "\n\n")
}

func boolInt(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}
