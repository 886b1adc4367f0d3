// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/threadchat/internal/util"
)

// TitleMaxRunes is how many characters of the first user message become the
// thread title before the ellipsis.
const TitleMaxRunes = 30

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips all markup from content, decodes entities, NFC-normalizes
// the result and collapses whitespace onto a single line.
func PlainText(content string) string {
	stripped := strictPolicy.Sanitize(content)
	return util.SingleLine(norm.NFC.String(html.UnescapeString(stripped)))
}

// DeriveTitle turns the first user message of a thread into its title: the
// plain text truncated to TitleMaxRunes characters with "..." appended when
// longer. Empty text falls back to DefaultThreadTitle.
func DeriveTitle(content string) string {
	text := PlainText(content)
	if text == "" {
		return DefaultThreadTitle
	}
	return util.Ellipsize(text, TitleMaxRunes)
}
