// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation transcript to a file.
//
// # Supported Formats
//
//   - Markdown: YAML front matter plus one section per message
//   - JSON: the thread and its messages as returned by the backend
//   - HTML: a standalone page with embedded CSS; message bodies are
//     converted from Markdown and sanitized
//
// # Usage
//
//	t := &export.Transcript{Thread: thread, Messages: msgs}
//	exp, err := export.New(export.FormatMarkdown, export.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	path, err := export.WriteFile(t, exp, ".")
package export
