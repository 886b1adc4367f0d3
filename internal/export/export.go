// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/util"
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is one thread and its messages in display order.
type Transcript struct {
	Thread     *model.Thread   `json:"thread"`
	Messages   []model.Message `json:"messages"`
	ExportedAt time.Time       `json:"exported_at"`
}

// ErrEmpty is returned for a transcript without messages.
var ErrEmpty = errors.New("conversation has no messages")

func (t *Transcript) validate() error {
	if t == nil || t.Thread == nil {
		return errors.New("transcript has no thread")
	}
	if len(t.Messages) == 0 {
		return ErrEmpty
	}
	return nil
}

func (t *Transcript) exportedAt() time.Time {
	if t.ExportedAt.IsZero() {
		return time.Now()
	}
	return t.ExportedAt
}

// =============================================================================
// EXPORTERS
// =============================================================================

// Exporter renders a transcript in one format.
type Exporter interface {
	Export(t *Transcript) ([]byte, error)
	FileExtension() string
	MimeType() string
}

// Format names an output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// ParseFormat accepts a format name or a common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unsupported export format %q (use markdown, json or html)", s)
}

// Options configures the Markdown and HTML exporters.
type Options struct {
	// IncludeMetadata adds front matter or a header with thread details.
	IncludeMetadata bool
	// IncludeTimestamps labels messages that carry a timestamp.
	IncludeTimestamps bool
	// Theme of the HTML page, "dark" or "light".
	Theme string
}

// DefaultOptions includes metadata and timestamps with the dark theme.
func DefaultOptions() Options {
	return Options{IncludeMetadata: true, IncludeTimestamps: true, Theme: "dark"}
}

// New returns the exporter for format.
func New(format Format, opts Options) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return &MarkdownExporter{options: opts}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	case FormatHTML:
		return NewHTMLExporter(opts), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// =============================================================================
// FILES
// =============================================================================

// FileName builds "<title>_<yyyymmdd_hhmmss><ext>" for t.
func FileName(t *Transcript, ext string) string {
	return fmt.Sprintf("%s_%s%s",
		sanitizeFilename(t.Thread.DisplayTitle()),
		t.exportedAt().Format("20060102_150405"),
		ext)
}

// WriteFile exports t into dir under FileName and returns the path. The
// file is readable by the owner only.
func WriteFile(t *Transcript, exp Exporter, dir string) (string, error) {
	content, err := exp.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, FileName(t, exp.FileExtension()))
	if err := util.AtomicWriteFile(path, content, 0600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// sanitizeFilename replaces characters that are invalid in file names on
// common platforms.
func sanitizeFilename(s string) string {
	const maxLen = 50
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

// roleLabel is the heading used for a message.
func roleLabel(r model.Role) string {
	if r == "" {
		return "Unknown"
	}
	return r.DisplayName()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
