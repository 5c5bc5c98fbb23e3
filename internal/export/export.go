// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/aidev/internal/chat"
	"github.com/jeranaias/aidev/internal/tools"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a transcript in one format.
type Exporter interface {
	Export(t *Transcript) ([]byte, error)

	// FileExtension includes the dot, e.g. ".md".
	FileExtension() string

	MimeType() string
}

// Transcript is one project's chat as exported.
type Transcript struct {
	ProjectID  string         `json:"projectId"`
	Project    string         `json:"project"`
	Files      []string       `json:"files,omitempty"`
	Messages   []chat.Message `json:"messages"`
	ExportedAt time.Time      `json:"exportedAt"`
}

var (
	// ErrEmptyTranscript is returned for a nil transcript or one without
	// messages.
	ErrEmptyTranscript = errors.New("transcript has no messages")

	// ErrUnknownFormat is returned by ForFormat.
	ErrUnknownFormat = errors.New("unknown export format")
)

func (t *Transcript) validate() error {
	if t == nil || len(t.Messages) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

func (t *Transcript) title() string {
	if t.Project == "" {
		return "Chat transcript"
	}
	return t.Project + " chat"
}

func (t *Transcript) exportedAt() time.Time {
	if t.ExportedAt.IsZero() {
		return time.Now()
	}
	return t.ExportedAt
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds the project header and file list.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool

	// IncludeToolCalls lists the file operations each reply requested.
	IncludeToolCalls bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeToolCalls:  true,
		Theme:             "dark",
	}
}

// Formats lists the names ForFormat accepts.
var Formats = []string{"markdown", "html", "json"}

// ForFormat returns the exporter for a format name. "md" is accepted for
// markdown.
func ForFormat(name string, opts *Options) (Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "markdown", "md", "":
		return NewMarkdownExporter(opts), nil
	case "html":
		return NewHTMLExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, name, strings.Join(Formats, ", "))
	}
}

// FileName suggests a file name for t, e.g. "bakery_chat_20250102_150405.md".
func FileName(t *Transcript, exp Exporter) string {
	return fmt.Sprintf("%s_chat_%s%s",
		sanitizeFilename(t.Project),
		t.exportedAt().Format("20060102_150405"),
		exp.FileExtension())
}

// sanitizeFilename lowercases s and replaces characters that are invalid
// in file names.
func sanitizeFilename(s string) string {
	runes := []rune(strings.ToLower(strings.TrimSpace(s)))
	if len(runes) > 50 {
		runes = runes[:50]
	}
	var b strings.Builder
	for _, r := range runes {
		switch {
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		case r < 32 || r == 127 || strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// toolSummary describes one requested operation, e.g.
// "create_file index.html".
func toolSummary(call tools.ToolCall) string {
	var args tools.PathArgs
	if err := call.Function.Arguments.Decode(&args); err == nil && args.Path != "" {
		return call.Function.Name + " " + args.Path
	}
	return call.Function.Name
}
