// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/jeranaias/aidev/internal/chat"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders t as Markdown. Message content is already markdown and is
// written as is.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.title()))

	if e.options.IncludeMetadata {
		if t.ProjectID != "" {
			fmt.Fprintf(&sb, "- **Project ID**: %s\n", t.ProjectID)
		}
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "- **Exported**: %s\n", formatTimestamp(t.exportedAt()))
		if len(t.Files) > 0 {
			sb.WriteString("- **Files**:\n")
			for _, f := range t.Files {
				fmt.Fprintf(&sb, "  - `%s`\n", f)
			}
		}
		sb.WriteString("\n---\n\n")
	}

	for i, msg := range t.Messages {
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", msg.Role.DisplayName(), formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", msg.Role.DisplayName())
		}
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if e.options.IncludeToolCalls {
			sb.WriteString(e.formatToolCalls(msg))
		}
		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n*Exported from aidev on %s*\n", t.exportedAt().Format("January 2, 2006 at 3:04 PM"))
	return []byte(sb.String()), nil
}

func (e *MarkdownExporter) formatToolCalls(msg chat.Message) string {
	if !msg.HasToolCalls() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("**File operations:**\n\n")
	for i, call := range msg.ToolCalls {
		fmt.Fprintf(&sb, "- `%s`", toolSummary(call))
		if i < len(msg.ToolResults) {
			fmt.Fprintf(&sb, ": %s", msg.ToolResults[i])
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string { return "text/markdown; charset=utf-8" }

// escapeMarkdown escapes characters that would turn a title into markup.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

