// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/jeranaias/aidev/internal/chat"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a single self-contained HTML page.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter. Raw HTML inside messages is
// omitted from the rendered page.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Theme != "light" {
		o.Theme = "dark"
	}
	return &HTMLExporter{
		options: &o,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

// Export renders t as HTML.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	title := html.EscapeString(t.title())
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString("<meta name=\"generator\" content=\"aidev\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString(transcriptCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", e.options.Theme)

	fmt.Fprintf(&sb, "<header><h1>%s</h1>\n", title)
	if e.options.IncludeMetadata {
		sb.WriteString("<div class=\"metadata\">")
		fmt.Fprintf(&sb, "<span><strong>Messages:</strong> %d</span>", len(t.Messages))
		fmt.Fprintf(&sb, "<span><strong>Exported:</strong> %s</span>", formatTimestamp(t.exportedAt()))
		sb.WriteString("</div>\n")
		if len(t.Files) > 0 {
			sb.WriteString("<ul class=\"files\">")
			for _, f := range t.Files {
				fmt.Fprintf(&sb, "<li><code>%s</code></li>", html.EscapeString(f))
			}
			sb.WriteString("</ul>\n")
		}
	}
	sb.WriteString("</header>\n<main>\n")

	for _, msg := range t.Messages {
		body, err := e.renderMessage(msg)
		if err != nil {
			return nil, err
		}
		sb.WriteString(body)
	}

	sb.WriteString("</main>\n")
	fmt.Fprintf(&sb, "<footer>Exported from <strong>aidev</strong> on %s</footer>\n",
		t.exportedAt().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

func (e *HTMLExporter) renderMessage(msg chat.Message) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<section class=\"message %s\">\n<div class=\"role\">%s",
		html.EscapeString(string(msg.Role)), html.EscapeString(msg.Role.DisplayName()))
	if e.options.IncludeTimestamps {
		fmt.Fprintf(&sb, " <time>%s</time>", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("</div>\n<div class=\"content\">\n")

	var buf bytes.Buffer
	if err := e.md.Convert([]byte(msg.Content), &buf); err != nil {
		return "", fmt.Errorf("render message %s: %w", msg.ID, err)
	}
	sb.Write(buf.Bytes())
	sb.WriteString("</div>\n")

	if e.options.IncludeToolCalls && msg.HasToolCalls() {
		sb.WriteString("<ul class=\"tools\">")
		for i, call := range msg.ToolCalls {
			fmt.Fprintf(&sb, "<li><code>%s</code>", html.EscapeString(toolSummary(call)))
			if i < len(msg.ToolResults) {
				fmt.Fprintf(&sb, " %s", html.EscapeString(msg.ToolResults[i]))
			}
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul>\n")
	}
	sb.WriteString("</section>\n")
	return sb.String(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string { return "text/html; charset=utf-8" }

const transcriptCSS = `<style>
:root { --radius: 8px; }
.dark-theme { --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89; --user: #7aa2f7; --assistant: #9ece6a; }
.light-theme { --bg: #f5f5f5; --panel: #ffffff; --text: #1f2335; --muted: #6b7089; --user: #2e59c9; --assistant: #3d7a1c; }
body { margin: 0; background: var(--bg); color: var(--text); font: 15px/1.6 -apple-system, "Segoe UI", sans-serif; }
.container { max-width: 860px; margin: 0 auto; padding: 24px; }
header h1 { margin: 0 0 8px; }
.metadata { color: var(--muted); display: flex; gap: 16px; font-size: 13px; }
.files { color: var(--muted); font-size: 13px; columns: 2; }
.message { background: var(--panel); border-radius: var(--radius); margin: 16px 0; padding: 12px 16px; border-left: 4px solid var(--muted); }
.message.user { border-left-color: var(--user); }
.message.assistant { border-left-color: var(--assistant); }
.role { font-weight: 600; margin-bottom: 4px; }
.role time { color: var(--muted); font-weight: 400; font-size: 12px; margin-left: 8px; }
pre { background: var(--bg); padding: 12px; border-radius: var(--radius); overflow-x: auto; }
code { font-family: "JetBrains Mono", Menlo, monospace; font-size: 13px; }
.tools { color: var(--muted); font-size: 13px; margin: 8px 0 0; padding-left: 18px; }
footer { color: var(--muted); font-size: 12px; text-align: center; margin-top: 32px; }
</style>
`
