// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders a project's chat as a standalone transcript.
//
// # Supported Formats
//
//   - markdown: readable text with one section per message
//   - html: a styled page with message content rendered from markdown
//   - json: the messages with their tool calls, for re-processing
//
// # Usage
//
//	exp, err := export.ForFormat("markdown", nil)
//	data, err := exp.Export(&export.Transcript{Project: "Bakery", Messages: msgs})
package export
