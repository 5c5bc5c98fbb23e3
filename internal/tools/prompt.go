// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"strings"
)

const instructions = `You are a specialized AI assistant for web development. Your primary function is to create and modify files using the provided tools.

When a user asks you to create a website, application, or files, you MUST immediately respond with a JSON object containing the necessary 'create_file' tool calls. Do NOT ask for clarifying details or engage in conversation. Be creative and generate the complete file content based on the user's request.

Your response MUST be ONLY the JSON object in the following format:
{
  "tool_calls": [
    {
      "id": "call_1",
      "type": "function",
      "function": {
        "name": "create_file",
        "arguments": {
          "path": "index.html",
          "content": "Your complete and well-structured HTML content here. Do not use complex escaping."
        }
      }
    },
    {
      "id": "call_2",
      "type": "function",
      "function": {
        "name": "create_file",
        "arguments": {
          "path": "styles.css",
          "content": "Your complete CSS styles here."
        }
      }
    }
  ],
  "content": "I have created the files for your project."
}

IMPORTANT:
- Never ask for names or other details. Invent creative and appropriate content yourself.
- Always use the 'create_file' tool when asked to build or create something.
- The 'arguments' field in the JSON must be a nested object, not a string.
- Respond only with the JSON object. Do not wrap it in markdown or add any other text.`

// SystemPrompt assembles the full system prompt: the user's preamble, the
// response-format instructions and the tool listing.
func SystemPrompt(preamble string, registry *Registry) string {
	var b strings.Builder
	if p := strings.TrimSpace(preamble); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	b.WriteString(instructions)
	if registry != nil {
		b.WriteString("\n\n")
		b.WriteString(FormatTools(registry))
	}
	return b.String()
}

// FormatTools lists every tool with its parameter schema.
func FormatTools(registry *Registry) string {
	entries := make([]string, 0, len(registry.All()))
	for _, t := range registry.All() {
		entries = append(entries, "- "+t.Name+": "+t.Description+"\n    Parameters: "+t.Schema.PropertiesJSON())
	}

	var b strings.Builder
	b.WriteString("You have access to the following tools to create and manage files:\n\n")
	b.WriteString(strings.Join(entries, "\n\n"))
	b.WriteString("\n\nAlways create complete, working files. For websites, start with an index.html file ")
	b.WriteString("and include all necessary CSS and JavaScript inline or in separate files.")
	return b.String()
}
