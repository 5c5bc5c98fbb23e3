// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// PAYLOAD TYPES
// =============================================================================

// Payload is the structured reply a model embeds in its text.
type Payload struct {
	ToolCalls []ToolCall `json:"tool_calls"`
	Content   string     `json:"content"`
}

// ToolCall is one function call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments.
type FunctionCall struct {
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// Arguments holds tool arguments whichever way the model encoded them: as
// a JSON object or as a string containing JSON. Both decode the same way.
// A string whose contents are not JSON is kept and fails at Decode.
type Arguments struct {
	raw []byte
}

// ArgumentsOf builds Arguments from a value.
func ArgumentsOf(v any) Arguments {
	b, err := json.Marshal(v)
	if err != nil {
		return Arguments{}
	}
	return Arguments{raw: b}
}

// UnmarshalJSON accepts an object, a JSON-encoded string, or null.
func (a *Arguments) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		a.raw = nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.raw = []byte(s)
	default:
		a.raw = append([]byte(nil), b...)
	}
	return nil
}

// MarshalJSON always emits the object form when the arguments are valid
// JSON, and the original string otherwise.
func (a Arguments) MarshalJSON() ([]byte, error) {
	if len(a.raw) == 0 {
		return []byte("{}"), nil
	}
	if json.Valid(a.raw) {
		return a.raw, nil
	}
	return json.Marshal(string(a.raw))
}

// Decode unmarshals the arguments into v.
func (a Arguments) Decode(v any) error {
	if len(bytes.TrimSpace(a.raw)) == 0 {
		return errors.New("missing arguments")
	}
	return json.Unmarshal(a.raw, v)
}

// String returns the arguments as text.
func (a Arguments) String() string { return string(a.raw) }

// FileArgs are the arguments of create_file and update_file. Content is a
// pointer so an explicitly empty file can be told apart from a missing one.
type FileArgs struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

// PathArgs are the arguments of delete_file and create_directory.
type PathArgs struct {
	Path string `json:"path"`
}

// ProjectArgs are the arguments of create_project.
type ProjectArgs struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// =============================================================================
// PARSE ERRORS
// =============================================================================

// ParseError reports why text could not be read as a Payload. Callers treat
// the text as plain content.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool payload: %s: %v", e.Reason, e.Err)
	}
	return "tool payload: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// =============================================================================
// PARSING
// =============================================================================

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// MayContainToolCalls reports whether text is worth parsing at all.
func MayContainToolCalls(text string) bool {
	return strings.Contains(text, `"tool_calls"`) || strings.Contains(text, CreateFile)
}

// ExtractJSON finds the candidate JSON in text: the body of the first
// ```json fence, else everything from the first '{' to the last '}'. The
// whole text is returned when neither is found.
func ExtractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// ParsePayload reads a tool-call payload out of free-form model output.
// Every failure is a *ParseError.
func ParsePayload(text string) (*Payload, error) {
	candidate := ExtractJSON(text)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil, &ParseError{Reason: "malformed JSON", Err: err}
	}
	rawCalls, ok := probe["tool_calls"]
	if !ok || len(rawCalls) == 0 || rawCalls[0] != '[' {
		return nil, &ParseError{Reason: "tool_calls is not an array"}
	}

	var p Payload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return nil, &ParseError{Reason: "malformed tool call", Err: err}
	}
	return &p, nil
}
