// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat keeps per-project chat histories and runs one exchange at a
// time per project through the configured provider.
package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/aidev/internal/project"
	"github.com/jeranaias/aidev/internal/tools"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Fixed texts of the seeded messages.
const (
	WelcomeText = "Hello! I'm your AI development assistant. I can create files and build projects. Tell me what you want to create!"
	ClearedText = "Chat cleared. How can I help you today?"
	CreatedText = "I've created your files!"
)

// seedID is the id of the welcome and cleared messages.
const seedID = "1"

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one entry of a project's chat.
type Message struct {
	ID          string           `json:"id"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Timestamp   time.Time        `json:"timestamp"`
	ToolCalls   []tools.ToolCall `json:"toolCalls,omitempty"`
	ToolResults []string         `json:"toolResults,omitempty"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(role Role, content string, now time.Time) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content, Timestamp: now}
}

// HasToolCalls reports whether the assistant requested any tools.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

type messageJSON struct {
	ID          string           `json:"id"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Timestamp   string           `json:"timestamp"`
	ToolCalls   []tools.ToolCall `json:"toolCalls,omitempty"`
	ToolResults []string         `json:"toolResults,omitempty"`
}

// MarshalJSON writes the timestamp in millisecond ISO-8601.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:          m.ID,
		Role:        m.Role,
		Content:     m.Content,
		Timestamp:   m.Timestamp.UTC().Format(project.TimeLayout),
		ToolCalls:   m.ToolCalls,
		ToolResults: m.ToolResults,
	})
}

// UnmarshalJSON rehydrates the timestamp. An empty timestamp stays zero.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var ts time.Time
	if raw.Timestamp != "" {
		t, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
		if err != nil {
			return fmt.Errorf("message %s: timestamp: %w", raw.ID, err)
		}
		ts = t.UTC()
	}
	*m = Message{
		ID:          raw.ID,
		Role:        raw.Role,
		Content:     raw.Content,
		Timestamp:   ts,
		ToolCalls:   raw.ToolCalls,
		ToolResults: raw.ToolResults,
	}
	return nil
}

func seed(content string, now time.Time) []Message {
	return []Message{{ID: seedID, Role: RoleAssistant, Content: content, Timestamp: now}}
}
