// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/storage"
)

// KeyPrefix prefixes the key of every project's chat.
const KeyPrefix = "chat-messages-"

// Key returns the storage key of a project's chat.
func Key(projectID string) string { return KeyPrefix + projectID }

// History reads and writes chats in the key-value store.
type History struct {
	kv    storage.KV
	clock func() time.Time
}

// NewHistory creates a History over kv.
func NewHistory(kv storage.KV) *History {
	return &History{kv: kv, clock: time.Now}
}

// Load returns a project's messages. A project with no saved chat, an empty
// id or an unreadable record gets the welcome message.
func (h *History) Load(ctx context.Context, projectID string) ([]Message, error) {
	if projectID == "" {
		return seed(WelcomeText, h.clock()), nil
	}

	raw, ok, err := h.kv.Get(ctx, Key(projectID))
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if !ok {
		return seed(WelcomeText, h.clock()), nil
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		logging.Warn("discarding unreadable chat", logging.String("project", projectID), logging.Err(err))
		return seed(WelcomeText, h.clock()), nil
	}
	return msgs, nil
}

// Save stores a project's messages. Nothing is written for an empty id or
// an empty list.
func (h *History) Save(ctx context.Context, projectID string, msgs []Message) error {
	if projectID == "" || len(msgs) == 0 {
		return nil
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	if err := h.kv.Set(ctx, Key(projectID), string(b)); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

// Clear replaces a project's chat with the cleared message and returns it.
func (h *History) Clear(ctx context.Context, projectID string) ([]Message, error) {
	msgs := seed(ClearedText, h.clock())
	if err := h.Save(ctx, projectID, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Delete removes a project's chat entirely.
func (h *History) Delete(ctx context.Context, projectID string) error {
	if projectID == "" {
		return nil
	}
	if err := h.kv.Delete(ctx, Key(projectID)); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}
