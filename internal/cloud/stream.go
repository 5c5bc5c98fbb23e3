// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// doneMarker terminates an OpenAI-style event stream.
const doneMarker = "[DONE]"

// StreamChunk represents a single chunk from the streaming response.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GetContent returns the content from the first choice's delta.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// IsDone returns true if the stream has finished.
func (c *StreamChunk) IsDone() bool {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason != ""
	}
	return false
}

// Params carries the sampling settings of a request.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type, data, and any error.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return "", nil, err
		}
		atEOF := err == io.EOF

		line = bytes.TrimRight(line, "\r\n")

		switch {
		case len(line) == 0:
			// Empty line ends the event.
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Other fields (id:, retry:, comments) are ignored.

		if (len(line) == 0 || atEOF) && len(dataLines) > 0 {
			return eventType, bytes.Join(dataLines, []byte("\n")), nil
		}
		if atEOF {
			return "", nil, io.EOF
		}
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming chat completion request. onDelta receives
// every content fragment in order. The returned string is the accumulated
// content, which on error is whatever arrived before the failure.
func (c *Client) ChatStream(ctx context.Context, messages []ChatMessage, params Params, onDelta func(string)) (string, error) {
	req, err := c.newRequest(ctx, messages, params.Temperature, params.MaxTokens)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", handleErrorResponse(resp.StatusCode, resp.Body)
	}

	return processStream(ctx, resp.Body, onDelta)
}

// processStream reads data events until [DONE] or EOF. Malformed chunks are
// skipped.
func processStream(ctx context.Context, body io.Reader, onDelta func(string)) (string, error) {
	reader := NewSSEReader(body)
	var content strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			return content.String(), err
		}

		_, data, err := reader.ReadEvent()
		if err == io.EOF {
			return content.String(), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return content.String(), ctxErr
			}
			return content.String(), fmt.Errorf("read stream: %w", err)
		}

		for _, line := range bytes.Split(data, []byte("\n")) {
			if string(bytes.TrimSpace(line)) == doneMarker {
				return content.String(), nil
			}

			var chunk StreamChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if delta := chunk.GetContent(); delta != "" {
				content.WriteString(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			}
		}
	}
}
