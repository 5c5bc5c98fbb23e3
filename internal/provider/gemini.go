// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultGeminiModel is used when no Gemini model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini talks to Gemini through its OpenAI-compatible endpoint.
type Gemini struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini provider. An empty baseURL keeps go-openai's
// default, which is only useful against a test server.
func NewGemini(apiKey, baseURL, model string, timeout time.Duration, hc *http.Client) *Gemini {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if hc != nil {
		cfg.HTTPClient = hc
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: openai.NewClientWithConfig(cfg), model: model, timeout: timeout}
}

// Name implements Provider.
func (g *Gemini) Name() string { return "gemini" }

// Model implements Provider.
func (g *Gemini) Model() string { return g.model }

// FailureMessage implements Provider.
func (g *Gemini) FailureMessage() string {
	return "Error: Failed to get response from Gemini. Please check your configuration."
}

// Stream implements Provider.
func (g *Gemini) Stream(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return "", &StreamError{Provider: g.Name(), Err: err}
	}
	defer stream.Close()

	var content strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return content.String(), nil
		}
		if err != nil {
			return content.String(), &StreamError{Provider: g.Name(), Partial: content.String(), Err: err}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			content.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
}
