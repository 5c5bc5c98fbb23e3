// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/jeranaias/aidev/internal/cloud"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/ollama"
)

// Local is the "openai" provider: any OpenAI-compatible endpoint.
type Local struct {
	client  *cloud.Client
	timeout time.Duration
}

// NewLocal creates the local endpoint provider. apiKey may be empty.
func NewLocal(endpoint, apiKey, model string, timeout time.Duration, hc *http.Client) *Local {
	c := cloud.NewClient(endpoint, cloud.WithAPIKey(apiKey), cloud.WithModel(model), cloud.WithHTTPClient(hc))
	return &Local{client: c, timeout: timeout}
}

// Name implements Provider.
func (l *Local) Name() string { return "openai" }

// Model implements Provider.
func (l *Local) Model() string { return l.client.Model() }

// FailureMessage implements Provider.
func (l *Local) FailureMessage() string {
	return "Error communicating with local AI. Please check your configuration."
}

// Stream implements Provider.
func (l *Local) Stream(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	msgs := make([]cloud.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = cloud.ChatMessage{Role: m.Role, Content: m.Content}
	}

	text, err := l.client.ChatStream(ctx, msgs, cloud.Params{Temperature: req.Temperature, MaxTokens: req.MaxTokens}, onDelta)
	if err != nil {
		return text, &StreamError{Provider: l.Name(), Partial: text, Err: err}
	}
	return text, nil
}

// Ollama is the local Ollama provider.
type Ollama struct {
	client  *ollama.Client
	model   string
	timeout time.Duration
}

// NewOllama creates the Ollama provider.
func NewOllama(baseURL, model string, timeout time.Duration, hc *http.Client) *Ollama {
	c := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: baseURL, DefaultModel: model})
	if hc != nil {
		c = c.WithHTTPClient(hc)
	}
	return &Ollama{client: c, model: c.Config().DefaultModel, timeout: timeout}
}

// Name implements Provider.
func (o *Ollama) Name() string { return "ollama" }

// Model implements Provider.
func (o *Ollama) Model() string { return o.model }

// FailureMessage implements Provider.
func (o *Ollama) FailureMessage() string {
	return "Error: Failed to get response from Ollama. Please check your configuration."
}

// Stream implements Provider.
func (o *Ollama) Stream(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	msgs := make([]ollama.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	opts := &ollama.Options{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	text, err := o.client.ChatStream(ctx, o.model, msgs, opts, onDelta)
	if err != nil {
		switch {
		case ollama.IsNotRunning(err):
			logging.Warn("ollama is not running", logging.String("url", o.client.Config().BaseURL))
		case ollama.IsModelNotFound(err):
			logging.Warn("ollama model not installed", logging.String("model", o.model))
		}
		return text, &StreamError{Provider: o.Name(), Partial: text, Err: err}
	}
	return text, nil
}

// Check implements Checker: the server must answer and list the configured
// model. A bare model name also matches its ":latest" tag.
func (o *Ollama) Check(ctx context.Context) Status {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	st := Status{Provider: o.Name(), Model: o.model, Endpoint: o.client.Config().BaseURL}
	if err := o.client.CheckRunning(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Reachable = true

	models, err := o.client.ListModels(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	for _, m := range models {
		st.Models = append(st.Models, m.Name)
		if m.Name == o.model || m.Name == o.model+":latest" {
			st.ModelInstalled = true
		}
	}
	return st
}
