// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider hides the three chat backends behind one streaming
// interface: Gemini's OpenAI-compatible endpoint, a local OpenAI-compatible
// server (LM Studio), and Ollama.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/aidev/internal/config"
)

// Roles used in requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrUnknownProvider is returned by New for a provider name it cannot build.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingAPIKey is returned when a provider that needs a key has none.
	ErrMissingAPIKey = errors.New("api key not configured")
)

// Message is one turn of the conversation sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Request is a single streaming completion request.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider streams a completion. Stream calls onDelta with each fragment in
// order and returns the full text. A failed stream returns *StreamError.
type Provider interface {
	Name() string
	Model() string
	Stream(ctx context.Context, req Request, onDelta func(string)) (string, error)
	// FailureMessage is the text shown in place of a reply when Stream fails.
	FailureMessage() string
}

// StreamError is a failed stream together with the content received before
// the failure.
type StreamError struct {
	Provider string
	Partial  string
	Err      error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("%s stream error (partial content received: %d chars): %v", e.Provider, len(e.Partial), e.Err)
	}
	return fmt.Sprintf("%s stream error: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Option configures providers built by New.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient makes every provider use hc for its requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New builds the provider selected by s.Provider. Process-level values in
// pc fill whatever the runtime settings leave empty.
func New(s config.Settings, pc config.ProviderConfig, opts ...Option) (Provider, error) {
	o := options{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	switch strings.TrimSpace(s.Provider) {
	case config.ProviderGemini:
		key := firstNonEmpty(s.GeminiAPIKey, pc.GeminiAPIKey)
		if key == "" {
			return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
		}
		return NewGemini(key, pc.GeminiBaseURL, pc.GeminiModel, pc.Timeout(), o.httpClient), nil
	case config.ProviderOpenAI:
		return NewLocal(firstNonEmpty(s.LocalEndpoint, pc.LocalEndpoint), s.OpenAIAPIKey,
			firstNonEmpty(s.LocalModel, pc.LocalModel), pc.Timeout(), o.httpClient), nil
	case config.ProviderOllama:
		return NewOllama(firstNonEmpty(s.OllamaEndpoint, pc.OllamaURL),
			firstNonEmpty(s.OllamaModel, pc.OllamaModel), pc.Timeout(), o.httpClient), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, s.Provider)
	}
}

// Status reports whether a provider's endpoint answers and which models it
// serves.
type Status struct {
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Endpoint       string   `json:"endpoint,omitempty"`
	Checked        bool     `json:"checked"`
	Reachable      bool     `json:"reachable"`
	ModelInstalled bool     `json:"modelInstalled"`
	Models         []string `json:"models,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Checker is implemented by providers that can probe their endpoint.
type Checker interface {
	Check(ctx context.Context) Status
}

// CheckStatus runs p's check when it has one. Otherwise only the name and
// model are filled in and Checked is false.
func CheckStatus(ctx context.Context, p Provider) Status {
	if c, ok := p.(Checker); ok {
		st := c.Check(ctx)
		st.Checked = true
		return st
	}
	return Status{Provider: p.Name(), Model: p.Model()}
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
