// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/metrics"
	"github.com/jeranaias/aidev/internal/provider"
	"github.com/jeranaias/aidev/internal/tools"
)

// DefaultHistoryContext is how many earlier messages go with each request.
const DefaultHistoryContext = 10

var (
	// ErrExchangeInProgress is returned when a project already has an
	// exchange running.
	ErrExchangeInProgress = errors.New("an exchange is already in progress for this project")

	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("message is empty")
)

// Projects is the part of the project store the pipeline needs.
type Projects interface {
	CurrentID() string
	SetCurrent(ctx context.Context, id string) error
}

// SettingsSource supplies the runtime provider settings.
type SettingsSource interface {
	Load(ctx context.Context) (config.Settings, error)
}

// ProviderFactory builds the provider for the current settings.
type ProviderFactory func(config.Settings) (provider.Provider, error)

// Brief is an optional description of the site being built. It is appended
// to the system prompt.
type Brief struct {
	BusinessType    string `json:"businessType"`
	WebsiteName     string `json:"websiteName"`
	Description     string `json:"description"`
	PreferredColors string `json:"preferredColors"`
}

func (b *Brief) prompt() string {
	if b == nil || *b == (Brief{}) {
		return ""
	}
	return fmt.Sprintf("\n\nProject Configuration:\n- Business Type: %s\n- Website Name: %s\n- Description: %s\n- Preferred Colors: %s\n",
		b.BusinessType, b.WebsiteName, b.Description, b.PreferredColors)
}

// Request is one user turn.
type Request struct {
	ProjectID string
	Text      string
	Brief     *Brief
}

// Exchange is the outcome of a Send.
type Exchange struct {
	ProjectID string
	Provider  string
	User      Message
	Assistant Message
	Messages  []Message
	Results   []tools.Result
	// Failed is set when the provider failed and Assistant carries its
	// error text.
	Failed bool
}

// Pipeline runs chat exchanges.
type Pipeline struct {
	history   *History
	settings  SettingsSource
	providers ProviderFactory
	executor  *tools.Executor
	projects  Projects

	historyContext int
	clock          func() time.Time

	mu   sync.Mutex
	busy map[string]bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithHistoryContext sets how many earlier messages accompany a request.
func WithHistoryContext(n int) PipelineOption {
	return func(p *Pipeline) {
		if n >= 0 {
			p.historyContext = n
		}
	}
}

// WithPipelineClock replaces time.Now for message timestamps.
func WithPipelineClock(clock func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.clock = clock }
}

// NewPipeline wires a pipeline.
func NewPipeline(history *History, settings SettingsSource, providers ProviderFactory,
	executor *tools.Executor, projects Projects, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		history:        history,
		settings:       settings,
		providers:      providers,
		executor:       executor,
		projects:       projects,
		historyContext: DefaultHistoryContext,
		clock:          time.Now,
		busy:           make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// History returns the pipeline's chat store.
func (p *Pipeline) History() *History { return p.history }

func (p *Pipeline) acquire(projectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy[projectID] {
		return false
	}
	p.busy[projectID] = true
	return true
}

func (p *Pipeline) release(projectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.busy, projectID)
}

// Send runs one exchange. onPartial, when set, receives the accumulated
// reply after every streamed fragment.
//
// A non-empty ProjectID becomes current first, and the reply's tool calls
// write to it even when another exchange switches the current project
// meanwhile. An empty ProjectID targets the current project. A provider failure is not a Send error: the reply carries
// the provider's failure text and Exchange.Failed is set. Cancelling ctx
// stops the stream, keeps the partial reply and returns ctx's error along
// with the exchange.
func (p *Pipeline) Send(ctx context.Context, req Request, onPartial func(string)) (*Exchange, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !p.acquire(req.ProjectID) {
		return nil, ErrExchangeInProgress
	}
	defer p.release(req.ProjectID)

	settings, err := p.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	prov, err := p.providers(settings)
	if err != nil {
		return nil, fmt.Errorf("configure provider: %w", err)
	}

	if req.ProjectID != "" && p.projects.CurrentID() != req.ProjectID {
		if err := p.projects.SetCurrent(ctx, req.ProjectID); err != nil {
			return nil, err
		}
	}

	prior, err := p.history.Load(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	user := NewMessage(RoleUser, text, p.clock())
	assistant := NewMessage(RoleAssistant, "", p.clock())

	preq := provider.Request{
		Messages:    p.buildMessages(settings, prior, req.Brief, text),
		Temperature: settings.TemperatureValue(),
		MaxTokens:   settings.MaxTokensValue(),
	}

	var streamed strings.Builder
	reply, streamErr := prov.Stream(ctx, preq, func(delta string) {
		streamed.WriteString(delta)
		if onPartial != nil {
			onPartial(streamed.String())
		}
	})

	ex := &Exchange{ProjectID: req.ProjectID, Provider: prov.Name(), User: user}
	var result error
	switch {
	case streamErr != nil && ctx.Err() != nil:
		assistant.Content = reply
		result = ctx.Err()
		logging.Info("chat exchange cancelled", logging.String("project", req.ProjectID))
	case streamErr != nil:
		assistant.Content = prov.FailureMessage()
		ex.Failed = true
		logging.Error("provider stream failed",
			logging.String("provider", prov.Name()),
			logging.String("project", req.ProjectID),
			logging.Err(streamErr))
	default:
		assistant, ex.Results = p.applyTools(ctx, req.ProjectID, assistant, reply)
	}
	metrics.RecordChatExchange(prov.Name(), !ex.Failed && result == nil)

	ex.Assistant = assistant
	ex.Messages = append(append(prior, user), assistant)

	// The history is written even when ctx was cancelled.
	if err := p.history.Save(context.WithoutCancel(ctx), req.ProjectID, ex.Messages); err != nil {
		return ex, err
	}
	return ex, result
}

// buildMessages assembles the system prompt, the tail of the history and
// the new user message.
func (p *Pipeline) buildMessages(settings config.Settings, prior []Message, brief *Brief, text string) []provider.Message {
	system := tools.SystemPrompt(settings.SystemPrompt, p.executor.Registry()) + brief.prompt()

	tail := prior
	if len(tail) > p.historyContext {
		tail = tail[len(tail)-p.historyContext:]
	}

	msgs := make([]provider.Message, 0, len(tail)+2)
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: system})
	for _, m := range tail {
		role := provider.RoleUser
		if m.Role == RoleAssistant {
			role = provider.RoleAssistant
		}
		msgs = append(msgs, provider.Message{Role: role, Content: m.Content})
	}
	return append(msgs, provider.Message{Role: provider.RoleUser, Content: text})
}

// applyTools parses the reply for tool calls and runs them. Replies without
// a usable payload are kept as plain content.
func (p *Pipeline) applyTools(ctx context.Context, projectID string, assistant Message, reply string) (Message, []tools.Result) {
	assistant.Content = reply
	if !tools.MayContainToolCalls(reply) {
		return assistant, nil
	}

	payload, err := tools.ParsePayload(reply)
	if err != nil {
		logging.Warn("tool payload not parsed", logging.Err(err))
		return assistant, nil
	}

	assistant.Content = payload.Content
	if assistant.Content == "" {
		assistant.Content = CreatedText
	}
	if len(payload.ToolCalls) == 0 {
		return assistant, nil
	}

	results := p.executor.ExecuteAll(ctx, projectID, payload.ToolCalls)
	assistant.ToolCalls = payload.ToolCalls
	assistant.ToolResults = make([]string, len(results))
	for i, r := range results {
		assistant.ToolResults[i] = r.Output
	}
	return assistant, results
}
