// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/aidev/internal/storage"
)

// =============================================================================
// RUNTIME SETTINGS KEYS
// =============================================================================

// Flat keys holding the runtime settings in the key-value store.
const (
	KeyProvider        = "ai-provider"
	KeyGeminiAPIKey    = "gemini-api-key"
	KeyLocalEndpoint   = "lm-studio-endpoint"
	KeyLocalModel      = "local-model-name"
	KeyOpenAIAPIKey    = "openai-api-key"
	KeyOllamaEndpoint  = "ollama-endpoint"
	KeyOllamaModel     = "ollama-model"
	KeyTemperature     = "temperature"
	KeyMaxTokens       = "max-tokens"
	KeySystemPrompt    = "system-prompt"
	KeyMaintenanceMode = "maintenance-mode"
	KeyCurrentUser     = "current-user"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Providers lists every provider name accepted by settings.
var Providers = []string{ProviderGemini, ProviderOpenAI, ProviderOllama}

// DefaultSystemPrompt is the user-editable preamble of the system prompt.
const DefaultSystemPrompt = "You are a helpful AI development assistant with file creation capabilities. " +
	"When users ask you to create websites or applications, use the available tools to create the actual files. " +
	"Always create complete, working code."

// ErrUnknownSetting is returned for a key that is not a runtime setting.
var ErrUnknownSetting = errors.New("unknown setting")

// =============================================================================
// SETTINGS
// =============================================================================

// Settings is the provider configuration a user edits at run time. Numeric
// values are kept in their stored string form; this is also the JSON shape
// snapshotted into user profiles.
type Settings struct {
	Provider       string `json:"aiProvider"`
	GeminiAPIKey   string `json:"geminiApiKey"`
	LocalEndpoint  string `json:"lmStudioEndpoint"`
	LocalModel     string `json:"localModelName"`
	OpenAIAPIKey   string `json:"openaiApiKey"`
	OllamaEndpoint string `json:"ollamaEndpoint,omitempty"`
	OllamaModel    string `json:"ollamaModel,omitempty"`
	Temperature    string `json:"temperature"`
	MaxTokens      string `json:"maxTokens"`
	SystemPrompt   string `json:"systemPrompt"`
}

// DefaultSettings derives the settings used for keys never written.
func (c *Config) DefaultSettings() Settings {
	p := c.Provider
	return Settings{
		Provider:       p.Name,
		GeminiAPIKey:   p.GeminiAPIKey,
		LocalEndpoint:  p.LocalEndpoint,
		LocalModel:     p.LocalModel,
		OllamaEndpoint: p.OllamaURL,
		OllamaModel:    p.OllamaModel,
		Temperature:    strconv.FormatFloat(p.Temperature, 'f', -1, 64),
		MaxTokens:      strconv.Itoa(p.MaxTokens),
		SystemPrompt:   DefaultSystemPrompt,
	}
}

// fields maps each flat key to its field in s.
func (s *Settings) fields() map[string]*string {
	return map[string]*string{
		KeyProvider:       &s.Provider,
		KeyGeminiAPIKey:   &s.GeminiAPIKey,
		KeyLocalEndpoint:  &s.LocalEndpoint,
		KeyLocalModel:     &s.LocalModel,
		KeyOpenAIAPIKey:   &s.OpenAIAPIKey,
		KeyOllamaEndpoint: &s.OllamaEndpoint,
		KeyOllamaModel:    &s.OllamaModel,
		KeyTemperature:    &s.Temperature,
		KeyMaxTokens:      &s.MaxTokens,
		KeySystemPrompt:   &s.SystemPrompt,
	}
}

// SettingKeys lists the runtime setting keys in sorted order.
func SettingKeys() []string {
	var s Settings
	keys := make([]string, 0, len(s.fields()))
	for k := range s.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value stored under a flat key.
func (s Settings) Get(key string) (string, bool) {
	p, ok := s.fields()[key]
	if !ok {
		return "", false
	}
	return *p, true
}

// TemperatureValue parses Temperature, falling back to 0.7.
func (s Settings) TemperatureValue() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.Temperature), 64)
	if err != nil {
		return 0.7
	}
	return v
}

// MaxTokensValue parses MaxTokens, falling back to 2048.
func (s Settings) MaxTokensValue() int {
	v, err := strconv.Atoi(strings.TrimSpace(s.MaxTokens))
	if err != nil {
		return 2048
	}
	return v
}

// Redacted returns a copy with API keys masked for display.
func (s Settings) Redacted() Settings {
	mask := func(v string) string {
		if len(v) <= 4 {
			if v == "" {
				return ""
			}
			return "****"
		}
		return "****" + v[len(v)-4:]
	}
	s.GeminiAPIKey = mask(s.GeminiAPIKey)
	s.OpenAIAPIKey = mask(s.OpenAIAPIKey)
	return s
}

// Validate checks provider, numeric ranges and endpoint URLs.
func (s Settings) Validate() error {
	var errs ValidateErrors
	if !contains(Providers, s.Provider) {
		errs = append(errs, ValidationError{KeyProvider, "must be one of " + strings.Join(Providers, ", ")})
	}
	if t, err := strconv.ParseFloat(strings.TrimSpace(s.Temperature), 64); err != nil || t < 0 || t > 2 {
		errs = append(errs, ValidationError{KeyTemperature, "must be a number between 0 and 2"})
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s.MaxTokens)); err != nil || n <= 0 {
		errs = append(errs, ValidationError{KeyMaxTokens, "must be a positive integer"})
	}
	for key, raw := range map[string]string{KeyLocalEndpoint: s.LocalEndpoint, KeyOllamaEndpoint: s.OllamaEndpoint} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{key, "must be an absolute URL"})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

// SettingsStore reads and writes runtime settings as flat keys.
type SettingsStore struct {
	kv       storage.KV
	defaults Settings
}

// NewSettingsStore binds settings to kv. defaults fill keys never written.
func NewSettingsStore(kv storage.KV, defaults Settings) *SettingsStore {
	return &SettingsStore{kv: kv, defaults: defaults}
}

// Defaults returns the fallback settings.
func (s *SettingsStore) Defaults() Settings { return s.defaults }

// Load reads every setting. Missing or empty keys take their default.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	out := s.defaults
	for key, field := range out.fields() {
		v, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return out, fmt.Errorf("read setting %s: %w", key, err)
		}
		if ok && v != "" {
			*field = v
		}
	}
	return out, nil
}

// Save validates and writes every setting.
func (s *SettingsStore) Save(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.write(ctx, settings)
}

// Apply writes settings without validation. Profiles snapshotted from an
// older configuration are applied as-is on login.
func (s *SettingsStore) Apply(ctx context.Context, settings Settings) error {
	return s.write(ctx, settings)
}

func (s *SettingsStore) write(ctx context.Context, settings Settings) error {
	for key, field := range settings.fields() {
		if err := s.kv.Set(ctx, key, *field); err != nil {
			return fmt.Errorf("write setting %s: %w", key, err)
		}
	}
	return nil
}

// Set updates one setting after validating the resulting whole.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	current, err := s.Load(ctx)
	if err != nil {
		return err
	}
	field, ok := current.fields()[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	*field = value
	if err := current.Validate(); err != nil {
		return err
	}
	return s.kv.Set(ctx, key, value)
}

// Maintenance reports whether maintenance mode is on.
func (s *SettingsStore) Maintenance(ctx context.Context) (bool, error) {
	v, _, err := s.kv.Get(ctx, KeyMaintenanceMode)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// SetMaintenance turns maintenance mode on or off.
func (s *SettingsStore) SetMaintenance(ctx context.Context, on bool) error {
	return s.kv.Set(ctx, KeyMaintenanceMode, strconv.FormatBool(on))
}

// CurrentUser returns the logged-in username, or "".
func (s *SettingsStore) CurrentUser(ctx context.Context) (string, error) {
	v, _, err := s.kv.Get(ctx, KeyCurrentUser)
	return v, err
}

// SetCurrentUser records the logged-in username; "" logs out.
func (s *SettingsStore) SetCurrentUser(ctx context.Context, username string) error {
	if username == "" {
		return s.kv.Delete(ctx, KeyCurrentUser)
	}
	return s.kv.Set(ctx, KeyCurrentUser, username)
}
