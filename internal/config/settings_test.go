// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/aidev/internal/storage"
)

func TestSettingsStore_Defaults(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(storage.NewMemory(), Default().DefaultSettings())

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, got.Provider)
	assert.Equal(t, "http://localhost:1234", got.LocalEndpoint)
	assert.Equal(t, "local-model", got.LocalModel)
	assert.Equal(t, "0.7", got.Temperature)
	assert.Equal(t, "2048", got.MaxTokens)
	assert.Equal(t, DefaultSystemPrompt, got.SystemPrompt)
	assert.Equal(t, 0.7, got.TemperatureValue())
	assert.Equal(t, 2048, got.MaxTokensValue())
}

func TestSettingsStore_SetWritesFlatKey(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := NewSettingsStore(kv, Default().DefaultSettings())

	require.NoError(t, s.Set(ctx, KeyProvider, ProviderOpenAI))
	require.NoError(t, s.Set(ctx, KeyTemperature, "1.2"))

	raw, ok, err := kv.Get(ctx, "ai-provider")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "openai", raw)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.2, got.TemperatureValue())

	assert.ErrorIs(t, s.Set(ctx, "favourite-colour", "blue"), ErrUnknownSetting)
	assert.Error(t, s.Set(ctx, KeyTemperature, "9"))
	assert.Error(t, s.Set(ctx, KeyMaxTokens, "-1"))
	assert.Error(t, s.Set(ctx, KeyProvider, "nope"))

	// Rejected writes leave the stored value alone.
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2", got.Temperature)
}

func TestSettingsStore_SaveAndApply(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(storage.NewMemory(), Default().DefaultSettings())

	bad := s.Defaults()
	bad.MaxTokens = "zero"
	assert.Error(t, s.Save(ctx, bad))

	// Apply skips validation for profiles restored on login.
	require.NoError(t, s.Apply(ctx, bad))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "zero", got.MaxTokens)
	assert.Equal(t, 2048, got.MaxTokensValue())
}

func TestSettingsStore_MaintenanceAndUser(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := NewSettingsStore(kv, Default().DefaultSettings())

	on, err := s.Maintenance(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, s.SetMaintenance(ctx, true))
	raw, _, _ := kv.Get(ctx, KeyMaintenanceMode)
	assert.Equal(t, "true", raw)
	on, err = s.Maintenance(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, s.SetCurrentUser(ctx, "admin"))
	u, err := s.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", u)

	require.NoError(t, s.SetCurrentUser(ctx, ""))
	_, ok, _ := kv.Get(ctx, KeyCurrentUser)
	assert.False(t, ok)
}

func TestSettings_RedactedAndKeys(t *testing.T) {
	s := Settings{GeminiAPIKey: "AIzaSecretValue", OpenAIAPIKey: "abc"}
	r := s.Redacted()
	assert.Equal(t, "****alue", r.GeminiAPIKey)
	assert.Equal(t, "****", r.OpenAIAPIKey)
	assert.Equal(t, "AIzaSecretValue", s.GeminiAPIKey)

	keys := SettingKeys()
	assert.Contains(t, keys, KeySystemPrompt)
	assert.NotContains(t, keys, KeyMaintenanceMode)
	assert.IsNonDecreasing(t, keys)

	v, ok := s.Get(KeyGeminiAPIKey)
	assert.True(t, ok)
	assert.Equal(t, "AIzaSecretValue", v)
}
