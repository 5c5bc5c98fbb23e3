// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/storage"
)

func newStore(t *testing.T) (*Store, *config.SettingsStore, *storage.Memory) {
	t.Helper()
	kv := storage.NewMemory()
	settings := config.NewSettingsStore(kv, config.Default().DefaultSettings())
	s := NewStore(kv, settings)
	require.NoError(t, s.EnsureAdmin(context.Background()))
	return s, settings, kv
}

func TestEnsureAdmin_SeedsOnce(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAdmin(ctx))

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, AdminID, users[0].ID)
	assert.Equal(t, AdminUsername, users[0].Username)
	assert.Equal(t, AdminPassword, users[0].Password)

	profile, err := users[0].ParsedSettings()
	require.NoError(t, err)
	assert.Equal(t, config.ProviderGemini, profile.Provider)
	assert.Empty(t, profile.GeminiAPIKey)
}

func TestCreate(t *testing.T) {
	s, settings, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, settings.Set(ctx, config.KeyTemperature, "1.1"))

	u, err := s.Create(ctx, " dana ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "dana", u.Username)
	assert.NotEmpty(t, u.ID)

	profile, err := u.ParsedSettings()
	require.NoError(t, err)
	assert.Equal(t, "1.1", profile.Temperature)

	_, err = s.Create(ctx, "dana", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = s.Create(ctx, "", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = s.Create(ctx, "x", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestLoginAppliesProfile(t *testing.T) {
	s, settings, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, settings.Set(ctx, config.KeyProvider, config.ProviderOllama))
	_, err := s.Create(ctx, "dana", "pw")
	require.NoError(t, err)
	require.NoError(t, settings.Set(ctx, config.KeyProvider, config.ProviderOpenAI))

	_, err = s.Login(ctx, "dana", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := s.Login(ctx, "dana", "pw")
	require.NoError(t, err)
	assert.Equal(t, "dana", u.Username)

	got, err := settings.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderOllama, got.Provider)

	cur, ok, err := s.Current(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dana", cur.Username)

	require.NoError(t, s.Logout(ctx))
	_, ok, err = s.Current(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveSettings(t *testing.T) {
	s, settings, _ := newStore(t)
	ctx := context.Background()

	_, err := s.SaveSettings(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = s.Create(ctx, "dana", "pw")
	require.NoError(t, err)
	_, err = s.Login(ctx, "dana", "pw")
	require.NoError(t, err)
	require.NoError(t, settings.Set(ctx, config.KeyMaxTokens, "512"))

	u, err := s.SaveSettings(ctx)
	require.NoError(t, err)
	profile, err := u.ParsedSettings()
	require.NoError(t, err)
	assert.Equal(t, "512", profile.MaxTokens)
}

func TestDeleteCurrentUserLogsOut(t *testing.T) {
	s, settings, _ := newStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, "dana", "pw")
	require.NoError(t, err)
	_, err = s.Login(ctx, "dana", "pw")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "missing"))
	require.NoError(t, s.Delete(ctx, u.ID))

	name, err := settings.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, s.Delete(ctx, AdminID), ErrAdminProtected)
}

func TestIsAdminAndReset(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "dana", "pw")
	require.NoError(t, err)

	ok, err := s.IsAdmin(ctx, AdminUsername)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsAdmin(ctx, "dana")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ResetToAdmin(ctx))
	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsAdmin())
}

func TestUnreadableTableIsEmpty(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(context.Background(), Key, "not json"))
	s := NewStore(kv, config.NewSettingsStore(kv, config.Settings{}))

	users, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

// =============================================================================
// CSV TESTS
// =============================================================================

func TestEncodeCSV(t *testing.T) {
	out := EncodeCSV([]User{{ID: "1", Username: "a", Password: "p", Settings: `{"aiProvider":"gemini"}`}})
	assert.Equal(t, "id,username,password,settings\n"+`1,a,p,"{""aiProvider"":""gemini""}"`, out)
}

func TestCSVRoundTrip(t *testing.T) {
	in := []User{
		DefaultAdmin(),
		{ID: "u2", Username: "dana", Password: "pw", Settings: `{"systemPrompt":"say \"hi\", then build"}`},
	}
	out, err := DecodeCSV(EncodeCSV(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"header only", "id,username,password,settings", 0, true},
		{"missing username header", "id,name,password,settings\n1,a,p,{}", 0, true},
		{"short rows skipped", "id,username,password,settings\n1,a,p,\"{}\"\n2,b\n", 1, false},
		{"crlf", "id,username,password,settings\r\n1,a,p,\"{}\"\r\n", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := DecodeCSV(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCSV)
				return
			}
			require.NoError(t, err)
			assert.Len(t, users, tt.want)
		})
	}
}

func TestImportReplacesTable(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "dana", "pw")
	require.NoError(t, err)

	n, err := s.ImportCSV(ctx, "id,username,password,settings\nx1,eli,secret,\"{}\"")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "eli", users[0].Username)

	_, err = s.ImportCSV(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidCSV)

	csv, err := s.ExportCSV(ctx)
	require.NoError(t, err)
	assert.Contains(t, csv, "x1,eli,secret")
}
