// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, check func(r *http.Request), events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func delta(s string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]string{"content": s}}},
	})
	return string(b)
}

func TestChatStream_Accumulates(t *testing.T) {
	var got ChatRequest
	var auth string
	srv := sseServer(t, func(r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}, delta("Hel"), delta("lo"), "[DONE]", delta("ignored"))

	c := NewClient(srv.URL+"/", WithModel("qwen"), WithAPIKey(" sk-test "))
	var deltas []string
	text, err := c.ChatStream(context.Background(),
		[]ChatMessage{{Role: "user", Content: "hi"}},
		Params{Temperature: 0.5, MaxTokens: 100},
		func(d string) { deltas = append(deltas, d) })

	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "qwen", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, 0.5, got.Temperature)
	assert.Equal(t, 100, got.MaxTokens)
}

func TestChatStream_NoKeyNoAuthHeader(t *testing.T) {
	srv := sseServer(t, func(r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
	}, delta("ok"), "[DONE]")

	text, err := NewClient(srv.URL).ChatStream(context.Background(), nil, Params{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestChatStream_SkipsMalformedChunks(t *testing.T) {
	srv := sseServer(t, nil, delta("a"), "{not json", delta("b"))

	text, err := NewClient(srv.URL).ChatStream(context.Background(), nil, Params{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestChatStream_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrAuthFailed},
		{"not found", http.StatusNotFound, ``, ErrModelNotFound},
		{"rate limited", http.StatusTooManyRequests, `slow down`, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).ChatStream(context.Background(), nil, Params{}, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChatStream_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"overloaded","message":"busy"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ChatStream(context.Background(), nil, Params{}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "overloaded", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "busy")
}

func TestChatStream_NoEndpoint(t *testing.T) {
	_, err := NewClient("  ").ChatStream(context.Background(), nil, Params{}, nil)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestChatStream_CancelledContext(t *testing.T) {
	srv := sseServer(t, nil, delta("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL).ChatStream(ctx, nil, Params{}, nil)
	assert.Error(t, err)
}

func TestSSEReader_ReadEvent(t *testing.T) {
	r := NewSSEReader(strings.NewReader(": comment\nevent: result\ndata: one\ndata: two\n\ndata: tail"))

	ev, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "result", ev)
	assert.Equal(t, "one\ntwo", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}
