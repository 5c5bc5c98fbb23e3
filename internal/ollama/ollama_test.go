// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndjsonServer(t *testing.T, check func(req ChatRequest), lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req ChatRequest
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &req))
		if check != nil {
			check(req)
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://example:1/"})
	cfg := c.Config()
	assert.Equal(t, "http://example:1", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "qwen2.5-coder:7b", cfg.DefaultModel)

	assert.Equal(t, DefaultConfig().BaseURL, NewClient().Config().BaseURL)
}

func TestChatStream_Accumulates(t *testing.T) {
	srv := ndjsonServer(t, func(req ChatRequest) {
		assert.Equal(t, "qwen2.5-coder:7b", req.Model)
		assert.True(t, req.Stream)
		require.NotNil(t, req.Options)
		assert.Equal(t, 0.3, req.Options.Temperature)
		assert.Equal(t, 512, req.Options.NumPredict)
		assert.Equal(t, []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}}, req.Messages)
	},
		`{"model":"qwen","message":{"role":"assistant","content":"Hel"},"done":false}`,
		``,
		`garbage`,
		`{"model":"qwen","message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"model":"qwen","message":{"role":"assistant","content":""},"done":true,"eval_count":2}`,
		`{"model":"qwen","message":{"role":"assistant","content":"late"},"done":false}`,
	)

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	var deltas []string
	text, err := c.ChatStream(context.Background(), "",
		[]Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
		&Options{Temperature: 0.3, NumPredict: 512},
		func(d string) { deltas = append(deltas, d) })

	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestChatStream_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL}).ChatStream(context.Background(), "missing", nil, nil, nil)
	assert.True(t, IsModelNotFound(err))
}

func TestChatStream_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"out of memory"}`))
	}))
	defer srv.Close()

	_, err := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL}).ChatStream(context.Background(), "m", nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestChatStream_InStreamError(t *testing.T) {
	srv := ndjsonServer(t, nil,
		`{"message":{"content":"part"},"done":false}`,
		`{"error":"model crashed"}`,
	)

	text, err := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL}).ChatStream(context.Background(), "m", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "part", text)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestChatStream_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClientWithConfig(&ClientConfig{BaseURL: url}).ChatStream(context.Background(), "m", nil, nil, nil)
	assert.True(t, IsNotRunning(err))
	assert.True(t, errors.Is(err, ErrNotRunning))
}

func TestCheckRunning(t *testing.T) {
	srv := ndjsonServer(t, nil)
	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	assert.NoError(t, c.CheckRunning(context.Background()))
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5-coder:7b","size":42}]}`))
	}))
	defer srv.Close()

	models, err := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL}).ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "qwen2.5-coder:7b", models[0].Name)
	assert.EqualValues(t, 42, models[0].Size)
}

func TestStreamReader_FinalChunkStats(t *testing.T) {
	r := NewStreamReader(strings.NewReader(
		`{"model":"m","message":{"content":"a"}}` + "\n" +
			`{"model":"m","message":{"content":""},"done":true,"prompt_eval_count":3,"eval_count":1}`))

	var last StreamChunk
	require.NoError(t, r.Process(context.Background(), func(c StreamChunk) { last = c }))
	assert.True(t, last.Done)
	assert.Equal(t, 3, last.PromptTokens)
	assert.Equal(t, 1, last.CompletionTokens)
	assert.Equal(t, "m", r.GetModel())
	assert.Equal(t, 1, r.GetTokenCount())
	assert.Equal(t, "a", r.GetAccumulated())
}
