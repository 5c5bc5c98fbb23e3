// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// Only the pieces the "ollama" provider needs are here: a health check,
// model listing, and streaming /api/chat. Ollama streams newline-delimited
// JSON; each line carries message.content and the last one has done=true.
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: "http://localhost:11434"})
//	text, err := client.ChatStream(ctx, "qwen2.5-coder:7b",
//	    []ollama.Message{{Role: "user", Content: "Hello"}},
//	    &ollama.Options{Temperature: 0.7},
//	    func(delta string) { fmt.Print(delta) })
package ollama
