// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the client for OpenAI-compatible chat completion
// endpoints, the "openai" provider. LM Studio is the usual target.
//
// Requests always stream. The client POSTs to <endpoint>/v1/chat/completions
// and reads Server-Sent Events until the [DONE] marker:
//
//	c := cloud.NewClient("http://localhost:1234", cloud.WithModel("local-model"))
//	text, err := c.ChatStream(ctx, []cloud.ChatMessage{{Role: "user", Content: "Hello"}},
//	    cloud.Params{Temperature: 0.7, MaxTokens: 2048}, func(delta string) {
//	        fmt.Print(delta)
//	    })
//
// An API key, when set, is sent as a Bearer token. It is never logged.
package cloud
