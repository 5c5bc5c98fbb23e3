// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes projects, files, chat, previews, users, settings
// and admin operations over a JSON HTTP API.
//
// # Endpoints
//
//   - /api/projects[/{id}[/tree|/files|/directories|/chat]]
//   - /api/users, /api/login, /api/logout
//   - /api/settings, /api/admin/{maintenance,reset,stats}
//   - GET /preview/{handle} - the synthesized preview document
//   - GET /health, GET /metrics
//
// Chat replies stream as Server-Sent Events: one data event per partial
// reply carrying {"content": ...} and a final "result" event.
//
// # Middleware
//
// Requests pass, in order, through panic recovery, security headers, zap
// request logging, Prometheus metrics, CORS, a per-client token bucket and
// the maintenance gate. While maintenance mode is on, mutating requests are
// answered 503 unless the configured user header names an administrator.
//
// # Usage
//
//	a, err := app.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//	return server.New(a).Run(ctx)
package server
