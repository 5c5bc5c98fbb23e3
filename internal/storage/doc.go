// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the string key-value substrate that every piece
// of aidev state is persisted to.
//
// The substrate is deliberately minimal: Get, Set, Delete and Keys on string
// values, no transactions, last-write-wins. Higher layers (projects, chat
// history, users, settings) serialize their own JSON documents under fixed
// keys such as "ai-dev-projects".
//
// # Key Types
//
//   - KV: the substrate interface
//   - Memory: process-local map, used by tests and --backend memory
//   - File: a single JSON document on disk, with fsnotify reload
//   - SQL: one table in SQLite (modernc) or Postgres (lib/pq)
//   - S3: one object per key in an S3-compatible bucket
//
// # Usage
//
//	kv, err := storage.Open(ctx, storage.Options{Backend: "sqlite", Path: dataDir})
//	if err != nil {
//	    return err
//	}
//	defer kv.Close()
//
//	err = kv.Set(ctx, "maintenance-mode", "true")
//	v, ok, err := kv.Get(ctx, "maintenance-mode")
package storage
