// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across aidev packages.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file replacement used by the file substrate
//   - CleanProjectPath, Ancestors, BaseName, ParentPath: project path keys
//   - TruncateWidth, PadRight: terminal-width aware text layout
package util
