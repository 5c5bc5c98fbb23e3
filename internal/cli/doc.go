// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the aidev command line: project and file
// management, chat with the assistant, the HTTP server, users, settings and
// administration. Every command accepts --json for machine-readable output.
package cli
