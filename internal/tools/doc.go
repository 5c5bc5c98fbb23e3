// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools turns model output into project mutations.
//
// The model is asked to answer with a JSON payload of tool calls, possibly
// fenced in a ```json block inside other text. ParsePayload extracts and
// decodes it; tool arguments may arrive as an object or as a JSON string
// and decode identically. Executor applies each call to the project store
// and reports a one-line result per call.
//
// # Available Tools
//
//   - create_file, update_file: write a file, creating parent directories
//   - delete_file: remove a file and prune empty parents
//   - create_directory: create a directory chain
//   - create_project: create a project and make it current
package tools
