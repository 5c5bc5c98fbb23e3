// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package project holds the project collection: per-project flat file
// tables keyed by slash-separated path, the directory tree derived from
// them, and the preview document synthesized from a project's HTML file
// with its stylesheets and scripts inlined.
//
// Every file operation resynchronizes the project's preview. A project has
// a preview handle exactly when its table holds at least one .html file,
// and the handle always reflects the current table.
package project
