// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff computes line diffs between two versions of a project file
// and renders them in unified format.
//
//	d := diff.Compute("index.html", before, after)
//	fmt.Print(d.Unified())
//	fmt.Println(d.Summary()) // "Modified +3 -1"
package diff
