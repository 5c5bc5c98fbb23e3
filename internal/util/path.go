// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidPath is returned for project paths that are empty after cleaning
// or that try to climb out of the project root.
var ErrInvalidPath = errors.New("invalid project path")

// CleanProjectPath normalizes a project-relative file path into its canonical
// key form: NFC-normalized, forward slashes, no leading "./" or "/", no empty
// or "." segments. A ".." segment is rejected.
//
// Two spellings of the same file ("./src//app.js", "src\app.js") map to the
// same key, so the assistant cannot create near-duplicate entries.
func CleanProjectPath(p string) (string, error) {
	p = norm.NFC.String(strings.TrimSpace(p))
	p = strings.ReplaceAll(p, "\\", "/")

	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, seg := range parts {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidPath
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return "", ErrInvalidPath
	}
	return strings.Join(out, "/"), nil
}

// Ancestors returns the proper directory prefixes of p from shallowest to
// deepest. "a/b/c.txt" yields ["a", "a/b"].
func Ancestors(p string) []string {
	var out []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}

// BaseName returns the final segment of a slash-separated path.
func BaseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// ParentPath returns everything before the final segment, or "" at the root.
func ParentPath(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}
