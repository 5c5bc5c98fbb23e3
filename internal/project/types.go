// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package project

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// FILE ENTRIES
// =============================================================================

// Kind distinguishes file entries from directory entries.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// String returns the persisted spelling of k.
func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// ParseKind accepts the persisted spellings "file" and "directory".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "file":
		return KindFile, nil
	case "directory":
		return KindDirectory, nil
	}
	return KindFile, fmt.Errorf("unknown entry type %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// File is one entry in a project's flat file table. Directory entries carry
// empty content.
type File struct {
	Path         string    `json:"path"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"lastModified"`
	Kind         Kind      `json:"type"`
}

// IsDir reports whether f is a directory entry.
func (f File) IsDir() bool { return f.Kind == KindDirectory }

// =============================================================================
// PROJECTS
// =============================================================================

// Project is the state of one project: a name, a flat path-keyed file table
// and the handle of its current preview document, if any.
type Project struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Files         map[string]File `json:"files"`
	PreviewHandle string          `json:"previewHandle,omitempty"`
}

// Clone returns a deep copy safe to hand to callers.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.Files = make(map[string]File, len(p.Files))
	for k, v := range p.Files {
		c.Files[k] = v
	}
	return &c
}

// Paths returns every path in the file table, sorted.
func (p *Project) Paths() []string {
	paths := make([]string, 0, len(p.Files))
	for path := range p.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// FileCount counts File entries, excluding directories.
func (p *Project) FileCount() int {
	n := 0
	for _, f := range p.Files {
		if !f.IsDir() {
			n++
		}
	}
	return n
}

// HasPreview reports whether a preview document is published.
func (p *Project) HasPreview() bool { return p.PreviewHandle != "" }

// =============================================================================
// OPERATIONS
// =============================================================================

// OpKind names a file operation.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Operation is a single mutation of a project's file table.
type Operation struct {
	Kind    OpKind
	Path    string
	Content string
}

// Create writes content at path, synthesizing missing ancestor directories.
func Create(path, content string) Operation {
	return Operation{Kind: OpCreate, Path: path, Content: content}
}

// Update overwrites path; it behaves exactly like Create.
func Update(path, content string) Operation {
	return Operation{Kind: OpUpdate, Path: path, Content: content}
}

// Delete removes path and prunes ancestor directories left empty.
func Delete(path string) Operation {
	return Operation{Kind: OpDelete, Path: path}
}
