// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package project

import (
	"sort"

	"github.com/jeranaias/aidev/internal/util"
)

// Node is one element of the derived directory tree. Trees are rebuilt from
// the flat file table on every request and are never mutated afterwards.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Kind     Kind    `json:"type"`
	Children []*Node `json:"children,omitempty"`
	File     *File   `json:"file,omitempty"`
}

// IsDir reports whether n is a directory node.
func (n *Node) IsDir() bool { return n.Kind == KindDirectory }

// BuildTree derives the directory tree of p. The root is named after the
// project and has the empty path. A parent missing from the table is
// synthesized as an implicit directory node without a File reference, so no
// entry is ever dropped from the tree.
func BuildTree(p *Project) *Node {
	root := &Node{Name: p.Name, Path: "", Kind: KindDirectory, Children: []*Node{}}
	dirs := map[string]*Node{"": root}

	var ensureDir func(path string) *Node
	ensureDir = func(path string) *Node {
		if n, ok := dirs[path]; ok {
			return n
		}
		n := &Node{Name: util.BaseName(path), Path: path, Kind: KindDirectory, Children: []*Node{}}
		dirs[path] = n
		parent := ensureDir(util.ParentPath(path))
		parent.Children = append(parent.Children, n)
		return n
	}

	paths := p.Paths()
	for _, path := range paths {
		f := p.Files[path]
		if f.IsDir() {
			n := ensureDir(path)
			file := f
			n.File = &file
		}
	}
	for _, path := range paths {
		f := p.Files[path]
		if f.IsDir() {
			continue
		}
		// A file whose path is also the prefix of other entries cannot hold
		// children; its descendants still hang off a synthesized directory.
		file := f
		parent := ensureDir(util.ParentPath(path))
		parent.Children = append(parent.Children, &Node{
			Name: util.BaseName(path),
			Path: path,
			Kind: KindFile,
			File: &file,
		})
	}

	sortTree(root)
	return root
}

// sortTree orders children directories first, then files, each by name.
func sortTree(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.IsDir() {
			sortTree(c)
		}
	}
}

// Find returns the node at path, or nil.
func Find(root *Node, path string) *Node {
	if root.Path == path {
		return root
	}
	for _, c := range root.Children {
		if c.Path == path {
			return c
		}
		if c.IsDir() && len(path) > len(c.Path) && path[:len(c.Path)+1] == c.Path+"/" {
			return Find(c, path)
		}
	}
	return nil
}

// CountNodes counts n and every descendant.
func CountNodes(n *Node) int {
	count := 1
	for _, c := range n.Children {
		count += CountNodes(c)
	}
	return count
}
