// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"fmt"
	"strings"
)

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

// Op is the kind of a diff line.
type Op int

const (
	Equal Op = iota
	Insert
	Remove
)

// Prefix is the unified-format marker for op.
func (o Op) Prefix() string {
	switch o {
	case Insert:
		return "+"
	case Remove:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a diff. OldLine and NewLine are 1-based; the side a
// line does not exist on is 0.
type Line struct {
	Op      Op
	Text    string
	OldLine int
	NewLine int
}

// Hunk is a run of changes with surrounding context.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []Line
}

// Mode describes what happened to the file as a whole.
type Mode string

const (
	ModeNew      Mode = "new"
	ModeModified Mode = "modified"
	ModeDeleted  Mode = "deleted"
)

// Diff is the comparison of two versions of one file.
type Diff struct {
	Path      string
	Mode      Mode
	Additions int
	Deletions int
	Hunks     []Hunk
}

// Compute diffs oldContent against newContent.
func Compute(path, oldContent, newContent string) *Diff {
	d := &Diff{Path: path, Mode: ModeModified}
	switch {
	case oldContent == "" && newContent != "":
		d.Mode = ModeNew
	case oldContent != "" && newContent == "":
		d.Mode = ModeDeleted
	}

	lines := lineDiff(split(oldContent), split(newContent))
	for _, l := range lines {
		switch l.Op {
		case Insert:
			d.Additions++
		case Remove:
			d.Deletions++
		}
	}
	d.Hunks = hunks(lines)
	return d
}

// Changed reports whether the versions differ.
func (d *Diff) Changed() bool { return d.Additions+d.Deletions > 0 }

func split(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// lineDiff walks the longest common subsequence table of a and b.
func lineDiff(a, b []string) []Line {
	m, n := len(a), len(b)
	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	out := make([]Line, 0, m+n)
	i, j := 0, 0
	for i < m || j < n {
		switch {
		case i < m && j < n && a[i] == b[j]:
			out = append(out, Line{Op: Equal, Text: a[i], OldLine: i + 1, NewLine: j + 1})
			i++
			j++
		case j == n || (i < m && lcs[i+1][j] >= lcs[i][j+1]):
			out = append(out, Line{Op: Remove, Text: a[i], OldLine: i + 1})
			i++
		default:
			out = append(out, Line{Op: Insert, Text: b[j], NewLine: j + 1})
			j++
		}
	}
	return out
}

// hunks groups changes whose context windows touch or overlap.
func hunks(lines []Line) []Hunk {
	var out []Hunk
	for i := 0; i < len(lines); {
		if lines[i].Op == Equal {
			i++
			continue
		}
		start := max(0, i-ContextLines)
		end := i
		for k := i; k < len(lines); k++ {
			if lines[k].Op != Equal {
				end = k
				continue
			}
			if k-end > 2*ContextLines {
				break
			}
		}
		stop := min(len(lines), end+ContextLines+1)
		out = append(out, makeHunk(lines[start:stop]))
		i = stop
	}
	return out
}

func makeHunk(lines []Line) Hunk {
	h := Hunk{Lines: lines}
	for _, l := range lines {
		if l.OldLine > 0 {
			if h.OldCount == 0 {
				h.OldStart = l.OldLine
			}
			h.OldCount++
		}
		if l.NewLine > 0 {
			if h.NewCount == 0 {
				h.NewStart = l.NewLine
			}
			h.NewCount++
		}
	}
	return h
}

// Unified renders d in unified diff format.
func (d *Diff) Unified() string {
	if !d.Changed() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", d.Path, d.Path)
	for _, h := range d.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			b.WriteString(l.Op.Prefix())
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Summary is a one-line description such as "Modified +3 -1".
func (d *Diff) Summary() string {
	parts := []string{map[Mode]string{
		ModeNew:      "New file",
		ModeModified: "Modified",
		ModeDeleted:  "Deleted",
	}[d.Mode]}
	if d.Additions > 0 {
		parts = append(parts, fmt.Sprintf("+%d", d.Additions))
	}
	if d.Deletions > 0 {
		parts = append(parts, fmt.Sprintf("-%d", d.Deletions))
	}
	return strings.Join(parts, " ")
}
