// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_NewFile(t *testing.T) {
	d := Compute("index.html", "", "<html>\n<body></body>\n</html>\n")
	assert.Equal(t, ModeNew, d.Mode)
	assert.Equal(t, 3, d.Additions)
	assert.Zero(t, d.Deletions)
	assert.Equal(t, "New file +3", d.Summary())

	want := "--- a/index.html\n+++ b/index.html\n@@ -0,0 +1,3 @@\n+<html>\n+<body></body>\n+</html>\n"
	assert.Equal(t, want, d.Unified())
}

func TestCompute_Deleted(t *testing.T) {
	d := Compute("a.txt", "one\ntwo\n", "")
	assert.Equal(t, ModeDeleted, d.Mode)
	assert.Equal(t, 2, d.Deletions)
	assert.Equal(t, "Deleted -2", d.Summary())
}

func TestCompute_Unchanged(t *testing.T) {
	d := Compute("a.txt", "same\n", "same\n")
	assert.False(t, d.Changed())
	assert.Empty(t, d.Unified())
	assert.Empty(t, d.Hunks)
}

func TestCompute_ModifiedKeepsContext(t *testing.T) {
	old := "a\nb\nc\nd\ne\nf\ng\nh\n"
	updated := "a\nb\nc\nd\nE\nf\ng\nh\n"
	d := Compute("x.txt", old, updated)
	assert.Equal(t, "Modified +1 -1", d.Summary())
	require.Len(t, d.Hunks, 1)

	h := d.Hunks[0]
	assert.Equal(t, 2, h.OldStart)
	assert.Equal(t, 7, h.OldCount)
	assert.Equal(t, 2, h.NewStart)
	assert.Equal(t, 7, h.NewCount)
	assert.Contains(t, d.Unified(), "@@ -2,7 +2,7 @@\n b\n c\n d\n-e\n+E\n f\n g\n h\n")
}

func TestCompute_DistantChangesSplitHunks(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, string(rune('a'+i)))
	}
	old := strings.Join(lines, "\n") + "\n"
	lines[1] = "B"
	lines[18] = "S"
	d := Compute("x.txt", old, strings.Join(lines, "\n")+"\n")
	require.Len(t, d.Hunks, 2)
	assert.Equal(t, 1, d.Hunks[0].OldStart)
	assert.Equal(t, 16, d.Hunks[1].OldStart)
}
