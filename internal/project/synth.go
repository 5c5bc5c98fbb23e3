// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package project

import (
	"sort"
	"strings"
)

const (
	headClose = "</head>"
	bodyClose = "</body>"
)

// MainHTML picks the document a preview is built from. An "index.html" at
// any depth wins, the shallowest first; otherwise the lexicographically
// smallest .html path. ok is false when the table holds no HTML file.
func MainHTML(files map[string]File) (path string, ok bool) {
	var htmls, indexes []string
	for p, f := range files {
		if f.IsDir() || !strings.HasSuffix(p, ".html") {
			continue
		}
		htmls = append(htmls, p)
		if p == "index.html" || strings.HasSuffix(p, "/index.html") {
			indexes = append(indexes, p)
		}
	}
	if len(htmls) == 0 {
		return "", false
	}

	if len(indexes) > 0 {
		sort.Slice(indexes, func(i, j int) bool {
			di, dj := strings.Count(indexes[i], "/"), strings.Count(indexes[j], "/")
			if di != dj {
				return di < dj
			}
			return indexes[i] < indexes[j]
		})
		return indexes[0], true
	}

	sort.Strings(htmls)
	return htmls[0], true
}

// Synthesize builds the preview document for a file table: the main HTML
// file with every stylesheet inlined before </head> and every script
// inlined before </body>. Blocks are emitted in path order. ok is false
// when there is nothing to preview.
func Synthesize(files map[string]File) (doc string, ok bool) {
	main, ok := MainHTML(files)
	if !ok {
		return "", false
	}
	doc = files[main].Content

	var styles, scripts []string
	for _, p := range sortedPaths(files) {
		f := files[p]
		if f.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(p, ".css"):
			styles = append(styles, styleBlock(p, f.Content))
		case strings.HasSuffix(p, ".js"):
			scripts = append(scripts, scriptBlock(p, f.Content))
		}
	}

	if len(styles) > 0 {
		doc = insertBefore(doc, headClose, strings.Join(styles, ""), false)
	}
	if len(scripts) > 0 {
		doc = insertBefore(doc, bodyClose, strings.Join(scripts, ""), true)
	}
	return doc, true
}

func styleBlock(path, content string) string {
	return "<style>/* " + path + " */\n" + content + "\n</style>\n"
}

func scriptBlock(path, content string) string {
	return "<script>/* " + path + " */\n" + content + "\n</script>\n"
}

// insertBefore places block immediately before the first occurrence of tag.
// Without the tag the block is appended when atEnd is set, else prepended.
func insertBefore(doc, tag, block string, atEnd bool) string {
	if i := strings.Index(doc, tag); i >= 0 {
		return doc[:i] + block + doc[i:]
	}
	if atEnd {
		return doc + block
	}
	return block + doc
}

func sortedPaths(files map[string]File) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
