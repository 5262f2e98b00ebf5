// Package frontmatter registers YAML frontmatter parsing in a goldmark
// pipeline and exposes the parsed metadata.
package frontmatter

import (
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// Extension returns a goldmark.Extender that strips and parses a leading
// YAML frontmatter block.
func Extension() goldmark.Extender {
	return meta.Meta
}

// Get returns the metadata parsed during conversion with the given parser
// context, or nil when the document had no frontmatter.
func Get(pc parser.Context) map[string]any {
	return meta.Get(pc)
}

// Title extracts the conventional title field, if present.
func Title(pc parser.Context) string {
	m := meta.Get(pc)
	if m == nil {
		return ""
	}
	if s, ok := m["title"].(string); ok {
		return s
	}
	return ""
}
