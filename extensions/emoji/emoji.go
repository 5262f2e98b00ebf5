// Package emoji registers :shortcode: emoji replacement in a goldmark
// pipeline.
package emoji

import (
	"github.com/yuin/goldmark"
	emojiext "github.com/yuin/goldmark-emoji"
)

// Extension returns a goldmark.Extender that rewrites emoji shortcodes
// like :tada: to their unicode entities.
func Extension() goldmark.Extender {
	return emojiext.Emoji
}
