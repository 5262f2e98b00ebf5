// Package anchors registers heading anchor links in a goldmark pipeline.
// Requires parser.WithAutoHeadingID (or explicit heading IDs) to produce
// link targets.
package anchors

import (
	"github.com/yuin/goldmark"
	"go.abhg.dev/goldmark/anchor"
)

type config struct {
	text string
}

// Option customizes the anchor extension.
type Option func(*config)

// WithText sets the visible anchor text. Default is "#".
func WithText(text string) Option {
	return func(c *config) { c.text = text }
}

// Extension returns a goldmark.Extender that appends a self-link after
// every heading.
func Extension(opts ...Option) goldmark.Extender {
	cfg := config{text: "#"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &anchor.Extender{
		Texter:   anchor.Text(cfg.text),
		Position: anchor.After,
	}
}
