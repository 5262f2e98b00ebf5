// Package highlight wires chroma-based syntax highlighting into a goldmark
// pipeline. It is a thin adapter over yuin/goldmark-highlighting; mdkit
// code configures it through Options instead of touching the underlying
// extension directly.
package highlight

import (
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

type config struct {
	style       string
	lineNumbers bool
}

// Option customizes the highlighting extension.
type Option func(*config)

// WithStyle selects the chroma style name. Default is github-dark.
func WithStyle(name string) Option {
	return func(c *config) { c.style = name }
}

// WithLineNumbers enables line numbers in rendered code blocks.
func WithLineNumbers(enabled bool) Option {
	return func(c *config) { c.lineNumbers = enabled }
}

// Extension returns a goldmark.Extender registering fenced-code-block
// highlighting.
func Extension(opts ...Option) goldmark.Extender {
	cfg := config{style: "github-dark"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return highlighting.NewHighlighting(
		highlighting.WithStyle(cfg.style),
		highlighting.WithFormatOptions(
			chromahtml.WithLineNumbers(cfg.lineNumbers),
			chromahtml.WithClasses(true),
		),
	)
}
