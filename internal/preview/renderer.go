// Package preview renders package markdown docs to HTML through the full
// mdkit extension pipeline, so a rebuilt plugin package ships an up-to-date
// browsable preview next to its compiled artifacts.
package preview

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/inful/mdfp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/mdkit/extensions/anchors"
	"git.home.luguber.info/inful/mdkit/extensions/emoji"
	"git.home.luguber.info/inful/mdkit/extensions/frontmatter"
	"git.home.luguber.info/inful/mdkit/extensions/highlight"
	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
	"git.home.luguber.info/inful/mdkit/internal/logfields"
)

// Stats summarizes one package render pass.
type Stats struct {
	Rendered int
	Skipped  int
	// BrokenLinks counts relative links in rendered previews whose target
	// does not exist. Broken links are warnings, never build failures.
	BrokenLinks int
}

// Renderer converts markdown files to HTML previews. Renders are skipped
// when the source fingerprint has not changed since the last pass.
type Renderer struct {
	md     goldmark.Markdown
	logger *slog.Logger

	mu           sync.Mutex
	fingerprints map[string]string
}

// NewRenderer assembles the pipeline: GFM plus every mdkit extension.
func NewRenderer(style string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			frontmatter.Extension(),
			emoji.Extension(),
			highlight.Extension(highlight.WithStyle(style)),
			anchors.Extension(),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
		),
	)
	return &Renderer{
		md:           md,
		logger:       logger.With("component", "preview"),
		fingerprints: make(map[string]string),
	}
}

// RenderPackage renders every markdown file under dir into outDir,
// preserving relative layout. outDir is resolved relative to dir and its
// subtree is never treated as a source.
func (r *Renderer) RenderPackage(ctx context.Context, dir, outDir string) (Stats, error) {
	stats := Stats{}
	absOut := filepath.Join(dir, outDir)

	var sources []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == absOut || strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") {
				if path != dir {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return stats, ferrors.WrapError(err, ferrors.CategoryPreview, "walk package sources").
			WithContext("dir", dir).
			Build()
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rendered, broken, err := r.renderFile(src, dir, absOut)
		if err != nil {
			return stats, err
		}
		if rendered {
			stats.Rendered++
		} else {
			stats.Skipped++
		}
		stats.BrokenLinks += broken
	}
	return stats, nil
}

func (r *Renderer) renderFile(src, dir, absOut string) (rendered bool, broken int, err error) {
	content, err := os.ReadFile(src)
	if err != nil {
		return false, 0, ferrors.WrapError(err, ferrors.CategoryPreview, "read markdown source").
			WithContext("path", src).
			Build()
	}

	rel, err := filepath.Rel(dir, src)
	if err != nil {
		return false, 0, ferrors.WrapError(err, ferrors.CategoryPreview, "relativize source path").Build()
	}
	dst := filepath.Join(absOut, strings.TrimSuffix(rel, filepath.Ext(rel))+".html")

	fp := mdfp.CalculateFingerprintFromParts("", string(content))
	r.mu.Lock()
	prev, seen := r.fingerprints[src]
	r.mu.Unlock()
	if seen && prev == fp {
		if _, statErr := os.Stat(dst); statErr == nil {
			return false, 0, nil
		}
	}

	pc := parser.NewContext()
	var buf bytes.Buffer
	if err := r.md.Convert(content, &buf, parser.WithContext(pc)); err != nil {
		return false, 0, ferrors.WrapError(err, ferrors.CategoryPreview, "convert markdown").
			WithContext("path", src).
			Build()
	}

	title := frontmatter.Title(pc)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, 0, ferrors.WrapError(err, ferrors.CategoryPreview, "create preview directory").Build()
	}
	if err := os.WriteFile(dst, wrapDocument(title, buf.Bytes()), 0o644); err != nil {
		return false, 0, ferrors.WrapError(err, ferrors.CategoryPreview, "write preview file").
			WithContext("path", dst).
			Build()
	}

	r.mu.Lock()
	r.fingerprints[src] = fp
	r.mu.Unlock()

	missing, linkErr := CheckLinks(buf.Bytes(), filepath.Dir(src))
	if linkErr != nil {
		r.logger.Warn("Preview link check failed", logfields.Path(src), logfields.Error(linkErr))
	}
	for _, target := range missing {
		r.logger.Warn("Preview links to missing target",
			logfields.Path(src), slog.String("target", target))
	}

	return true, len(missing), nil
}

func wrapDocument(title string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\"/>\n<title>")
	buf.WriteString(htmlEscape(title))
	buf.WriteString("</title>\n</head>\n<body>\n")
	buf.Write(body)
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}

func htmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}
