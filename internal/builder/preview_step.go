package builder

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/mdkit/internal/logfields"
	"git.home.luguber.info/inful/mdkit/internal/preview"
	"git.home.luguber.info/inful/mdkit/internal/registry"
)

// PreviewStep renders a package's markdown docs after a successful
// compile.
type PreviewStep struct {
	renderer *preview.Renderer
	outDir   string
	logger   *slog.Logger
}

func NewPreviewStep(renderer *preview.Renderer, outDir string, logger *slog.Logger) *PreviewStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreviewStep{renderer: renderer, outDir: outDir, logger: logger}
}

func (s *PreviewStep) Build(ctx context.Context, pkg registry.Package) error {
	stats, err := s.renderer.RenderPackage(ctx, pkg.Dir, s.outDir)
	if err != nil {
		return err
	}
	s.logger.Debug("Preview rendered",
		logfields.Package(pkg.Name),
		slog.Int("rendered", stats.Rendered),
		slog.Int("skipped", stats.Skipped),
		slog.Int("broken_links", stats.BrokenLinks))
	return nil
}
