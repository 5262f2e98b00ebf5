// Package builder performs the per-package build step: an opaque,
// potentially slow, possibly failing operation. The scheduler only relies
// on the Executor contract; what a build actually does is configured here.
package builder

import (
	"context"

	"git.home.luguber.info/inful/mdkit/internal/registry"
)

// Executor builds one package. Implementations must tolerate concurrent
// calls for different packages; the scheduler guarantees a package is
// never built twice concurrently.
type Executor interface {
	Build(ctx context.Context, pkg registry.Package) error
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, pkg registry.Package) error

func (f Func) Build(ctx context.Context, pkg registry.Package) error {
	return f(ctx, pkg)
}

// Pipeline runs executors in order and stops at the first failure.
type Pipeline struct {
	steps []Executor
}

func NewPipeline(steps ...Executor) *Pipeline {
	return &Pipeline{steps: steps}
}

func (p *Pipeline) Build(ctx context.Context, pkg registry.Package) error {
	for _, step := range p.steps {
		if err := step.Build(ctx, pkg); err != nil {
			return err
		}
	}
	return nil
}
