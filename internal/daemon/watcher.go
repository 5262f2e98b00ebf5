package daemon

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/mdkit/internal/events"
	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
	"git.home.luguber.info/inful/mdkit/internal/logfields"
	"git.home.luguber.info/inful/mdkit/internal/metrics"
	"git.home.luguber.info/inful/mdkit/internal/registry"
)

// Watcher adapts fsnotify events into debounced build triggers: each event
// is resolved to its owning package and scheduled on the per-package
// debouncer. Paths outside every tracked package, hidden path segments and
// generated output directories are dropped silently.
type Watcher struct {
	fs     *fsnotify.Watcher
	reg    *registry.Registry
	deb    *Debouncer
	bus    *events.Bus
	rec    metrics.Recorder
	logger *slog.Logger

	// ignoreDirs are directory names never watched or resolved, such as
	// the preview output root. Keeps generated files from re-triggering
	// the build that produced them.
	ignoreDirs map[string]struct{}

	readyOnce sync.Once
	ready     chan struct{}
}

func NewWatcher(reg *registry.Registry, deb *Debouncer, bus *events.Bus, rec metrics.Recorder, ignoreDirs []string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "create filesystem watcher").Build()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ignore := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = struct{}{}
	}

	w := &Watcher{
		fs:         fsw,
		reg:        reg,
		deb:        deb,
		bus:        bus,
		rec:        rec,
		logger:     logger.With("component", "watcher"),
		ignoreDirs: ignore,
		ready:      make(chan struct{}),
	}

	for _, pkg := range reg.Packages() {
		if err := w.addRecursive(pkg.Dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addRecursive watches dir and every eligible subdirectory. fsnotify does
// not recurse on its own.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryWatch, "walk watch tree").
				WithContext("path", path).
				Build()
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skipDirName(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryWatch, "watch directory").
				WithContext("path", path).
				Build()
		}
		return nil
	})
}

func (w *Watcher) skipDirName(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	_, ignored := w.ignoreDirs[name]
	return ignored
}

// Ready is closed once Run is consuming events. Intended for tests and
// deterministic startup sequencing.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run consumes filesystem events until ctx is canceled or the watcher is
// closed. Event-stream errors are logged, never fatal; the watch loop must
// outlive any individual hiccup.
func (w *Watcher) Run(ctx context.Context) {
	w.readyOnce.Do(func() { close(w.ready) })

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	op, ok := mapOp(event.Op)
	if !ok {
		return
	}
	w.rec.IncWatchEvent(op)

	if w.hasSkippedSegment(event.Name) {
		return
	}

	// New directories must be added to the watch set before their
	// contents start changing.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory",
					logfields.Path(event.Name), logfields.Error(err))
			}
		}
	}

	pkg, ok := w.reg.Resolve(event.Name)
	if !ok {
		w.logger.Debug("Event outside tracked packages", logfields.Path(event.Name))
		return
	}

	w.logger.Debug("Change detected",
		logfields.Package(pkg), logfields.Path(event.Name), logfields.Op(op))
	if w.bus != nil {
		_ = w.bus.Publish(ctx, events.ChangeDetected{
			Package: pkg, Path: event.Name, Op: op, DetectedAt: time.Now(),
		})
	}
	w.deb.Schedule(pkg)
}

// hasSkippedSegment reports whether any path segment below the packages
// root is hidden or ignored.
func (w *Watcher) hasSkippedSegment(path string) bool {
	rel, err := filepath.Rel(w.reg.Root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, segment := range strings.Split(rel, string(filepath.Separator)) {
		if w.skipDirName(segment) {
			return true
		}
	}
	return false
}

// Close shuts the underlying fsnotify watcher down, which also terminates
// a concurrent Run.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func mapOp(op fsnotify.Op) (string, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return "create", true
	case op.Has(fsnotify.Write):
		return "write", true
	case op.Has(fsnotify.Remove):
		return "remove", true
	case op.Has(fsnotify.Rename):
		return "rename", true
	default:
		// Chmod-only events carry no content change.
		return "", false
	}
}
