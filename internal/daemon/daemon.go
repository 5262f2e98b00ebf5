// Package daemon implements the mdkit watch mode: an initial build of
// every package, then filesystem-event-driven rebuilds with per-package
// debouncing and at-most-one-concurrent-build scheduling.
package daemon

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/mdkit/internal/builder"
	"git.home.luguber.info/inful/mdkit/internal/config"
	"git.home.luguber.info/inful/mdkit/internal/events"
	"git.home.luguber.info/inful/mdkit/internal/eventstore"
	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
	"git.home.luguber.info/inful/mdkit/internal/logfields"
	"git.home.luguber.info/inful/mdkit/internal/metrics"
	"git.home.luguber.info/inful/mdkit/internal/notify"
	"git.home.luguber.info/inful/mdkit/internal/preview"
	"git.home.luguber.info/inful/mdkit/internal/registry"
)

// Daemon owns the watch-mode lifecycle. It is constructed once at process
// start and torn down on the shutdown signal; none of its coordination
// state leaks out.
type Daemon struct {
	cfg    *config.Config
	reg    *registry.Registry
	bus    *events.Bus
	rec    metrics.Recorder
	store  *eventstore.SQLiteStore
	sched  *BuildScheduler
	logger *slog.Logger

	promReg    *prom.Registry
	deb        *Debouncer
	watcher    *Watcher
	periodic   *PeriodicRebuild
	notifier   *notify.Publisher
	metricsSrv *http.Server
}

// New wires everything that does not depend on the run context. Any error
// here is a setup failure: the process must exit non-zero.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()

	var rec metrics.Recorder = metrics.NoopRecorder{}
	var promReg *prom.Registry
	if cfg.Metrics.Enabled {
		promReg = prom.NewRegistry()
		rec = metrics.NewPrometheusRecorder(promReg)
	}

	var store *eventstore.SQLiteStore
	if cfg.History.Path != "" {
		if dir := filepath.Dir(cfg.History.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "create history directory").
					WithContext("path", dir).
					Build()
			}
		}
		store, err = eventstore.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, err
		}
	}

	var notifier *notify.Publisher
	if cfg.Notify.URL != "" {
		notifier, err = notify.NewPublisher(cfg.Notify.URL, cfg.Notify.Subject, logger)
		if err != nil {
			return nil, err
		}
	}

	exec := NewExecutor(cfg, logger)
	var storeIface eventstore.Store
	if store != nil {
		storeIface = store
	}
	sched := NewBuildScheduler(exec, reg, bus, rec, storeIface, logger)

	return &Daemon{
		cfg:      cfg,
		reg:      reg,
		bus:      bus,
		rec:      rec,
		store:    store,
		sched:    sched,
		logger:   logger,
		promReg:  promReg,
		notifier: notifier,
	}, nil
}

// NewExecutor assembles the build pipeline from configuration: the opaque
// compile command, then preview rendering unless disabled.
func NewExecutor(cfg *config.Config, logger *slog.Logger) builder.Executor {
	steps := []builder.Executor{builder.NewCommandExecutor(cfg.Build.Command, logger)}
	if !cfg.Preview.Disabled {
		renderer := preview.NewRenderer(cfg.Preview.Style, logger)
		steps = append(steps, builder.NewPreviewStep(renderer, cfg.Preview.Dir, logger))
	}
	return builder.NewPipeline(steps...)
}

// Registry exposes the package registry (for the CLI surface).
func (d *Daemon) Registry() *registry.Registry { return d.reg }

// Scheduler exposes the build scheduler (for tests and the CLI surface).
func (d *Daemon) Scheduler() *BuildScheduler { return d.sched }

// Start performs the initial build pass and brings the watch loop up.
// Errors are setup failures; once Start returns nil the daemon runs until
// ctx is canceled and only per-build failures can occur, all contained.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("Starting watch mode",
		slog.Int("packages", len(d.reg.Packages())),
		slog.String("quiet_window", d.cfg.Watch.QuietWindow))

	if d.notifier != nil {
		go d.notifier.Run(ctx, d.bus)
	}

	if d.cfg.Metrics.Enabled {
		if err := d.startMetrics(); err != nil {
			return err
		}
	}

	// Initial build pass: one request per package, in registry order.
	// Watch events arriving meanwhile just flow through the same state
	// machine.
	for _, pkg := range d.reg.Packages() {
		d.sched.Request(ctx, pkg.Name, "initial")
	}

	deb, err := NewDebouncer(d.cfg.QuietWindowDuration(), func(pkg string) {
		d.sched.Request(ctx, pkg, "change")
	})
	if err != nil {
		return err
	}
	d.deb = deb

	watcher, err := NewWatcher(d.reg, deb, d.bus, d.rec, d.ignoreDirs(), d.logger)
	if err != nil {
		return err
	}
	d.watcher = watcher
	go watcher.Run(ctx)

	if interval := d.cfg.RebuildIntervalDuration(); interval > 0 {
		periodic, err := NewPeriodicRebuild(interval, func() {
			for _, pkg := range d.reg.Packages() {
				d.sched.Request(ctx, pkg.Name, "scheduled")
			}
		}, d.logger)
		if err != nil {
			return err
		}
		d.periodic = periodic
		periodic.Start()
	}

	return nil
}

// ignoreDirs lists directory names the watcher must not react to. The
// preview output root would otherwise re-trigger the build that wrote it.
func (d *Daemon) ignoreDirs() []string {
	first := filepath.ToSlash(d.cfg.Preview.Dir)
	if i := strings.IndexRune(first, '/'); i >= 0 {
		first = first[:i]
	}
	if first == "" {
		return nil
	}
	return []string{first}
}

func (d *Daemon) startMetrics() error {
	ln, err := net.Listen("tcp", d.cfg.Metrics.Listen)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "listen on metrics address").
			WithContext("listen", d.cfg.Metrics.Listen).
			Build()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(d.promReg))
	d.metricsSrv = &http.Server{Handler: mux}

	d.logger.Info("Metrics endpoint listening", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := d.metricsSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			d.logger.Error("Metrics server stopped", logfields.Error(err))
		}
	}()
	return nil
}

// Stop tears the daemon down: no new triggers, then wait for in-flight
// builds until ctx expires.
func (d *Daemon) Stop(ctx context.Context) error {
	d.logger.Info("Stopping watch mode")

	if d.periodic != nil {
		if err := d.periodic.Stop(); err != nil {
			d.logger.Warn("Failed to stop periodic rebuild", logfields.Error(err))
		}
	}
	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.logger.Warn("Failed to close watcher", logfields.Error(err))
		}
	}
	if d.deb != nil {
		d.deb.Stop()
	}

	if err := d.sched.Drain(ctx); err != nil {
		d.logger.Warn("Timed out waiting for in-flight builds", logfields.Error(err))
	}

	if d.metricsSrv != nil {
		if err := d.metricsSrv.Shutdown(ctx); err != nil {
			d.logger.Warn("Failed to shut metrics server down", logfields.Error(err))
		}
	}
	if d.notifier != nil {
		d.notifier.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("Failed to close history store", logfields.Error(err))
		}
	}
	d.bus.Close()

	d.logger.Info("Watch mode stopped")
	return nil
}
