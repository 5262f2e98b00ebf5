package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/mdkit/internal/buildinfo"
	"git.home.luguber.info/inful/mdkit/internal/config"
	"git.home.luguber.info/inful/mdkit/internal/daemon"
	"git.home.luguber.info/inful/mdkit/internal/eventstore"
	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
	"git.home.luguber.info/inful/mdkit/internal/registry"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"mdkit.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Watch struct{} `cmd:"" help:"Build all packages, then watch for changes and rebuild"`

	Build struct {
		Packages []string `arg:"" optional:"" help:"Packages to build (default: all)"`
	} `cmd:"" help:"Build packages once and exit"`

	List struct {
		History int `help:"Show the last N recorded builds per package" default:"0"`
	} `cmd:"" help:"List tracked packages"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	kctx := kong.Parse(&CLI)

	// Logs go to stderr so list output on stdout stays machine-readable.
	slog.SetDefault(newLogger(os.Stderr, CLI.Verbose))

	if kctx.Command() == "init" {
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(ferrors.ExitCodeFor(err))
		}
		slog.Info("Configuration written", "path", CLI.Config)
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "path", CLI.Config, "error", err)
		os.Exit(ferrors.ExitCodeFor(err))
	}

	switch kctx.Command() {
	case "watch":
		err = runWatch(cfg)
	case "build", "build <packages>":
		err = runBuild(cfg, CLI.Build.Packages)
	case "list":
		err = runList(cfg, CLI.List.History)
	}
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(ferrors.ExitCodeFor(err))
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runWatch(cfg *config.Config) error {
	slog.Info("mdkit starting", "revision", buildinfo.Revision("."))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, slog.Default())
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.StopTimeoutDuration())
	defer stopCancel()
	return d.Stop(stopCtx)
}

// runBuild builds the requested packages synchronously, in order, and
// fails on the first broken one.
func runBuild(cfg *config.Config, names []string) error {
	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return err
	}

	pkgs := reg.Packages()
	if len(names) > 0 {
		pkgs = pkgs[:0]
		for _, name := range names {
			pkg, ok := reg.Lookup(name)
			if !ok {
				return ferrors.ValidationError("unknown package").
					WithContext("package", name).
					Build()
			}
			pkgs = append(pkgs, pkg)
		}
	}

	exec := daemon.NewExecutor(cfg, slog.Default())
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, pkg := range pkgs {
		slog.Info("Building package", "package", pkg.Name)
		if err := exec.Build(ctx, pkg); err != nil {
			return err
		}
	}
	slog.Info("All packages built", "count", len(pkgs))
	return nil
}

func runList(cfg *config.Config, history int) error {
	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return err
	}

	var store *eventstore.SQLiteStore
	if history > 0 {
		if cfg.History.Path == "" {
			return ferrors.ConfigError("build history is not configured").
				WithContext("hint", "set history.path in the configuration file").
				Build()
		}
		store, err = eventstore.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	for _, pkg := range reg.Packages() {
		fmt.Printf("%s\t%s\n", pkg.Name, pkg.Dir)
		if store == nil {
			continue
		}
		records, err := store.Recent(context.Background(), pkg.Name, history)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("  %s  %-7s  %-9s  %6dms  %s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Outcome, r.Cause, r.Duration.Milliseconds(), r.JobID)
		}
	}
	return nil
}
