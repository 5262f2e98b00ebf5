package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mdkit/internal/config"
	"git.home.luguber.info/inful/mdkit/internal/events"
)

func testDaemonConfig(t *testing.T, buildCommand string, names ...string) *config.Config {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}

	cfg := config.Default()
	cfg.PackagesRoot = root
	cfg.Build.Command = buildCommand
	cfg.Preview.Disabled = true
	cfg.Watch.QuietWindow = "20ms"
	require.NoError(t, cfg.Validate())
	return cfg
}

func awaitFinished(t *testing.T, ch <-chan events.BuildFinished) events.BuildFinished {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("no build finished")
		return events.BuildFinished{}
	}
}

func stopDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestDaemonInitialBuildThenWatchRebuild(t *testing.T) {
	cfg := testDaemonConfig(t, "true", "alpha")
	d, err := New(cfg, nil)
	require.NoError(t, err)

	finished, cancel := events.Subscribe[events.BuildFinished](d.bus, 16)
	defer cancel()

	require.NoError(t, d.Start(t.Context()))
	defer stopDaemon(t, d)
	<-d.watcher.Ready()

	evt := awaitFinished(t, finished)
	require.Equal(t, "alpha", evt.Package)
	require.Equal(t, "initial", evt.Cause)
	require.Empty(t, evt.Err)

	writeFile(t, filepath.Join(cfg.PackagesRoot, "alpha", "readme.md"))

	evt = awaitFinished(t, finished)
	require.Equal(t, "alpha", evt.Package)
	require.Equal(t, "change", evt.Cause)
}

func TestDaemonInitialBuildCoversEveryPackage(t *testing.T) {
	cfg := testDaemonConfig(t, "true", "alpha", "beta", "gamma")
	d, err := New(cfg, nil)
	require.NoError(t, err)

	finished, cancel := events.Subscribe[events.BuildFinished](d.bus, 16)
	defer cancel()

	require.NoError(t, d.Start(t.Context()))
	defer stopDaemon(t, d)

	built := map[string]bool{}
	for range 3 {
		evt := awaitFinished(t, finished)
		require.Equal(t, "initial", evt.Cause)
		built[evt.Package] = true
	}
	require.Len(t, built, 3)
}

func TestDaemonSurvivesFailingBuilds(t *testing.T) {
	cfg := testDaemonConfig(t, "false", "alpha")
	d, err := New(cfg, nil)
	require.NoError(t, err)

	finished, cancel := events.Subscribe[events.BuildFinished](d.bus, 16)
	defer cancel()

	require.NoError(t, d.Start(t.Context()))
	defer stopDaemon(t, d)
	<-d.watcher.Ready()

	evt := awaitFinished(t, finished)
	require.NotEmpty(t, evt.Err)

	// A failed build leaves the watch loop alive: the next change still
	// triggers a new attempt.
	writeFile(t, filepath.Join(cfg.PackagesRoot, "alpha", "readme.md"))
	evt = awaitFinished(t, finished)
	require.Equal(t, "change", evt.Cause)
	require.NotEmpty(t, evt.Err)
}

func TestDaemonSetupFailsOnMissingPackagesRoot(t *testing.T) {
	cfg := config.Default()
	cfg.PackagesRoot = filepath.Join(t.TempDir(), "does-not-exist")

	_, err := New(cfg, nil)
	require.Error(t, err)
}
