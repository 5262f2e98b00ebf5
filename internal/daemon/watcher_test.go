package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mdkit/internal/events"
)

type watchFixture struct {
	root    string
	watcher *Watcher
	fired   chan string
}

func newWatchFixture(t *testing.T, names ...string) *watchFixture {
	t.Helper()

	reg := testRegistry(t, names...)
	fired := make(chan string, 16)
	deb, err := NewDebouncer(20*time.Millisecond, func(key string) { fired <- key })
	require.NoError(t, err)
	t.Cleanup(deb.Stop)

	w, err := NewWatcher(reg, deb, nil, nil, []string{"dist"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	go w.Run(t.Context())
	<-w.Ready()

	return &watchFixture{root: reg.Root(), watcher: w, fired: fired}
}

func (f *watchFixture) awaitFire(t *testing.T) string {
	t.Helper()
	select {
	case pkg := <-f.fired:
		return pkg
	case <-time.After(3 * time.Second):
		t.Fatal("no debounced trigger fired")
		return ""
	}
}

func (f *watchFixture) requireQuiet(t *testing.T) {
	t.Helper()
	select {
	case pkg := <-f.fired:
		t.Fatalf("unexpected trigger for package %q", pkg)
	case <-time.After(200 * time.Millisecond):
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("# heading\n"), 0o644))
}

func TestWatcherTriggersBuildForChangedFile(t *testing.T) {
	f := newWatchFixture(t, "alpha")

	writeFile(t, filepath.Join(f.root, "alpha", "readme.md"))

	require.Equal(t, "alpha", f.awaitFire(t))
}

func TestWatcherBurstCoalescesIntoOneTrigger(t *testing.T) {
	f := newWatchFixture(t, "alpha")

	for range 5 {
		writeFile(t, filepath.Join(f.root, "alpha", "readme.md"))
	}

	require.Equal(t, "alpha", f.awaitFire(t))
	f.requireQuiet(t)
}

func TestWatcherResolvesPackagePerPath(t *testing.T) {
	f := newWatchFixture(t, "alpha", "beta")

	writeFile(t, filepath.Join(f.root, "beta", "guide.md"))

	require.Equal(t, "beta", f.awaitFire(t))
}

func TestWatcherIgnoresHiddenFiles(t *testing.T) {
	f := newWatchFixture(t, "alpha")

	writeFile(t, filepath.Join(f.root, "alpha", ".swapfile"))
	writeFile(t, filepath.Join(f.root, "alpha", "_draft.md"))

	f.requireQuiet(t)
}

func TestWatcherIgnoresOutputDirectory(t *testing.T) {
	reg := testRegistry(t, "alpha")
	distDir := filepath.Join(reg.Root(), "alpha", "dist")
	require.NoError(t, os.Mkdir(distDir, 0o755))

	fired := make(chan string, 16)
	deb, err := NewDebouncer(20*time.Millisecond, func(key string) { fired <- key })
	require.NoError(t, err)
	t.Cleanup(deb.Stop)

	w, err := NewWatcher(reg, deb, nil, nil, []string{"dist"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	go w.Run(t.Context())
	<-w.Ready()

	// Generated output must not re-trigger the build that wrote it.
	writeFile(t, filepath.Join(distDir, "readme.html"))

	select {
	case pkg := <-fired:
		t.Fatalf("unexpected trigger for package %q", pkg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	f := newWatchFixture(t, "alpha")

	subDir := filepath.Join(f.root, "alpha", "chapters")
	require.NoError(t, os.Mkdir(subDir, 0o755))
	require.Equal(t, "alpha", f.awaitFire(t))

	// Files created inside the new directory must be seen too.
	writeFile(t, filepath.Join(subDir, "one.md"))
	require.Equal(t, "alpha", f.awaitFire(t))
}

func TestWatcherPublishesChangeEvents(t *testing.T) {
	reg := testRegistry(t, "alpha")
	bus := events.NewBus()
	defer bus.Close()
	changes, cancel := events.Subscribe[events.ChangeDetected](bus, 16)
	defer cancel()

	deb, err := NewDebouncer(20*time.Millisecond, func(string) {})
	require.NoError(t, err)
	t.Cleanup(deb.Stop)

	w, err := NewWatcher(reg, deb, bus, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	go w.Run(t.Context())
	<-w.Ready()

	path := filepath.Join(reg.Root(), "alpha", "readme.md")
	writeFile(t, path)

	select {
	case evt := <-changes:
		require.Equal(t, "alpha", evt.Package)
		require.Equal(t, path, evt.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no change event published")
	}
}
