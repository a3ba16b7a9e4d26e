package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/flowsync/internal/watcher"
)

// collector records handler calls and exposes them on a channel.
type collector struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newCollector() *collector {
	return &collector{ch: make(chan string, 64)}
}

func (c *collector) handle(path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
	c.ch <- path
}

func (c *collector) next(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case p := <-c.ch:
		return p
	case <-time.After(timeout):
		t.Fatal("expected notification but got timeout")
		return ""
	}
}

func (c *collector) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case p := <-c.ch:
		t.Fatalf("unexpected notification for %s", p)
	case <-time.After(wait):
	}
}

func newWatcher(t *testing.T, cfg watcher.Config) *watcher.Watcher {
	t.Helper()
	w, err := watcher.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yml")
	require.NoError(t, os.WriteFile(path, []byte("id: a"), 0o644))

	w := newWatcher(t, watcher.Config{Root: dir, Debounce: 50 * time.Millisecond})
	c := newCollector()
	sub, err := w.Subscribe(c.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	// Rapid writes should coalesce into a single notification
	for i := range 10 {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("id: a%d", i)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Equal(t, path, c.next(t, 2*time.Second))
	c.none(t, 150*time.Millisecond)
}

func TestWatcher_DebounceIsPerPath(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, watcher.Config{Root: dir, Debounce: 50 * time.Millisecond})
	c := newCollector()
	sub, err := w.Subscribe(c.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	a := filepath.Join(dir, "a.yml")
	b := filepath.Join(dir, "b.yml")
	require.NoError(t, os.WriteFile(a, []byte("id: a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("id: b"), 0o644))

	got := []string{c.next(t, 2*time.Second), c.next(t, 2*time.Second)}
	assert.ElementsMatch(t, []string{a, b}, got)
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, watcher.Config{Root: dir, Debounce: 20 * time.Millisecond})
	c := newCollector()
	sub, err := w.Subscribe(c.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.yml"), []byte("x"), 0o644))

	c.none(t, 200*time.Millisecond)
}

func TestWatcher_Recursive(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "team")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	w := newWatcher(t, watcher.Config{Root: dir, Recursive: true, Debounce: 20 * time.Millisecond})
	c := newCollector()
	sub, err := w.Subscribe(c.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	nested := filepath.Join(existing, "flow.yml")
	require.NoError(t, os.WriteFile(nested, []byte("id: n"), 0o644))
	require.Equal(t, nested, c.next(t, 2*time.Second))

	// A directory created after start is picked up too.
	fresh := filepath.Join(dir, "fresh")
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	time.Sleep(100 * time.Millisecond)
	later := filepath.Join(fresh, "later.yaml")
	require.NoError(t, os.WriteFile(later, []byte("id: l"), 0o644))
	require.Equal(t, later, c.next(t, 2*time.Second))
}

func TestWatcher_SymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(target, "team"), 0o755))
	link := filepath.Join(t.TempDir(), "flows")
	require.NoError(t, os.Symlink(target, link))

	w := newWatcher(t, watcher.Config{Root: link, Recursive: true, Debounce: 20 * time.Millisecond})
	c := newCollector()
	sub, err := w.Subscribe(c.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, os.WriteFile(filepath.Join(target, "team", "a.yml"), []byte("id: a"), 0o644))
	require.Equal(t, filepath.Join(link, "team", "a.yml"), c.next(t, 2*time.Second))
}

func TestWatcher_NonRecursiveIgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "team")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	w := newWatcher(t, watcher.Config{Root: dir, Recursive: false, Debounce: 20 * time.Millisecond})
	c := newCollector()
	s, err := w.Subscribe(c.handle)
	require.NoError(t, err)
	defer s.Cancel()

	require.NoError(t, os.WriteFile(filepath.Join(sub, "nested.yml"), []byte("id: n"), 0o644))
	c.none(t, 200*time.Millisecond)

	top := filepath.Join(dir, "top.yml")
	require.NoError(t, os.WriteFile(top, []byte("id: t"), 0o644))
	require.Equal(t, top, c.next(t, 2*time.Second))
}

func TestWatcher_HandlerCallsDoNotOverlap(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, watcher.Config{Root: dir, Debounce: 10 * time.Millisecond})

	var active, maxActive, calls atomic.Int32
	done := make(chan struct{}, 8)
	sub, err := w.Subscribe(func(string) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		calls.Add(1)
		done <- struct{}{}
	})
	require.NoError(t, err)
	defer sub.Cancel()

	for i := range 3 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%d.yml", i)), []byte("id: x"), 0o644))
	}
	for range 3 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for handler")
		}
	}
	require.Equal(t, int32(1), maxActive.Load())
	require.Equal(t, int32(3), calls.Load())
}

func TestSubscription_CancelWaitsForInFlightHandler(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, watcher.Config{Root: dir, Debounce: 10 * time.Millisecond})

	started := make(chan struct{})
	var finished atomic.Bool
	var calls atomic.Int32
	sub, err := w.Subscribe(func(string) {
		if calls.Add(1) == 1 {
			close(started)
		}
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("id: a"), 0o644))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	sub.Cancel()
	require.True(t, finished.Load(), "Cancel must wait for the in-flight handler")

	// Nothing is delivered after Cancel returns.
	before := calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("id: b"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, before, calls.Load())

	// Cancel is idempotent.
	sub.Cancel()
	<-sub.Done()
}

func TestWatcher_SubscribeTwice(t *testing.T) {
	w := newWatcher(t, watcher.Config{Root: t.TempDir()})
	sub, err := w.Subscribe(func(string) {})
	require.NoError(t, err)
	defer sub.Cancel()

	_, err = w.Subscribe(func(string) {})
	require.ErrorIs(t, err, watcher.ErrAlreadySubscribed)
}

func TestWatcher_SubscribeAfterStop(t *testing.T) {
	w, err := watcher.New(watcher.Config{Root: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, err = w.Subscribe(func(string) {})
	require.ErrorIs(t, err, watcher.ErrStopped)
}

func TestNew_RootMustBeDirectory(t *testing.T) {
	_, err := watcher.New(watcher.Config{Root: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.yml")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = watcher.New(watcher.Config{Root: file})
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("flows")
	require.Equal(t, "flows", cfg.Root)
	require.True(t, cfg.Recursive)
	require.Equal(t, []string{".yml", ".yaml"}, cfg.Extensions)
	require.Equal(t, 500*time.Millisecond, cfg.Debounce)
}
