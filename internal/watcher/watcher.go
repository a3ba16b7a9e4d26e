// Package watcher reports debounced create and write notifications for
// workflow definition files under a root directory.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/paths"
)

// ErrAlreadySubscribed is returned when Subscribe is called twice.
var ErrAlreadySubscribed = errors.New("watcher already has a subscriber")

// ErrStopped is returned when subscribing to a stopped watcher.
var ErrStopped = errors.New("watcher stopped")

// Config holds watcher configuration options.
type Config struct {
	Root       string
	Recursive  bool
	Extensions []string
	Debounce   time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(root string) Config {
	return Config{
		Root:       root,
		Recursive:  true,
		Extensions: paths.DefaultExtensions,
		Debounce:   500 * time.Millisecond,
	}
}

// Handler receives the path of a definition file that was created or written.
type Handler func(path string)

// Watcher monitors a definitions root for changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	cfg       Config
	// root is cfg.Root with symlinks resolved; watches and events use it.
	root string

	mu         sync.Mutex
	subscribed bool
	stopped    bool
	done       chan struct{}
}

// Subscription is the cancellation handle returned by Subscribe.
type Subscription struct {
	cancel   chan struct{}
	finished chan struct{}
	once     sync.Once
}

// New creates a watcher and registers the root (and, when recursive, every
// non-hidden subdirectory). A symlinked root is followed; handlers still
// receive paths spelled under cfg.Root.
func New(cfg Config) (*Watcher, error) {
	root, err := paths.ResolveRoot(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch root %s: %w", cfg.Root, err)
	}
	cfg.Extensions = paths.NormalizeExtensions(cfg.Extensions)
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		cfg:       cfg,
		root:      root,
		done:      make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Config returns the effective configuration.
func (w *Watcher) Config() Config {
	return w.cfg
}

// addTree watches dir, and its non-hidden subdirectories when recursive.
func (w *Watcher) addTree(dir string) error {
	if !w.cfg.Recursive {
		if err := w.fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("watching directory %s: %w", dir, err)
		}
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && paths.IsHidden(w.root, path) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		log.Debug(log.CatWatcher, "watching directory", "dir", path)
		return nil
	})
}

// Subscribe starts delivering notifications to handler. Calls are made one
// at a time on a single goroutine, in the order paths became quiet.
func (w *Watcher) Subscribe(handler Handler) (*Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil, ErrStopped
	}
	if w.subscribed {
		return nil, ErrAlreadySubscribed
	}
	w.subscribed = true

	sub := &Subscription{
		cancel:   make(chan struct{}),
		finished: make(chan struct{}),
	}
	ready := make(chan string)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.loop(sub.cancel, ready)
	}()
	go func() {
		defer wg.Done()
		dispatch(sub.cancel, ready, handler)
	}()
	go func() {
		wg.Wait()
		close(sub.finished)
	}()

	return sub, nil
}

// Cancel stops the subscription and blocks until an in-flight handler call
// has returned. No handler call starts after Cancel returns.
func (s *Subscription) Cancel() {
	s.once.Do(func() { close(s.cancel) })
	<-s.finished
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.finished
}

// Stop terminates the watcher and releases resources. An active
// subscription stops delivering, but callers should Cancel it to wait for
// an in-flight handler.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.done)
	w.mu.Unlock()
	return w.fsWatcher.Close()
}

func dispatch(cancel <-chan struct{}, ready <-chan string, handler Handler) {
	for {
		select {
		case <-cancel:
			return
		case path := <-ready:
			// Cancel may have raced the handoff.
			select {
			case <-cancel:
				return
			default:
			}
			handler(path)
		}
	}
}

// loop turns raw events into per-path debounced notifications and hands
// them to the dispatcher without ever blocking on the handler.
func (w *Watcher) loop(cancel <-chan struct{}, ready chan<- string) {
	var (
		pending = map[string]time.Time{}
		queue   []string
		queued  = map[string]bool{}
		timer   = time.NewTimer(time.Hour)
	)
	timer.Stop()
	defer timer.Stop()

	rearm := func() {
		if len(pending) == 0 {
			return
		}
		var next time.Time
		for _, due := range pending {
			if next.IsZero() || due.Before(next) {
				next = due
			}
		}
		timer.Stop()
		timer.Reset(max(time.Until(next), 0))
	}
	enqueue := func(path string) {
		pending[path] = time.Now().Add(w.cfg.Debounce)
		rearm()
	}

	for {
		var (
			out  chan<- string
			head string
		)
		if len(queue) > 0 {
			out = ready
			head = queue[0]
		}

		select {
		case <-cancel:
			return
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			for _, path := range w.relevantPaths(event) {
				enqueue(paths.Rebase(w.root, w.cfg.Root, path))
			}

		case <-timer.C:
			now := time.Now()
			var due []string
			for path, at := range pending {
				if !at.After(now) {
					due = append(due, path)
				}
			}
			sort.Strings(due)
			for _, path := range due {
				delete(pending, path)
				if !queued[path] {
					queued[path] = true
					queue = append(queue, path)
				}
			}
			rearm()

		case out <- head:
			queue = queue[1:]
			delete(queued, head)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "watch error", "error", err.Error())
		}
	}
}

// relevantPaths returns the definition files an event should trigger. A
// directory created under a recursive root is added to the watch set and
// any definition files already inside it are reported.
func (w *Watcher) relevantPaths(event fsnotify.Event) []string {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return nil
	}
	if paths.IsHidden(w.root, event.Name) {
		return nil
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return nil
	}

	if info.IsDir() {
		if !w.cfg.Recursive || event.Op&fsnotify.Create == 0 {
			return nil
		}
		if err := w.addTree(event.Name); err != nil {
			log.Warn(log.CatWatcher, "failed to watch new directory", "dir", event.Name, "error", err.Error())
			return nil
		}
		var found []string
		_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != event.Name && paths.IsHidden(w.root, path) {
					return filepath.SkipDir
				}
				return nil
			}
			if paths.IsDefinition(w.root, path, w.cfg.Extensions) {
				found = append(found, path)
			}
			return nil
		})
		return found
	}

	if !w.inScope(event.Name) || !paths.MatchesExt(event.Name, w.cfg.Extensions) {
		return nil
	}
	return []string{event.Name}
}

// inScope rejects files in subdirectories when not recursive.
func (w *Watcher) inScope(path string) bool {
	if w.cfg.Recursive {
		return true
	}
	return filepath.Clean(filepath.Dir(path)) == w.root
}
