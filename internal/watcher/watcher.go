// Package watcher reports source changes below a project root.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/fsutil"
)

// Kind is the type of a change.
type Kind int

const (
	Add Kind = iota
	Change
	Unlink
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Change:
		return "change"
	default:
		return "unlink"
	}
}

// Event is a single relevant filesystem change.
type Event struct {
	Path string
	Kind Kind
}

// Watcher watches a directory tree, skipping ignored paths.
type Watcher struct {
	root     string
	rules    *fsutil.IgnoreRules
	debounce time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce coalesces bursts of events: the handler sees only the last
// event of a burst, once d has passed without another one. Zero disables it.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher for root. rules may be nil.
func New(root string, rules *fsutil.IgnoreRules, opts ...Option) *Watcher {
	if rules == nil {
		rules = fsutil.NewIgnoreRules(root)
	}
	w := &Watcher{root: root, rules: rules}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch blocks until ctx is done, calling onChange for every relevant event.
// Calls to onChange are serialized.
func (w *Watcher) Watch(ctx context.Context, onChange func(Event)) error {
	logger := ctxlog.FromContext(ctx).With("component", "watcher", "root", w.root)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	dirs, err := fsutil.FindDirs(w.root, w.skipDir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.root, err)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	logger.Info("👀 Watching for changes.", "directories", len(dirs), "debounce", w.debounce)

	deliver := newDebouncer(w.debounce, onChange)
	defer deliver.stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Watcher stopped.")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				w.addTree(ctx, fsw, ev.Name)
			}
			if change, ok := w.translate(ev); ok {
				logger.Debug("Change detected.", "path", change.Path, "kind", change.Kind)
				deliver.push(change)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error.", "error", err)
		}
	}
}

// translate maps an fsnotify event to an Event. Ignored paths and
// permission-only changes are dropped.
func (w *Watcher) translate(ev fsnotify.Event) (Event, bool) {
	var kind Kind
	switch {
	case ev.Has(fsnotify.Create):
		kind = Add
	case ev.Has(fsnotify.Write):
		kind = Change
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = Unlink
	default:
		return Event{}, false
	}
	if w.rules.MatchFile(ev.Name) {
		return Event{}, false
	}
	return Event{Path: ev.Name, Kind: kind}, true
}

func (w *Watcher) skipDir(path string) bool {
	return w.rules.Match(path, true)
}

// addTree starts watching a newly created directory and its subdirectories.
func (w *Watcher) addTree(ctx context.Context, fsw *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.skipDir(path) {
		return
	}
	dirs, err := fsutil.FindDirs(path, w.skipDir)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to scan new directory.", "path", path, "error", err)
		return
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to watch new directory.", "path", dir, "error", err)
		}
	}
}

// debouncer forwards events to fn, optionally coalescing bursts.
type debouncer struct {
	window time.Duration
	fn     func(Event)

	mu      sync.Mutex
	pending Event
	timer   *time.Timer
	stopped bool
	// calls serializes fn across timer goroutines.
	calls sync.Mutex
}

func newDebouncer(window time.Duration, fn func(Event)) *debouncer {
	return &debouncer{window: window, fn: fn}
}

func (d *debouncer) push(ev Event) {
	if d.window <= 0 {
		d.fn(ev)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = ev
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	ev := d.pending
	d.mu.Unlock()

	d.calls.Lock()
	defer d.calls.Unlock()
	d.fn(ev)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Rel returns path relative to root for display, or path unchanged.
func Rel(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
