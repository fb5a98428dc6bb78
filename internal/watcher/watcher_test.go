package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tsforge/internal/fsutil"
	"github.com/vk/tsforge/internal/testutil"
)

func TestTranslate(t *testing.T) {
	root := t.TempDir()
	w := New(root, fsutil.NewIgnoreRules(root, "dist/", "*.tmp"))
	src := filepath.Join(root, "src", "main.ts")

	tests := []struct {
		name string
		ev   fsnotify.Event
		want Event
		ok   bool
	}{
		{"create", fsnotify.Event{Name: src, Op: fsnotify.Create}, Event{src, Add}, true},
		{"write", fsnotify.Event{Name: src, Op: fsnotify.Write}, Event{src, Change}, true},
		{"remove", fsnotify.Event{Name: src, Op: fsnotify.Remove}, Event{src, Unlink}, true},
		{"rename", fsnotify.Event{Name: src, Op: fsnotify.Rename}, Event{src, Unlink}, true},
		{"chmod", fsnotify.Event{Name: src, Op: fsnotify.Chmod}, Event{}, false},
		{"ignored file", fsnotify.Event{Name: filepath.Join(root, "x.tmp"), Op: fsnotify.Write}, Event{}, false},
		{"ignored dir", fsnotify.Event{Name: filepath.Join(root, "dist", "index.js"), Op: fsnotify.Create}, Event{}, false},
		{"git", fsnotify.Event{Name: filepath.Join(root, ".git", "index"), Op: fsnotify.Write}, Event{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := w.translate(tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func startWatcher(t *testing.T, w *Watcher) *recorder {
	t.Helper()
	ctx, _ := testutil.LogContext(t)
	ctx, cancel := context.WithCancel(ctx)
	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, rec.record) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// Give fsnotify time to register the initial directories.
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatch_ReportsChangesAndSkipsIgnored(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"src/main.ts":   "export {};",
		"src/other.ts":  "export {};",
		"dist/index.js": "",
		".gitignore":    "dist/\n",
	})
	rules, err := fsutil.LoadIgnoreRules(root, filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	rec := startWatcher(t, New(root, rules))

	require.NoError(t, os.WriteFile(filepath.Join(root, "dist", "index.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "other.ts"), []byte("export const a = 1;"), 0o644))

	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	for _, ev := range rec.snapshot() {
		assert.Equal(t, filepath.Join(root, "src", "other.ts"), ev.Path)
	}
}

func TestWatch_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	rec := startWatcher(t, New(root, nil))

	nested := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(nested, 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(nested, "a.ts"), []byte("1"), 0o644))

	require.Eventually(t, func() bool {
		for _, ev := range rec.snapshot() {
			if ev.Path == filepath.Join(nested, "a.ts") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDebouncer(t *testing.T) {
	t.Run("disabled forwards every event", func(t *testing.T) {
		rec := &recorder{}
		d := newDebouncer(0, rec.record)
		d.push(Event{Path: "a"})
		d.push(Event{Path: "b"})
		assert.Equal(t, []Event{{Path: "a"}, {Path: "b"}}, rec.snapshot())
	})

	t.Run("coalesces a burst into its last event", func(t *testing.T) {
		rec := &recorder{}
		d := newDebouncer(30*time.Millisecond, rec.record)
		defer d.stop()
		for _, p := range []string{"a", "b", "c"} {
			d.push(Event{Path: p, Kind: Change})
		}
		require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, []Event{{Path: "c", Kind: Change}}, rec.snapshot())
	})

	t.Run("stop drops pending events", func(t *testing.T) {
		rec := &recorder{}
		d := newDebouncer(20*time.Millisecond, rec.record)
		d.push(Event{Path: "a"})
		d.stop()
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, rec.snapshot())
	})
}
