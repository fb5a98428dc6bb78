package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/compiler"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/entry"
	"github.com/vk/tsforge/internal/fsutil"
	"github.com/vk/tsforge/internal/notify"
	"github.com/vk/tsforge/internal/supervisor"
	"github.com/vk/tsforge/internal/vfs"
	"github.com/vk/tsforge/internal/watcher"
)

// session is the state of one watch-mode run. At most one cycle is live:
// starting a cycle cancels the previous one, terminates the current worker
// and cancels the previous compile. A new cycle creates its engine only
// after the previous cycle has disposed of its own.
type session struct {
	app      *App
	notifier notify.Notifier
	sup      *supervisor.Supervisor
	synth    *entry.Synthesizer
	mem      *vfs.FS
	clean    compiler.BeforeCompileFunc
	fatal    chan error

	mu     sync.Mutex
	cancel context.CancelFunc
	engine *compiler.Engine
	last   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// runWatch compiles into memory, supervises the compiled worker and starts
// a fresh cycle for every relevant file change until ctx is done.
func (a *App) runWatch(ctx context.Context, n notify.Notifier) error {
	req := a.request()
	logger := ctxlog.FromContext(ctx)

	launcher, err := a.launcher(ctx)
	if err != nil {
		return err
	}
	rules, err := fsutil.LoadIgnoreRules(req.WorkDir, req.IgnoreFile)
	if err != nil {
		return builderr.Config("load ignore file", err)
	}

	s := &session{
		app:      a,
		notifier: n,
		sup:      supervisor.New(launcher),
		synth:    a.synthesizer(),
		mem:      vfs.New(),
		clean:    a.cleanStage(),
		fatal:    make(chan error, 1),
	}
	a.sup.Store(s.sup)
	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
	}

	defer s.shutdown()
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	s.startCycle(ctx, "initial build")

	w := watcher.New(req.WorkDir, rules, watcher.WithDebounce(req.Debounce))
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- w.Watch(ctx, func(ev watcher.Event) {
			if inside(req.OutputPath, ev.Path) {
				return
			}
			rel := watcher.Rel(req.WorkDir, ev.Path)
			logger.Info("🔄 Change detected, rebuilding.", "path", rel, "kind", ev.Kind.String())
			n.Notify(ctx, notify.Event{Type: notify.TypeChange, Cycle: a.cycle.Load(), Path: rel})
			s.startCycle(ctx, rel)
		})
	}()

	select {
	case <-ctx.Done():
		logger.Debug("Watch session stopping.")
		return nil
	case err := <-s.fatal:
		return err
	case err := <-watchErr:
		if err != nil {
			return builderr.Config("watch", err)
		}
		return nil
	}
}

// startCycle supersedes the live cycle and starts a new one.
func (s *session) startCycle(parent context.Context, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.sup.Terminate()
	if s.engine != nil {
		s.engine.Cancel()
		s.engine = nil
	}
	cycle := s.app.cycle.Add(1)
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	prev, done := s.last, make(chan struct{})
	s.last = done
	s.wg.Add(1)
	s.mu.Unlock()

	ctxlog.FromContext(parent).Debug("Cycle started.", "cycle", cycle, "reason", reason)
	go func() {
		defer s.wg.Done()
		defer close(done)
		s.runCycle(ctx, cycle, prev)
	}()
}

// runCycle waits for the superseded cycle in prev (nil for the first one)
// to finish, then synthesizes, compiles and supervises.
func (s *session) runCycle(ctx context.Context, cycle int64, prev <-chan struct{}) {
	req := s.app.request()
	logger := ctxlog.FromContext(ctx).With("cycle", cycle)
	ctx = ctxlog.WithLogger(ctx, logger)

	// prev closes only after every earlier cycle has returned, because each
	// cycle waits here even when it has itself been superseded.
	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		logger.Debug("Cycle superseded while waiting for the previous one.")
		return
	}

	mod, err := s.synth.Synthesize(ctx, req)
	if err != nil {
		s.fail(ctx, cycle, err)
		return
	}
	engine, err := compiler.New(ctx, req, mod, compiler.Options{
		Output:   s.mem,
		Pipeline: s.app.pipeline(s.clean, s.compiledStage(cycle), s.superviseStage(cycle)),
	})
	if err != nil {
		s.fail(ctx, cycle, err)
		return
	}
	defer engine.Dispose()
	if !s.install(ctx, engine) {
		logger.Debug("Cycle superseded before compile.")
		return
	}
	defer s.release(engine)

	if _, err := engine.Compile(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Debug("Cycle superseded.", "error", err)
			return
		}
		s.fail(ctx, cycle, err)
	}
}

// install records engine as the live compile unless the cycle was
// superseded in the meantime.
func (s *session) install(ctx context.Context, engine *compiler.Engine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.engine = engine
	return true
}

func (s *session) release(engine *compiler.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == engine {
		s.engine = nil
	}
}

func (s *session) compiledStage(cycle int64) compiler.AfterEmitFunc {
	return func(ctx context.Context, emitted []compiler.Artifact) error {
		s.notifier.Notify(ctx, notify.Event{Type: notify.TypeCompiled, Cycle: cycle, Path: s.app.request().BundlePath()})
		return nil
	}
}

func (s *session) superviseStage(cycle int64) compiler.AfterEmitFunc {
	return func(ctx context.Context, emitted []compiler.Artifact) error {
		script, ok := compiler.EntryScript(emitted)
		if !ok {
			return builderr.Compilation("run", errors.New("no entry script was emitted"))
		}
		return s.sup.RunSupervised(ctx, script, supervisor.SupervisedOptions{
			Parallel: s.app.request().Parallel,
			OnStart: func(h supervisor.Handle) {
				s.notifier.Notify(ctx, notify.Event{Type: notify.TypeWorkerStart, Cycle: cycle, Path: h.ID()})
			},
		})
	}
}

// fail reports a cycle error. Recoverable errors keep the session alive;
// anything else ends it.
func (s *session) fail(ctx context.Context, cycle int64, err error) {
	logger := ctxlog.FromContext(ctx)
	if ctx.Err() != nil {
		logger.Debug("Cycle superseded.", "error", err)
		return
	}
	if builderr.IsFatal(err) {
		logger.Error("Fatal error in watch cycle.", "error", err)
		select {
		case s.fatal <- err:
		default:
		}
		return
	}
	if builderr.Is(err, builderr.KindCompilation) {
		logger.Error("❌ Compilation failed.", "error", err)
		s.notifier.Notify(ctx, notify.Event{Type: notify.TypeCompileError, Cycle: cycle, Error: err.Error()})
		return
	}
	logger.Error("Cycle failed.", "error", err)
}

// shutdown cancels the live cycle, terminates the worker and waits for
// cycle goroutines to return.
func (s *session) shutdown() {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.engine != nil {
		s.engine.Cancel()
	}
	s.mu.Unlock()
	s.sup.Terminate()
	s.wg.Wait()
	s.sup.Terminate()
}

func inside(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
