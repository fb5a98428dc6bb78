package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/compiler"
	"github.com/vk/tsforge/internal/ctxlog"
)

// terminateGrace bounds how long RunOnce waits for a cancelled worker to
// report its exit code.
var terminateGrace = 2 * time.Second

// Supervisor launches workers for compiled artifacts.
type Supervisor struct {
	launcher Launcher
	slot     Slot
}

// New creates a supervisor with an empty slot.
func New(launcher Launcher) *Supervisor {
	return &Supervisor{launcher: launcher}
}

// SupervisedOptions tune RunSupervised.
type SupervisedOptions struct {
	// Parallel returns as soon as the worker is launched instead of waiting
	// for it to exit.
	Parallel bool
	// OnStart is called with every newly installed worker.
	OnStart func(Handle)
	// OnBeforeReplace is called with the outgoing worker, which may be nil,
	// before it is asked to terminate.
	OnBeforeReplace func(old Handle)
}

// RunOnce executes the artifact in a new worker and waits for it to exit.
// A non-zero exit is logged as a runtime error and returned as the exit
// code; the error result is reserved for failures to launch.
func (s *Supervisor) RunOnce(ctx context.Context, artifact compiler.Artifact) (int, error) {
	logger := ctxlog.FromContext(ctx).With("artifact", artifact.Name)

	h, err := s.launcher.Launch(ctx, artifact.Bytes)
	if err != nil {
		return 1, builderr.Runtime("launch worker", err)
	}
	logger.Info("▶️ Running bundle.", "workerID", h.ID())

	code, ok := wait(ctx, h)
	if !ok {
		h.Terminate()
		select {
		case <-h.Done():
			code = h.ExitCode()
		case <-time.After(terminateGrace):
			logger.Warn("Worker did not exit after termination was requested.", "workerID", h.ID())
			return 1, nil
		}
	}
	if code != 0 {
		logger.Error("Worker failed.", "error", builderr.Runtime("run", fmt.Errorf("exited with code %d", code)))
		return code, nil
	}
	logger.Info("🏁 Bundle finished.")
	return 0, nil
}

// RunSupervised replaces the live worker with one executing artifact.
// A superseded context is not an error: nothing is launched.
func (s *Supervisor) RunSupervised(ctx context.Context, artifact compiler.Artifact, opts SupervisedOptions) error {
	logger := ctxlog.FromContext(ctx).With("artifact", artifact.Name)

	h, err := s.slot.Replace(ctx, opts.OnBeforeReplace, func(ctx context.Context) (Handle, error) {
		return s.launcher.Launch(ctx, artifact.Bytes)
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("Cycle superseded before launch.")
			return nil
		}
		return builderr.Runtime("launch worker", err)
	}
	logger.Info("🔄 Worker (re)started.", "workerID", h.ID())
	if opts.OnStart != nil {
		opts.OnStart(h)
	}
	if opts.Parallel {
		return nil
	}

	code, ok := wait(ctx, h)
	if !ok {
		return nil
	}
	if code != 0 {
		err := builderr.Runtime("run", fmt.Errorf("worker %s exited with code %d", h.ID(), code))
		logger.Error("Worker failed.", "error", err)
		return err
	}
	logger.Debug("Worker exited cleanly.", "workerID", h.ID())
	return nil
}

// Current returns the live worker, or nil.
func (s *Supervisor) Current() Handle {
	return s.slot.Current()
}

// Terminate requests termination of the live worker without waiting.
func (s *Supervisor) Terminate() {
	s.slot.Terminate()
}
