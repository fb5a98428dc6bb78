package app

import (
	"context"

	"github.com/spf13/afero"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/compiler"
	"github.com/vk/tsforge/internal/notify"
	"github.com/vk/tsforge/internal/supervisor"
)

// runOneShot compiles once to disk and, with Run set, executes the bundle
// once. A non-zero worker exit is forwarded as the process exit code.
func (a *App) runOneShot(ctx context.Context, n notify.Notifier) error {
	req := a.request()
	var stages []compiler.AfterEmitFunc
	code := 0
	if req.Run {
		launcher, err := a.launcher(ctx)
		if err != nil {
			return err
		}
		stages = append(stages, runOnceStage(supervisor.New(launcher), &code))
	}

	artifacts, err := a.compileOnce(ctx, afero.NewOsFs(), a.pipeline(a.cleanStage(), stages...))
	if err != nil {
		n.Notify(ctx, notify.Event{Type: notify.TypeCompileError, Cycle: 1, Error: err.Error()})
		return err
	}
	n.Notify(ctx, notify.Event{Type: notify.TypeCompiled, Cycle: 1, Path: req.BundlePath()})
	a.logger.Debug("One-shot build emitted.", "artifacts", len(artifacts))

	if code != 0 {
		return &builderr.ExitError{Code: code}
	}
	return nil
}

// runSDK compiles the SDK generator to disk and runs it exactly once; the
// process exits with the generator's exit code.
func (a *App) runSDK(ctx context.Context, n notify.Notifier) error {
	launcher, err := a.launcher(ctx)
	if err != nil {
		return err
	}
	code := 0
	stage := runOnceStage(supervisor.New(launcher), &code)
	if _, err := a.compileOnce(ctx, afero.NewOsFs(), a.pipeline(a.cleanStage(), stage)); err != nil {
		n.Notify(ctx, notify.Event{Type: notify.TypeCompileError, Cycle: 1, Error: err.Error()})
		return err
	}
	if code != 0 {
		return &builderr.ExitError{Code: code}
	}
	a.logger.Info("✅ SDK generated.")
	return nil
}
