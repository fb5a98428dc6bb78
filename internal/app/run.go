package app

import (
	"context"
	"fmt"
	"maps"

	"github.com/spf13/afero"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/compiler"
	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/notify"
	"github.com/vk/tsforge/internal/supervisor"
)

// Run executes the request's mode. A worker exit code that must become the
// process exit code is returned as *builderr.ExitError.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	req := a.request()
	a.logger.Debug("App.Run method started.", "mode", req.Mode.String(), "entry", req.EntryPath)

	dotenv, err := config.LoadDotEnv(req.WorkDir)
	if err != nil {
		return err
	}
	if len(dotenv) > 0 {
		env := maps.Clone(dotenv)
		maps.Copy(env, req.Env)
		req.Env = env
		a.logger.Debug("Loaded .env file.", "vars", len(dotenv))
	}

	notifier := a.notifier(ctx)
	defer notifier.Close()

	a.logger.Info("🚀 Starting build.", "mode", req.Mode.String(), "entry", req.EntryPath, "output", req.OutputPath)
	switch req.Mode {
	case config.ModeOneShot:
		err = a.runOneShot(ctx, notifier)
	case config.ModeSDKGen:
		err = a.runSDK(ctx, notifier)
	case config.ModeWatch:
		err = a.runWatch(ctx, notifier)
	case config.ModeBinary:
		err = a.runBinary(ctx, notifier, dotenv)
	default:
		err = builderr.Config("run", fmt.Errorf("unsupported mode %v", req.Mode))
	}
	if err != nil {
		return err
	}
	a.logger.Info("🏁 Build finished.")
	return nil
}

// pipeline assembles the compile stages shared by every mode. afterEmit
// stages run after the artifacts are written.
func (a *App) pipeline(clean compiler.BeforeCompileFunc, afterEmit ...compiler.AfterEmitFunc) compiler.Pipeline {
	p := compiler.Pipeline{
		OnAssetsReady: []compiler.AssetsFunc{compiler.ScriptsOnly},
		AfterEmit:     afterEmit,
	}
	if clean != nil {
		p.BeforeCompile = append(p.BeforeCompile, clean)
	}
	return p
}

// cleanStage returns the clean-output stage for the run, or nil. Cleaning
// always targets the real output directory.
func (a *App) cleanStage() compiler.BeforeCompileFunc {
	req := a.request()
	if !req.Clean {
		return nil
	}
	return compiler.CleanOnce(afero.NewOsFs(), req.OutputPath)
}

// compileOnce synthesizes the entry, compiles it once into out and disposes
// the engine.
func (a *App) compileOnce(ctx context.Context, out afero.Fs, pipeline compiler.Pipeline) ([]compiler.Artifact, error) {
	req := a.request()
	mod, err := a.synthesizer().Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	engine, err := compiler.New(ctx, req, mod, compiler.Options{Output: out, Pipeline: pipeline})
	if err != nil {
		return nil, err
	}
	defer engine.Dispose()
	return engine.Compile(ctx)
}

// runOnceStage runs the entry script once after emission and records its
// exit code.
func runOnceStage(sup *supervisor.Supervisor, code *int) compiler.AfterEmitFunc {
	return func(ctx context.Context, emitted []compiler.Artifact) error {
		script, ok := compiler.EntryScript(emitted)
		if !ok {
			return builderr.Compilation("run", fmt.Errorf("no entry script was emitted"))
		}
		c, err := sup.RunOnce(ctx, script)
		*code = c
		return err
	}
}

// notifier connects the configured event sinks. Failing sinks are logged
// and skipped; notifications never fail a build.
func (a *App) notifier(ctx context.Context) notify.Multi {
	req := a.request()
	var sinks notify.Multi
	if req.NotifyURL != "" {
		r, err := notify.DialSocket(ctx, req.NotifyURL)
		if err != nil {
			a.logger.Warn("Notifications disabled: cannot reach notify URL.", "url", req.NotifyURL, "error", err)
		} else {
			sinks = append(sinks, r)
		}
	}
	if req.ReloadAddr != "" {
		hub := notify.NewHub()
		if _, err := hub.Listen(ctx, req.ReloadAddr); err != nil {
			a.logger.Warn("Live-reload hub disabled.", "addr", req.ReloadAddr, "error", err)
		} else {
			sinks = append(sinks, hub)
		}
	}
	return sinks
}
