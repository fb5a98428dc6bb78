package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/entry"
	"github.com/vk/tsforge/internal/packager"
	"github.com/vk/tsforge/internal/registry"
	"github.com/vk/tsforge/internal/supervisor"
)

var errMissingRequest = errors.New("build request is required")

// App encapsulates the orchestrator's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config

	// cycle counts compile cycles; exposed by the health endpoint.
	cycle atomic.Int64
	sup   atomic.Pointer[supervisor.Supervisor]
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// A registry that fails validation is a programming error and panics.
func NewApp(outW io.Writer, appConfig *Config, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "names", reg.Names())

	if err := reg.Validate(ctx); err != nil {
		panic(err)
	}

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   appConfig,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

func (a *App) request() *config.Request {
	return a.config.Request
}

// runtime resolves the JavaScript runtime for the request.
func (a *App) runtime(context.Context) (string, error) {
	req := a.request()
	return supervisor.ResolveRuntime(req.Compiler, req.WorkDir)
}

func (a *App) synthesizer() *entry.Synthesizer {
	return entry.New(a.registry, a.request().WorkDir, entry.WithRuntime(a.runtime))
}

// launcher returns the injected launcher or a process launcher for the
// resolved runtime.
func (a *App) launcher(ctx context.Context) (supervisor.Launcher, error) {
	if a.config.Launcher != nil {
		return a.config.Launcher, nil
	}
	rt, err := a.runtime(ctx)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Runtime resolved.", "runtime", rt)
	return &supervisor.ProcessLauncher{
		Runtime:    rt,
		Dir:        a.request().WorkDir,
		ScriptPath: a.request().BundlePath(),
		Env:        a.request().Env,
		Stdout:     writerOr(a.config.Stdout, os.Stdout),
		Stderr:     writerOr(a.config.Stderr, os.Stderr),
	}, nil
}

// injectorName is the tool that writes single executable blobs into a
// runtime binary.
const injectorName = "postject"

func (a *App) nativeBuilder() packager.NativeBuilder {
	if a.config.NativeBuilder != nil {
		return a.config.NativeBuilder
	}
	return &packager.SEABuilder{
		CacheDir:    a.config.RuntimeCache,
		HostRuntime: func() (string, error) { return a.runtime(context.Background()) },
		Injector: func() (string, error) {
			return supervisor.ResolveRuntime(injectorName, a.request().WorkDir)
		},
	}
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

func packageName(req *config.Request) string {
	if req.PackageName != "" {
		return req.PackageName
	}
	return req.EntryName
}
