package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/entry"
)

// Options configure an Engine.
type Options struct {
	// Output receives the emitted assets: the VFS or the real filesystem.
	Output   afero.Fs
	Pipeline Pipeline
}

// Engine owns one esbuild build context for one entry module.
type Engine struct {
	req      *config.Request
	module   *entry.Module
	output   afero.Fs
	pipeline Pipeline
	build    api.BuildContext
	progress *progress
	logger   *slog.Logger
}

// New creates the esbuild context for module. Nothing is compiled until
// Compile is called.
func New(ctx context.Context, req *config.Request, module *entry.Module, opts Options) (*Engine, error) {
	if opts.Output == nil {
		return nil, errors.New("compiler: output filesystem is required")
	}
	logger := ctxlog.FromContext(ctx).With("component", "compiler", "entry", module.Path)

	e := &Engine{
		req:      req,
		module:   module,
		output:   opts.Output,
		pipeline: opts.Pipeline,
		logger:   logger,
	}
	e.progress = newProgress(func(pct string) {
		logger.Debug("Compilation progress.", "progress", pct)
	})

	build, ctxErr := api.Context(e.buildOptions())
	if ctxErr != nil {
		return nil, builderr.Compilation("create build context", messagesError(ctxErr.Errors))
	}
	e.build = build
	logger.Debug("Build context created.", "virtual", module.Virtual, "output", req.OutputPath)
	return e, nil
}

func (e *Engine) buildOptions() api.BuildOptions {
	plugins := []api.Plugin{progressPlugin(e.progress)}
	if e.module.Virtual {
		plugins = append(plugins, virtualEntryPlugin(e.module))
	}
	plugins = append(plugins, fallbackPlugin(e.logger))

	return api.BuildOptions{
		AbsWorkingDir: e.req.WorkDir,
		EntryPointsAdvanced: []api.EntryPoint{{
			InputPath:  e.module.Path,
			OutputPath: strings.TrimSuffix(e.req.EntryFilename(), ".js"),
		}},
		Outdir:    e.req.OutputPath,
		Bundle:    true,
		Write:     false,
		Metafile:  true,
		Platform:  api.PlatformNode,
		Format:    api.FormatCommonJS,
		Target:    api.ES2022,
		Sourcemap: sourceMap(e.req.Sourcemap),
		Tsconfig:  e.req.TSProject,
		LogLevel:  api.LogLevelSilent,
		Plugins:   plugins,
	}
}

func sourceMap(mode string) api.SourceMap {
	switch mode {
	case "inline":
		return api.SourceMapInline
	case "external":
		return api.SourceMapExternal
	default:
		return api.SourceMapNone
	}
}

// Compile runs one full pipeline pass and returns the emitted artifacts.
// Bundler errors are returned as CompilationError.
func (e *Engine) Compile(ctx context.Context) ([]Artifact, error) {
	logger := e.logger
	ctx = ctxlog.WithLogger(ctx, logger)

	for _, stage := range e.pipeline.BeforeCompile {
		if err := stage(ctx); err != nil {
			return nil, err
		}
	}

	logger.Debug("Starting esbuild rebuild.")
	result := e.build.Rebuild()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, w := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		logger.Warn("Bundler warning.", "message", strings.TrimSpace(w))
	}
	if len(result.Errors) > 0 {
		return nil, builderr.Compilation("compile", messagesError(result.Errors))
	}

	assets, err := e.artifacts(result)
	if err != nil {
		return nil, builderr.Compilation("collect output", err)
	}
	for _, stage := range e.pipeline.OnAssetsReady {
		if assets, err = stage(ctx, assets); err != nil {
			return nil, err
		}
	}

	if err := emit(e.output, assets); err != nil {
		return nil, builderr.Compilation("emit", err)
	}
	logger.Debug("Assets emitted.", "count", len(assets), "fs", e.output.Name())

	for _, stage := range e.pipeline.AfterEmit {
		if err := stage(ctx, assets); err != nil {
			return assets, err
		}
	}
	return assets, nil
}

func (e *Engine) artifacts(result api.BuildResult) ([]Artifact, error) {
	meta, err := parseMetafile(result.Metafile)
	if err != nil {
		return nil, err
	}
	entries := meta.entryOutputs(e.req.WorkDir)

	out := make([]Artifact, 0, len(result.OutputFiles))
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(e.req.OutputPath, f.Path)
		if err != nil {
			return nil, fmt.Errorf("output %s is outside %s: %w", f.Path, e.req.OutputPath, err)
		}
		out = append(out, Artifact{
			Name:          filepath.ToSlash(rel),
			Path:          f.Path,
			Bytes:         f.Contents,
			IsEntryScript: entries[filepath.Clean(f.Path)],
		})
	}
	if len(entries) == 0 {
		want := filepath.ToSlash(e.req.EntryFilename())
		for i := range out {
			out[i].IsEntryScript = out[i].Name == want
		}
	}
	e.logger.Info("📦 Bundle compiled.", "outputs", len(out), "bytes", meta.inputBytes(), "inputs", len(meta.Inputs))
	return out, nil
}

// Cancel aborts an in-flight compile, if any.
func (e *Engine) Cancel() {
	e.build.Cancel()
}

// Dispose releases the build context. The engine cannot be used afterwards.
func (e *Engine) Dispose() {
	e.build.Dispose()
	e.logger.Debug("Build context disposed.")
}

func messagesError(msgs []api.Message) error {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	errs := make([]error, 0, len(formatted))
	for _, m := range formatted {
		errs = append(errs, errors.New(strings.TrimSpace(m)))
	}
	return errors.Join(errs...)
}
