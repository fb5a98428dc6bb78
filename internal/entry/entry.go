package entry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/registry"
)

// VirtualPrefix starts the file name of every synthesized entry module.
const VirtualPrefix = ".tsforge-entry-"

// Module is the entry a build starts from.
type Module struct {
	// Path is the real entry path, or the unique virtual path next to it.
	Path string
	// Source holds the synthesized text; empty for real entries.
	Source string
	// Virtual reports whether Path exists only in memory.
	Virtual bool
	// Origin names the loader or preset that produced Source.
	Origin string
}

// Synthesizer produces entry modules for build requests.
type Synthesizer struct {
	strategies []Strategy
	templates  *templateCache
	newID      func() string
}

// Option configures a Synthesizer.
type Option func(*Synthesizer, *scriptRunner)

// WithRuntime sets the runtime used to execute project-local loader scripts.
func WithRuntime(fn RuntimeFunc) Option {
	return func(_ *Synthesizer, s *scriptRunner) { s.runtime = fn }
}

// WithIDFunc replaces the generator of virtual module suffixes.
func WithIDFunc(fn func() string) Option {
	return func(syn *Synthesizer, _ *scriptRunner) { syn.newID = fn }
}

// New builds a synthesizer whose resolver chain is: built-in registry,
// project directory cwd, explicit path.
func New(reg *registry.Registry, cwd string, opts ...Option) *Synthesizer {
	scripts := &scriptRunner{dir: cwd}
	s := &Synthesizer{
		templates: newTemplateCache(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s, scripts)
	}
	s.strategies = []Strategy{
		&builtinStrategy{reg: reg},
		&dirStrategy{dir: cwd, scripts: scripts},
		&pathStrategy{scripts: scripts},
	}
	return s
}

// Resolve walks the resolver chain; the first strategy that resolves id wins.
func (s *Synthesizer) Resolve(ctx context.Context, id string, kind Kind) (*Resolved, error) {
	logger := ctxlog.FromContext(ctx)
	var tried []string
	for _, strategy := range s.strategies {
		r, err := strategy.Resolve(ctx, id, kind)
		if err != nil {
			return nil, builderr.Resolution("resolve "+kind.String(), fmt.Errorf("%s strategy: %w", strategy.Name(), err))
		}
		if r != nil {
			logger.Debug("Resolved entry "+kind.String()+".", "id", id, "strategy", strategy.Name(), "origin", r.Origin)
			return r, nil
		}
		tried = append(tried, strategy.Name())
	}
	return nil, builderr.Resolution("resolve "+kind.String(),
		fmt.Errorf("%s %q not found (tried %s)", kind, id, strings.Join(tried, ", ")))
}

// Synthesize returns the entry module for req. Without a loader or preset
// the real entry is returned verbatim.
func (s *Synthesizer) Synthesize(ctx context.Context, req *config.Request) (*Module, error) {
	id, isPreset := req.LoaderRef()
	if id == "" {
		return &Module{Path: req.EntryPath}, nil
	}
	kind := KindLoader
	if isPreset {
		kind = KindPreset
	}

	resolved, err := s.Resolve(ctx, id, kind)
	if err != nil {
		return nil, err
	}

	opts := registry.Options{
		Entry:              relativeEntry(req),
		AbsoluteEntry:      req.EntryPath,
		AbsoluteOutputPath: req.OutputPath,
		Mode:               req.Mode.String(),
		Config:             req.RunConfig,
	}

	var src string
	switch resolved.Kind {
	case KindLoader:
		if resolved.Fn == nil {
			return nil, builderr.Synthesis("run loader", fmt.Errorf("loader %q has no function", id))
		}
		src, err = resolved.Fn(ctx, opts)
	case KindPreset:
		src, err = s.templates.render(resolved, opts)
	}
	if err != nil {
		return nil, builderr.Synthesis("synthesize entry", err)
	}
	if strings.TrimSpace(src) == "" {
		return nil, builderr.Synthesis("synthesize entry", errors.New(kind.String()+" "+id+" produced empty source"))
	}

	path := filepath.Join(filepath.Dir(req.EntryPath), VirtualPrefix+s.newID()+".ts")
	ctxlog.FromContext(ctx).Debug("Synthesized virtual entry module.", "path", path, "origin", resolved.Origin, "bytes", len(src))
	return &Module{Path: path, Source: src, Virtual: true, Origin: resolved.Origin}, nil
}

func relativeEntry(req *config.Request) string {
	rel, err := filepath.Rel(req.WorkDir, req.EntryPath)
	if err != nil || req.WorkDir == "" {
		return req.EntryPath
	}
	return filepath.ToSlash(rel)
}
