package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/ctxlog"
)

// File is the format-agnostic content of a project configuration file.
// Empty strings mean "not set".
type File struct {
	Entry       string
	OutputPath  string
	WorkDir     string
	Compiler    string
	TSProject   string
	PackageName string
	Registry    string
	// Run maps a run-type name ("bundle", "watch", "binary", "sdk" or
	// "default") to its override block.
	Run map[string]map[string]any

	// Path is the file the configuration was read from.
	Path string
}

// Loader is the interface for a format-specific configuration file loader.
type Loader interface {
	Load(ctx context.Context, path string) (*File, error)
}

// DefaultFileNames are probed in order by FindFile.
var DefaultFileNames = []string{"tsforge.hcl", "tsforge.json", "tsforge.toml"}

// FindFile returns the first default configuration file present in dir, or
// an empty string when there is none.
func FindFile(dir string) string {
	for _, name := range DefaultFileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// LoaderFor selects the loader matching the file extension.
func LoaderFor(path string) (Loader, error) {
	switch filepath.Ext(path) {
	case ".hcl", ".json":
		return NewHCLLoader(), nil
	case ".toml":
		return NewTOMLLoader(), nil
	default:
		return nil, builderr.Newf(builderr.KindConfig, "load config", "unsupported config file format %q", filepath.Ext(path))
	}
}

// LoadFile reads and validates a configuration file of any supported format.
func LoadFile(ctx context.Context, path string) (*File, error) {
	logger := ctxlog.FromContext(ctx)
	loader, err := LoaderFor(path)
	if err != nil {
		return nil, err
	}
	f, err := loader.Load(ctx, path)
	if err != nil {
		return nil, builderr.Config("load config", fmt.Errorf("%s: %w", path, err))
	}
	f.Path = path
	logger.Debug("Configuration file loaded.", "path", path, "runBlocks", len(f.Run))
	return f, nil
}

// RunConfigFor merges the "default" run block with the block of the given mode.
func (f *File) RunConfigFor(mode Mode) map[string]any {
	merged := make(map[string]any)
	if f == nil {
		return merged
	}
	for k, v := range f.Run["default"] {
		merged[k] = v
	}
	for k, v := range f.Run[mode.String()] {
		merged[k] = v
	}
	return merged
}

// ApplyTo fills fields of req that are still empty from the file. Values
// already present on the request (from flags) take precedence.
func (f *File) ApplyTo(req *Request) {
	if f == nil {
		return
	}
	base := filepath.Dir(f.Path)
	set := func(dst *string, v string, isPath bool) {
		if *dst != "" || v == "" {
			return
		}
		if isPath && !filepath.IsAbs(v) && f.Path != "" {
			v = filepath.Join(base, v)
		}
		*dst = v
	}
	// Without a workDir of its own, the file's paths are relative to the
	// file; otherwise Request.Resolve joins them to the work dir.
	ownDir := f.WorkDir == ""
	set(&req.WorkDir, f.WorkDir, true)
	set(&req.EntryPath, f.Entry, ownDir)
	set(&req.OutputPath, f.OutputPath, ownDir)
	set(&req.Compiler, f.Compiler, false)
	set(&req.TSProject, f.TSProject, ownDir)
	set(&req.PackageName, f.PackageName, false)
	set(&req.Registry, f.Registry, false)

	cfg := f.RunConfigFor(req.Mode)
	for k, v := range req.RunConfig {
		cfg[k] = v
	}
	req.RunConfig = cfg
}
