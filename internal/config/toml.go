package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vk/tsforge/internal/ctxlog"
)

// TOMLLoader reads tsforge.toml files.
type TOMLLoader struct{}

// NewTOMLLoader creates a new TOML configuration loader.
func NewTOMLLoader() *TOMLLoader {
	return &TOMLLoader{}
}

type tomlRoot struct {
	Entry       string                    `toml:"entry"`
	OutputPath  string                    `toml:"outputPath"`
	WorkDir     string                    `toml:"workDir"`
	Compiler    string                    `toml:"compiler"`
	TSProject   string                    `toml:"tsProject"`
	PackageName string                    `toml:"packageName"`
	Registry    string                    `toml:"registry"`
	Run         map[string]map[string]any `toml:"run"`
}

// Load decodes the file at path. Keys outside the schema are rejected.
func (l *TOMLLoader) Load(ctx context.Context, path string) (*File, error) {
	var root tomlRoot
	meta, err := toml.DecodeFile(path, &root)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		var keys []string
		for _, k := range undecoded {
			// Keys below [run.<type>] are free-form.
			if len(k) >= 2 && k[0] == "run" {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			return nil, fmt.Errorf("unrecognized options: %s", strings.Join(keys, ", "))
		}
	}

	for name := range root.Run {
		if name == "default" {
			continue
		}
		if _, err := ParseMode(name); err != nil {
			return nil, fmt.Errorf("run table %q: %w", name, err)
		}
	}
	if root.Run == nil {
		root.Run = make(map[string]map[string]any)
	}

	ctxlog.FromContext(ctx).Debug("Decoded TOML configuration.", "runTables", len(root.Run))
	return &File{
		Entry:       root.Entry,
		OutputPath:  root.OutputPath,
		WorkDir:     root.WorkDir,
		Compiler:    root.Compiler,
		TSProject:   root.TSProject,
		PackageName: root.PackageName,
		Registry:    root.Registry,
		Run:         root.Run,
	}, nil
}
