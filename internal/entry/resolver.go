package entry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/tsforge/internal/registry"
)

// Kind distinguishes loader functions from preset templates.
type Kind int

const (
	KindLoader Kind = iota
	KindPreset
)

func (k Kind) String() string {
	if k == KindPreset {
		return "preset"
	}
	return "loader"
}

// Resolved is a located loader or preset.
type Resolved struct {
	Kind Kind
	Name string
	// Origin describes where it was found, e.g. "builtin" or a file path.
	Origin string

	Fn registry.LoaderFunc

	Template string
	// TemplateKey identifies the template in the parse cache.
	TemplateKey string
}

// Strategy is one step of the resolver chain. It returns (nil, nil) when it
// cannot resolve id, so the next strategy is tried.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, id string, kind Kind) (*Resolved, error)
}

var (
	loaderExts = []string{".js", ".mjs", ".cjs"}
	presetExts = []string{".tmpl"}
)

// builtinStrategy looks the identifier up in the registry.
type builtinStrategy struct {
	reg *registry.Registry
}

func (b *builtinStrategy) Name() string { return "builtin" }

func (b *builtinStrategy) Resolve(_ context.Context, id string, kind Kind) (*Resolved, error) {
	if b.reg == nil {
		return nil, nil
	}
	switch kind {
	case KindLoader:
		if l, ok := b.reg.Loaders[id]; ok {
			return &Resolved{Kind: KindLoader, Name: id, Origin: "builtin", Fn: l.Fn}, nil
		}
	case KindPreset:
		if p, ok := b.reg.Presets[id]; ok {
			filename := p.Filename
			if filename == "" {
				filename = id + ".tmpl"
			}
			return &Resolved{Kind: KindPreset, Name: id, Origin: "builtin", Template: p.Template, TemplateKey: "builtin:" + filename}, nil
		}
	}
	return nil, nil
}

// dirStrategy probes well-known locations below a project directory.
type dirStrategy struct {
	dir     string
	scripts *scriptRunner
}

func (d *dirStrategy) Name() string { return "project" }

func (d *dirStrategy) candidates(id string, kind Kind) []string {
	var out []string
	sub, exts := "loaders", loaderExts
	if kind == KindPreset {
		sub, exts = "presets", presetExts
	}
	for _, ext := range exts {
		out = append(out, filepath.Join(d.dir, ".tsforge", sub, id+ext))
	}
	for _, ext := range exts {
		if filepath.Ext(id) == ext {
			out = append(out, filepath.Join(d.dir, id))
		} else {
			out = append(out, filepath.Join(d.dir, id+ext))
		}
	}
	return out
}

func (d *dirStrategy) Resolve(ctx context.Context, id string, kind Kind) (*Resolved, error) {
	if filepath.IsAbs(id) {
		return nil, nil
	}
	for _, candidate := range d.candidates(id, kind) {
		if r, err := fileResolved(candidate, id, kind, d.scripts); r != nil || err != nil {
			return r, err
		}
	}
	return nil, nil
}

// pathStrategy accepts an explicit path to a loader script or template.
type pathStrategy struct {
	scripts *scriptRunner
}

func (p *pathStrategy) Name() string { return "path" }

func (p *pathStrategy) Resolve(_ context.Context, id string, kind Kind) (*Resolved, error) {
	if !filepath.IsAbs(id) {
		return nil, nil
	}
	return fileResolved(id, id, kind, p.scripts)
}

// fileResolved turns an existing file into a Resolved of the requested kind.
func fileResolved(path, id string, kind Kind, scripts *scriptRunner) (*Resolved, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, nil
	}
	ext := filepath.Ext(path)
	switch kind {
	case KindLoader:
		if !hasExt(loaderExts, ext) {
			return nil, nil
		}
		return &Resolved{Kind: KindLoader, Name: id, Origin: path, Fn: scripts.loader(path)}, nil
	default:
		if !hasExt(presetExts, ext) {
			return nil, nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read preset %s: %w", path, err)
		}
		return &Resolved{
			Kind:        KindPreset,
			Name:        id,
			Origin:      path,
			Template:    string(src),
			TemplateKey: fmt.Sprintf("%s@%d", path, info.ModTime().UnixNano()),
		}, nil
	}
}

func hasExt(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
