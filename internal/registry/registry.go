package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/tsforge/internal/ctxlog"
)

// Options are the request parameters handed to loaders and presets.
type Options struct {
	// Entry is the entry path as given by the user, relative to the work dir.
	Entry              string         `json:"entry"`
	AbsoluteEntry      string         `json:"absoluteEntry"`
	AbsoluteOutputPath string         `json:"absoluteOutputPath"`
	Mode               string         `json:"mode"`
	Config             map[string]any `json:"config"`
}

// LoaderFunc produces the source text of a synthetic entry module.
type LoaderFunc func(ctx context.Context, opts Options) (string, error)

// RegisteredLoader is a built-in loader function.
type RegisteredLoader struct {
	Description string
	Fn          LoaderFunc
}

// RegisteredPreset is a built-in HCL template.
type RegisteredPreset struct {
	Description string
	// Filename is reported in template diagnostics.
	Filename string
	Template string
}

// Module is the interface that all built-in loader modules implement.
type Module interface {
	Register(r *Registry)
}

// Registry holds all registered loaders and presets for a single
// application instance.
type Registry struct {
	Loaders map[string]*RegisteredLoader
	Presets map[string]*RegisteredPreset
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		Loaders: make(map[string]*RegisteredLoader),
		Presets: make(map[string]*RegisteredPreset),
	}
}

// RegisterLoader registers a Go loader function under name.
func (r *Registry) RegisterLoader(name string, loader *RegisteredLoader) {
	if _, exists := r.Loaders[name]; exists {
		panic(fmt.Sprintf("loader with name '%s' already registered", name))
	}
	slog.Debug("Registering loader.", "name", name)
	r.Loaders[name] = loader
}

// RegisterPreset registers a template under name.
func (r *Registry) RegisterPreset(name string, preset *RegisteredPreset) {
	if _, exists := r.Presets[name]; exists {
		panic(fmt.Sprintf("preset with name '%s' already registered", name))
	}
	slog.Debug("Registering preset.", "name", name)
	r.Presets[name] = preset
}

// Names returns every registered loader and preset name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Loaders)+len(r.Presets))
	for name := range r.Loaders {
		names = append(names, name)
	}
	for name := range r.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every loader has a function, every preset parses as
// an HCL template and no name is shared between a loader and a preset.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	for name, l := range r.Loaders {
		if l == nil || l.Fn == nil {
			errs = append(errs, fmt.Errorf("loader '%s': no function registered", name))
		}
		if _, clash := r.Presets[name]; clash {
			errs = append(errs, fmt.Errorf("'%s' is registered both as loader and preset", name))
		}
	}
	for name, p := range r.Presets {
		if p == nil || p.Template == "" {
			errs = append(errs, fmt.Errorf("preset '%s': empty template", name))
			continue
		}
		filename := p.Filename
		if filename == "" {
			filename = name + ".tmpl"
		}
		if _, diags := hclsyntax.ParseTemplate([]byte(p.Template), filename, hcl.InitialPos); diags.HasErrors() {
			errs = append(errs, fmt.Errorf("preset '%s': %w", name, diags))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed: %w", errors.Join(errs...))
	}
	logger.Debug("Registry validation passed.", "loaders", len(r.Loaders), "presets", len(r.Presets))
	return nil
}
