package sdk

import (
	_ "embed"

	"github.com/vk/tsforge/internal/registry"
)

//go:embed entry.tmpl
var entryTemplate string

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the preset with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterPreset("sdk", &registry.RegisteredPreset{
		Description: "SDK codegen bootstrap writing the entry's describe() document",
		Filename:    "sdk/entry.tmpl",
		Template:    entryTemplate,
	})
}
