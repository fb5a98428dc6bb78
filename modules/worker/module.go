package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/tsforge/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Load generates a bootstrap that calls the entry's exported run function
// (or default export) with the merged run configuration and maps its
// outcome to the process exit code.
func Load(_ context.Context, opts registry.Options) (string, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("worker loader: encode config: %w", err)
	}
	entry, _ := json.Marshal(opts.AbsoluteEntry)
	mode, _ := json.Marshal(opts.Mode)
	missing, _ := json.Marshal(fmt.Sprintf("worker loader: %s must export run() or a default function", opts.Entry))

	var b strings.Builder
	fmt.Fprintf(&b, "import * as job from %s;\n\n", entry)
	fmt.Fprintf(&b, "const config = %s;\n", cfgJSON)
	b.WriteString("const run = (job as any).run ?? (job as any).default;\n")
	b.WriteString("if (typeof run !== \"function\") {\n")
	fmt.Fprintf(&b, "  throw new Error(%s);\n", missing)
	b.WriteString("}\n")
	fmt.Fprintf(&b, "Promise.resolve(run(config, { mode: %s }))\n", mode)
	b.WriteString("  .then((code) => { process.exitCode = typeof code === \"number\" ? code : 0; })\n")
	b.WriteString("  .catch((err) => { console.error(err); process.exitCode = 1; });\n")
	return b.String(), nil
}

// Register registers the loader with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterLoader("worker", &registry.RegisteredLoader{
		Description: "one-shot job runner around the entry's run() export",
		Fn:          Load,
	})
}
