package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

const defaultPort = 3000

// Load generates a bootstrap that serves the entry's default export (a
// node:http request listener) on config.port, overridable by $PORT.
func Load(ctx context.Context, opts registry.Options) (string, error) {
	logger := ctxlog.FromContext(ctx).With("loader", "server", "entry", opts.Entry)
	logger.Debug("Loader started")

	port := defaultPort
	switch p := opts.Config["port"].(type) {
	case float64:
		port = int(p)
	case int:
		port = p
	case nil:
	default:
		return "", fmt.Errorf("server loader: config.port must be a number, got %T", p)
	}
	host, _ := opts.Config["host"].(string)

	entry, err := json.Marshal(opts.AbsoluteEntry)
	if err != nil {
		return "", err
	}
	hostLit, _ := json.Marshal(host)
	missing, _ := json.Marshal(fmt.Sprintf("server loader: %s must export a default request handler", opts.Entry))

	var b strings.Builder
	fmt.Fprintf(&b, "import * as app from %s;\n", entry)
	b.WriteString("import { createServer } from \"node:http\";\n\n")
	fmt.Fprintf(&b, "const port = Number(process.env.PORT ?? %d);\n", port)
	fmt.Fprintf(&b, "const host = process.env.HOST ?? (%s || undefined);\n", hostLit)
	b.WriteString("const handler = (app as any).default ?? (app as any).handler;\n")
	b.WriteString("if (typeof handler !== \"function\") {\n")
	fmt.Fprintf(&b, "  throw new Error(%s);\n", missing)
	b.WriteString("}\n")
	b.WriteString("const server = createServer(handler);\n")
	b.WriteString("server.listen(port, host, () => console.log(\"listening on \" + (host ?? \"*\") + \":\" + port));\n")
	b.WriteString("process.on(\"SIGTERM\", () => server.close(() => process.exit(0)));\n")
	return b.String(), nil
}

// Register registers the loader with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterLoader("server", &registry.RegisteredLoader{
		Description: "HTTP server bootstrap around the entry's default request handler",
		Fn:          Load,
	})
}
