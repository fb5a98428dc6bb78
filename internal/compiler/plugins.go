package compiler

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/vk/tsforge/internal/entry"
)

// Plugin namespaces and the sentinel path prefix.
const (
	VirtualNamespace  = "tsforge-virtual"
	SentinelNamespace = "tsforge-sentinel"
	SentinelPrefix    = "tsforge:missing-module?"
)

// recursion marks resolve calls issued by our own plugins so their
// OnResolve callbacks step aside.
type recursion struct{}

func isRecursive(data interface{}) bool {
	_, ok := data.(recursion)
	return ok
}

// progressPlugin counts resolve and load callbacks. It never claims a path.
func progressPlugin(p *progress) api.Plugin {
	return api.Plugin{
		Name: "tsforge-progress",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				p.reset()
				return api.OnStartResult{}, nil
			})
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if !isRecursive(args.PluginData) {
					p.onResolve()
				}
				return api.OnResolveResult{}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: ".*"}, func(api.OnLoadArgs) (api.OnLoadResult, error) {
				p.onLoad()
				return api.OnLoadResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) == 0 {
					p.done()
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}

// virtualEntryPlugin serves a synthesized entry module from memory. Imports
// inside it resolve relative to the real entry's directory.
func virtualEntryPlugin(mod *entry.Module) api.Plugin {
	filter := "^" + regexp.QuoteMeta(mod.Path) + "$"
	source := mod.Source
	resolveDir := filepath.Dir(mod.Path)
	return api.Plugin{
		Name: "tsforge-virtual-entry",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: mod.Path, Namespace: VirtualNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: filter, Namespace: VirtualNamespace}, func(api.OnLoadArgs) (api.OnLoadResult, error) {
				return api.OnLoadResult{
					Contents:   &source,
					ResolveDir: resolveDir,
					Loader:     api.LoaderTS,
				}, nil
			})
		},
	}
}

// fallbackPlugin keeps unresolvable imports from failing the compile.
//
// A ".js" request from a TypeScript importer is first retried without its
// extension. Anything still unresolved is redirected to a sentinel module
// that throws "Cannot find module" when evaluated.
func fallbackPlugin(logger *slog.Logger) api.Plugin {
	return api.Plugin{
		Name: "tsforge-resolution-fallback",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if isRecursive(args.PluginData) || args.Kind == api.ResolveEntryPoint || args.Namespace == SentinelNamespace {
					return api.OnResolveResult{}, nil
				}

				res := resolveWith(build, args, args.Path)
				if len(res.Errors) == 0 {
					return resolved(res), nil
				}

				if notFound(res.Errors) && strings.HasSuffix(args.Path, ".js") && isTypeScript(args.Importer) {
					retry := resolveWith(build, args, strings.TrimSuffix(args.Path, ".js"))
					if len(retry.Errors) == 0 {
						logger.Debug("Resolved .js import without its extension.", "request", args.Path, "importer", args.Importer)
						return resolved(retry), nil
					}
				}

				logger.Warn("Unresolved import replaced with a throwing stub.",
					"request", args.Path, "importer", args.Importer, "reason", res.Errors[0].Text)
				return api.OnResolveResult{
					Path:       SentinelPrefix + args.Path,
					Namespace:  SentinelNamespace,
					PluginData: sentinel{Request: args.Path, Importer: args.Importer},
				}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: SentinelNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				s, ok := args.PluginData.(sentinel)
				if !ok {
					s = sentinel{Request: strings.TrimPrefix(args.Path, SentinelPrefix), Importer: "unknown"}
				}
				contents := s.source()
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

type sentinel struct {
	Request  string
	Importer string
}

// source is the body of the sentinel module.
func (s sentinel) source() string {
	msg, _ := json.Marshal("Cannot find module '" + s.Request + "' imported from " + s.Importer)
	return "throw new Error(" + string(msg) + ");\n"
}

func resolveWith(build api.PluginBuild, args api.OnResolveArgs, path string) api.ResolveResult {
	return build.Resolve(path, api.ResolveOptions{
		Importer:   args.Importer,
		Namespace:  args.Namespace,
		ResolveDir: args.ResolveDir,
		Kind:       args.Kind,
		PluginData: recursion{},
	})
}

func resolved(res api.ResolveResult) api.OnResolveResult {
	sideEffects := api.SideEffectsTrue
	if !res.SideEffects {
		sideEffects = api.SideEffectsFalse
	}
	return api.OnResolveResult{
		Path:        res.Path,
		External:    res.External,
		SideEffects: sideEffects,
		Namespace:   res.Namespace,
		Suffix:      res.Suffix,
		PluginData:  res.PluginData,
	}
}

func notFound(msgs []api.Message) bool {
	for _, m := range msgs {
		if strings.Contains(m.Text, "Could not resolve") {
			return true
		}
	}
	return false
}

func isTypeScript(importer string) bool {
	switch filepath.Ext(importer) {
	case ".ts", ".tsx", ".mts", ".cts":
		return true
	}
	return false
}
