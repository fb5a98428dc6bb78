package entry

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/tsforge/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

const templateCacheSize = 64

// templateFuncs are the functions available inside preset templates.
var templateFuncs = map[string]function.Function{
	"jsonencode": stdlib.JSONEncodeFunc,
	"lookup":     stdlib.LookupFunc,
	"upper":      stdlib.UpperFunc,
	"lower":      stdlib.LowerFunc,
	"format":     stdlib.FormatFunc,
	"coalesce":   stdlib.CoalesceFunc,
}

// templateCache keeps parsed templates across watch cycles. File templates
// are keyed by path and modification time, so edits invalidate the entry.
type templateCache struct {
	parsed *lru.Cache[string, hclsyntax.Expression]
}

func newTemplateCache() *templateCache {
	c, err := lru.New[string, hclsyntax.Expression](templateCacheSize)
	if err != nil {
		panic(err)
	}
	return &templateCache{parsed: c}
}

func (c *templateCache) parse(key, filename, src string) (hclsyntax.Expression, error) {
	if expr, ok := c.parsed.Get(key); ok {
		return expr, nil
	}
	expr, diags := hclsyntax.ParseTemplate([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	c.parsed.Add(key, expr)
	return expr, nil
}

// render evaluates the template with the build options as variables.
func (c *templateCache) render(r *Resolved, opts registry.Options) (string, error) {
	expr, err := c.parse(r.TemplateKey, r.Origin+"/"+r.Name, r.Template)
	if err != nil {
		return "", fmt.Errorf("parse preset %q: %w", r.Name, err)
	}
	cfg, err := configValue(opts.Config)
	if err != nil {
		return "", fmt.Errorf("convert run config: %w", err)
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"entry":              cty.StringVal(opts.Entry),
			"absoluteEntry":      cty.StringVal(opts.AbsoluteEntry),
			"absoluteOutputPath": cty.StringVal(opts.AbsoluteOutputPath),
			"mode":               cty.StringVal(opts.Mode),
			"config":             cfg,
		},
		Functions: templateFuncs,
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("render preset %q: %w", r.Name, diags)
	}
	if val.IsNull() || !val.IsKnown() {
		return "", fmt.Errorf("preset %q rendered no value", r.Name)
	}
	if !val.Type().Equals(cty.String) {
		return "", fmt.Errorf("preset %q rendered a %s, not a string", r.Name, val.Type().FriendlyName())
	}
	return val.AsString(), nil
}

// configValue converts the merged run configuration into a cty object.
func configValue(cfg map[string]any) (cty.Value, error) {
	if len(cfg) == 0 {
		return cty.EmptyObjectVal, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, ty)
}
