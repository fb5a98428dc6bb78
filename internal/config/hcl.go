package config

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// HCLLoader reads tsforge.hcl and tsforge.json files. Both syntaxes share one
// schema; attributes outside it are rejected.
type HCLLoader struct{}

// NewHCLLoader creates a new HCL configuration loader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

// hclRoot is the recognized-options schema of a configuration file.
type hclRoot struct {
	Entry       *string   `hcl:"entry,optional"`
	OutputPath  *string   `hcl:"outputPath,optional"`
	WorkDir     *string   `hcl:"workDir,optional"`
	Compiler    *string   `hcl:"compiler,optional"`
	TSProject   *string   `hcl:"tsProject,optional"`
	PackageName *string   `hcl:"packageName,optional"`
	Registry    *string   `hcl:"registry,optional"`
	Runs        []*hclRun `hcl:"run,block"`
}

// hclRun is a run-type override block: run "watch" { port = 3000 }.
type hclRun struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

// Load parses the file at path and translates it into the agnostic File model.
func (l *HCLLoader) Load(ctx context.Context, path string) (*File, error) {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()

	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if filepath.Ext(path) == ".json" {
		file, diags = parser.ParseJSONFile(path)
	} else {
		file, diags = parser.ParseHCLFile(path)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse: %w", diags)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode: %w", diags)
	}

	out := &File{
		Entry:       deref(root.Entry),
		OutputPath:  deref(root.OutputPath),
		WorkDir:     deref(root.WorkDir),
		Compiler:    deref(root.Compiler),
		TSProject:   deref(root.TSProject),
		PackageName: deref(root.PackageName),
		Registry:    deref(root.Registry),
		Run:         make(map[string]map[string]any),
	}

	for _, run := range root.Runs {
		if run.Type != "default" {
			if _, err := ParseMode(run.Type); err != nil {
				return nil, fmt.Errorf("run block %q: %w", run.Type, err)
			}
		}
		if _, dup := out.Run[run.Type]; dup {
			return nil, fmt.Errorf("duplicate run block %q", run.Type)
		}
		values, err := decodeAttributes(run.Body)
		if err != nil {
			return nil, fmt.Errorf("run block %q: %w", run.Type, err)
		}
		out.Run[run.Type] = values
		logger.Debug("Decoded run-type override block.", "type", run.Type, "attributes", len(values))
	}
	return out, nil
}

// decodeAttributes evaluates every attribute of body and converts the cty
// values into plain Go values (string, float64, bool, []any, map[string]any).
func decodeAttributes(body hcl.Body) (map[string]any, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		goVal, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = goVal
	}
	return out, nil
}

// ctyToGo round-trips a cty.Value through its JSON encoding.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	raw, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
