package entry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/registry"
)

func testRegistry() *registry.Registry {
	reg := registry.New()
	reg.RegisterLoader("echo", &registry.RegisteredLoader{
		Fn: func(_ context.Context, opts registry.Options) (string, error) {
			return "import " + `"` + opts.AbsoluteEntry + `";` + "\n// mode=" + opts.Mode, nil
		},
	})
	reg.RegisterLoader("blank", &registry.RegisteredLoader{
		Fn: func(context.Context, registry.Options) (string, error) { return "  \n", nil },
	})
	reg.RegisterPreset("banner", &registry.RegisteredPreset{
		Template: `// ${upper(mode)} ${entry}
import ${jsonencode(absoluteEntry)};
console.log(${jsonencode(lookup(config, "greeting", "hi"))});
`,
	})
	reg.RegisterPreset("object", &registry.RegisteredPreset{Template: `${config}`})
	reg.RegisterPreset("number", &registry.RegisteredPreset{Template: `${config.port}`})
	reg.RegisterPreset("flag", &registry.RegisteredPreset{Template: `${config.debug}`})
	return reg
}

func newRequest(t *testing.T, dir string) *config.Request {
	t.Helper()
	return &config.Request{
		Mode:       config.ModeWatch,
		WorkDir:    dir,
		EntryPath:  filepath.Join(dir, "src", "main.ts"),
		OutputPath: filepath.Join(dir, "dist"),
		EntryName:  "index",
	}
}

func TestSynthesize_NoLoaderReturnsRealEntry(t *testing.T) {
	dir := t.TempDir()
	req := newRequest(t, dir)

	mod, err := New(testRegistry(), dir).Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.EntryPath, mod.Path)
	assert.False(t, mod.Virtual)
	assert.Empty(t, mod.Source)
}

func TestSynthesize_BuiltinLoader(t *testing.T) {
	dir := t.TempDir()
	req := newRequest(t, dir)
	req.LoaderID = "echo"

	syn := New(testRegistry(), dir, WithIDFunc(func() string { return "fixed" }))
	mod, err := syn.Synthesize(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, mod.Virtual)
	assert.Equal(t, "builtin", mod.Origin)
	assert.Equal(t, filepath.Join(dir, "src", VirtualPrefix+"fixed.ts"), mod.Path)
	assert.Contains(t, mod.Source, req.EntryPath)
	assert.Contains(t, mod.Source, "mode=watch")
}

func TestSynthesize_BuiltinPreset(t *testing.T) {
	dir := t.TempDir()
	req := newRequest(t, dir)
	req.PresetID = "banner"
	req.RunConfig = map[string]any{"greeting": "hello"}

	mod, err := New(testRegistry(), dir).Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, mod.Source, "// WATCH src/main.ts")
	assert.Contains(t, mod.Source, `console.log("hello");`)
}

func TestSynthesize_PresetDefaultsWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	req := newRequest(t, dir)
	req.PresetID = "banner"

	mod, err := New(testRegistry(), dir).Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, mod.Source, `console.log("hi");`)
}

func TestSynthesize_ProjectPreset(t *testing.T) {
	dir := t.TempDir()
	presetDir := filepath.Join(dir, ".tsforge", "presets")
	require.NoError(t, os.MkdirAll(presetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(presetDir, "local.tmpl"),
		[]byte(`export * from ${jsonencode(absoluteEntry)};`), 0o644))

	req := newRequest(t, dir)
	req.PresetID = "local"

	mod, err := New(testRegistry(), dir).Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(presetDir, "local.tmpl"), mod.Origin)
	assert.Equal(t, `export * from "`+req.EntryPath+`";`, mod.Source)
}

func TestSynthesize_ScriptLoaderByPath(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "gen.js")
	require.NoError(t, os.WriteFile(script, []byte("console.log('generated');\n"), 0o644))

	req := newRequest(t, dir)
	req.LoaderID = script

	// "cat" prints the script itself, standing in for a runtime.
	runtime := func(context.Context) (string, error) { return "cat", nil }
	mod, err := New(testRegistry(), dir, WithRuntime(runtime)).Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, script, mod.Origin)
	assert.Equal(t, "console.log('generated');\n", mod.Source)
}

func TestSynthesize_ScriptLoaderWithoutRuntime(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "gen.js")
	require.NoError(t, os.WriteFile(script, []byte("x"), 0o644))

	req := newRequest(t, dir)
	req.LoaderID = "gen"

	_, err := New(testRegistry(), dir).Synthesize(context.Background(), req)
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.KindSynthesis))
}

func TestSynthesize_UnresolvableLoader(t *testing.T) {
	dir := t.TempDir()
	req := newRequest(t, dir)
	req.LoaderID = "nope"

	_, err := New(testRegistry(), dir).Synthesize(context.Background(), req)
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.KindResolution))
	assert.Contains(t, err.Error(), `"nope"`)
	assert.True(t, builderr.IsFatal(err))
}

func TestSynthesize_EmptyOrNonStringOutput(t *testing.T) {
	tests := []struct {
		name   string
		loader string
		preset string
	}{
		{"blank loader", "blank", ""},
		{"object preset", "", "object"},
		{"number preset", "", "number"},
		{"bool preset", "", "flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			req := newRequest(t, dir)
			req.LoaderID = tt.loader
			req.PresetID = tt.preset
			req.RunConfig = map[string]any{"k": "v", "port": 8080, "debug": true}

			_, err := New(testRegistry(), dir).Synthesize(context.Background(), req)
			require.Error(t, err)
			assert.True(t, builderr.Is(err, builderr.KindSynthesis))
		})
	}
}

func TestSynthesize_VirtualPathsAreUnique(t *testing.T) {
	dir := t.TempDir()
	req := newRequest(t, dir)
	req.LoaderID = "echo"
	syn := New(testRegistry(), dir)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		mod, err := syn.Synthesize(context.Background(), req)
		require.NoError(t, err)
		require.False(t, seen[mod.Path], "duplicate virtual path %s", mod.Path)
		seen[mod.Path] = true
		assert.True(t, strings.HasPrefix(filepath.Base(mod.Path), VirtualPrefix))
		assert.Equal(t, filepath.Dir(req.EntryPath), filepath.Dir(mod.Path))
	}
}

func TestTemplateCache_ReusesParsedExpression(t *testing.T) {
	c := newTemplateCache()
	r := &Resolved{Kind: KindPreset, Name: "p", Origin: "builtin", Template: `${mode}`, TemplateKey: "k"}

	out, err := c.render(r, registry.Options{Mode: "bundle"})
	require.NoError(t, err)
	assert.Equal(t, "bundle", out)

	// Same key, different text: the cached expression wins.
	r.Template = `changed`
	out, err = c.render(r, registry.Options{Mode: "watch"})
	require.NoError(t, err)
	assert.Equal(t, "watch", out)
	assert.Equal(t, 1, c.parsed.Len())
}
