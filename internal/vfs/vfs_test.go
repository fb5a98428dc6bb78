package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_WriteReadFiles(t *testing.T) {
	fsys := New()
	require.NoError(t, fsys.WriteFile("/out/index.js", []byte("console.log(1)")))
	require.NoError(t, fsys.WriteFile("/out/chunks/a.js", []byte("a")))

	data, err := fsys.ReadFile("/out/index.js")
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
	assert.True(t, fsys.Exists("/out/index.js"))
	assert.False(t, fsys.Exists("/out/chunks"))

	files, err := fsys.Files("/out")
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/chunks/a.js", "/out/index.js"}, files)

	require.NoError(t, fsys.Remove("/out/index.js"))
	assert.False(t, fsys.Exists("/out/index.js"))
}

func TestFS_FilesMissingRoot(t *testing.T) {
	files, err := New().Files("/nowhere")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestOverlay_ServesOnlyTargetFromMemory(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "dist")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "README"), []byte("real"), 0o644))

	bundle := filepath.Join(outDir, "index.js")
	mem := New()
	require.NoError(t, mem.WriteFile(bundle, []byte("virtual bundle")))

	ov := NewOverlay(afero.NewOsFs(), mem, bundle)

	info, err := ov.Stat(bundle)
	require.NoError(t, err)
	assert.Equal(t, int64(len("virtual bundle")), info.Size())

	exists, err := afero.Exists(ov, bundle)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := afero.ReadFile(ov, bundle)
	require.NoError(t, err)
	assert.Equal(t, "virtual bundle", string(data))

	readme, err := afero.ReadFile(ov, filepath.Join(outDir, "README"))
	require.NoError(t, err)
	assert.Equal(t, "real", string(readme))

	names, err := afero.ReadDir(ov, outDir)
	require.NoError(t, err)
	var listed []string
	for _, n := range names {
		listed = append(listed, n.Name())
	}
	assert.ElementsMatch(t, []string{"README", "index.js"}, listed)

	_, err = os.Stat(bundle)
	assert.True(t, os.IsNotExist(err), "bundle must never reach the real filesystem")
}

func TestOverlay_WritesPassThrough(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "index.js")
	mem := New()
	require.NoError(t, mem.WriteFile(bundle, []byte("virtual")))

	ov := NewOverlay(afero.NewOsFs(), mem, bundle)
	require.NoError(t, afero.WriteFile(ov, filepath.Join(dir, "app-linux-x64"), []byte("bin"), 0o755))

	_, err := os.Stat(filepath.Join(dir, "app-linux-x64"))
	require.NoError(t, err)
	assert.False(t, mem.Exists(filepath.Join(dir, "app-linux-x64")))
}

func TestOverlay_MissingParentDirFallsBackToMemory(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "not-yet", "index.js")
	mem := New()
	require.NoError(t, mem.WriteFile(bundle, []byte("x")))

	ov := NewOverlay(afero.NewOsFs(), mem, bundle)
	info, err := ov.Stat(filepath.Dir(bundle))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
