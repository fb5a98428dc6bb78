package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tsforge/internal/registry"
)

func TestLoad_RendersPortAndEntry(t *testing.T) {
	src, err := Load(context.Background(), registry.Options{
		Entry:         "src/app.ts",
		AbsoluteEntry: "/work/src/app.ts",
		Config:        map[string]any{"port": float64(8080)},
	})
	require.NoError(t, err)

	assert.Contains(t, src, `import * as app from "/work/src/app.ts";`)
	assert.Contains(t, src, "process.env.PORT ?? 8080")
	assert.Contains(t, src, "src/app.ts must export a default request handler")
}

func TestLoad_DefaultPort(t *testing.T) {
	src, err := Load(context.Background(), registry.Options{AbsoluteEntry: "/e.ts"})
	require.NoError(t, err)
	assert.Contains(t, src, "process.env.PORT ?? 3000")
}

func TestLoad_RejectsNonNumericPort(t *testing.T) {
	_, err := Load(context.Background(), registry.Options{Config: map[string]any{"port": "http"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.port must be a number")
}
