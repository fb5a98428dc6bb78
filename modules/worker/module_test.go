package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tsforge/internal/registry"
)

func TestLoad_EmbedsConfig(t *testing.T) {
	src, err := Load(context.Background(), registry.Options{
		Entry:         "jobs/sync.ts",
		AbsoluteEntry: "/work/jobs/sync.ts",
		Mode:          "sdk",
		Config:        map[string]any{"batch": float64(10)},
	})
	require.NoError(t, err)

	assert.Contains(t, src, `import * as job from "/work/jobs/sync.ts";`)
	assert.Contains(t, src, `const config = {"batch":10};`)
	assert.Contains(t, src, `run(config, { mode: "sdk" })`)
}

func TestModule_Registers(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)
	require.Contains(t, r.Loaders, "worker")
	require.NoError(t, r.Validate(context.Background()))
}
