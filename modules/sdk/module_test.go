package sdk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tsforge/internal/registry"
)

func TestModule_TemplateParses(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)

	require.Contains(t, r.Presets, "sdk")
	assert.Contains(t, r.Presets["sdk"].Template, "describe()")
	require.NoError(t, r.Validate(context.Background()))
}
