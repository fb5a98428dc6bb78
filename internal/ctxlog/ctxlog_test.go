package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AddsFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	ctx := With(WithLogger(context.Background(), logger), "cycle", 3)
	FromContext(ctx).Info("compiled")

	assert.Contains(t, buf.String(), "cycle=3")
	assert.Contains(t, buf.String(), "msg=compiled")
}
