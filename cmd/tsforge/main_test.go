package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/cli"
)

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// The "-h" (help) flag should cause cli.Parse to return shouldExit=true.
	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_OneShotBuild(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.ts"), []byte("export const answer: number = 42;\n"), 0o644))

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"--work-dir", dir, "--log-format", "text", "src/main.ts"})

	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "dist", "index.js"))
	require.Contains(t, out.String(), "Build finished.")
}

func TestRun_ResolutionErrorExitsWithOne(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.ts"), []byte("export {};\n"), 0o644))

	err := run(context.Background(), &bytes.Buffer{}, []string{"--work-dir", dir, "--loader", "missing", "main.ts"})

	require.Error(t, err)
	require.True(t, builderr.Is(err, builderr.KindResolution))
	require.Equal(t, 1, builderr.ExitCode(err))
}

func TestRun_InvalidRequestExitsWithOne(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := run(context.Background(), &bytes.Buffer{}, []string{"--work-dir", dir, "--binary", "main.ts"})

	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr), "expected a cli.ExitError, got %v", err)
	require.Equal(t, 1, exitErr.Code)
	require.Contains(t, exitErr.Message, "binary mode requires at least one target")

	err = run(context.Background(), &bytes.Buffer{}, []string{"--work-dir", dir, "--watch", "--binary", "main.ts"})
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code, "flag misuse keeps exit code 2")
}
