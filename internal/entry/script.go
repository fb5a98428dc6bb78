package entry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/registry"
)

// RuntimeFunc resolves the JavaScript runtime used to execute project-local
// loader scripts.
type RuntimeFunc func(ctx context.Context) (string, error)

// scriptRunner executes loader scripts: the options are written to the
// script's stdin as JSON and its stdout is taken as the generated source.
type scriptRunner struct {
	runtime RuntimeFunc
	dir     string
}

func (s *scriptRunner) loader(path string) registry.LoaderFunc {
	return func(ctx context.Context, opts registry.Options) (string, error) {
		logger := ctxlog.FromContext(ctx).With("loaderScript", path)
		if s.runtime == nil {
			return "", fmt.Errorf("no runtime configured to execute %s", path)
		}
		runtime, err := s.runtime(ctx)
		if err != nil {
			return "", err
		}
		payload, err := json.Marshal(opts)
		if err != nil {
			return "", fmt.Errorf("encode loader options: %w", err)
		}

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, runtime, path)
		cmd.Dir = s.dir
		cmd.Stdin = bytes.NewReader(payload)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		logger.Debug("Running loader script.", "runtime", runtime)
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("loader script %s failed: %w: %s", path, err, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), nil
	}
}
