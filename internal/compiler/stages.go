package compiler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"github.com/vk/tsforge/internal/ctxlog"
)

// BeforeCompileFunc runs before esbuild is invoked.
type BeforeCompileFunc func(ctx context.Context) error

// AssetsFunc receives the compiled assets before emission and returns the
// set to emit.
type AssetsFunc func(ctx context.Context, assets []Artifact) ([]Artifact, error)

// AfterEmitFunc runs once the assets have been written.
type AfterEmitFunc func(ctx context.Context, emitted []Artifact) error

// Pipeline is the ordered set of stages an Engine invokes on every compile.
type Pipeline struct {
	BeforeCompile []BeforeCompileFunc
	OnAssetsReady []AssetsFunc
	AfterEmit     []AfterEmitFunc
}

// ScriptsOnly drops every asset that is not a .js file.
func ScriptsOnly(ctx context.Context, assets []Artifact) ([]Artifact, error) {
	logger := ctxlog.FromContext(ctx)
	kept := assets[:0:0]
	for _, a := range assets {
		if !a.IsScript() {
			logger.Debug("Dropping non-script asset.", "name", a.Name)
			continue
		}
		kept = append(kept, a)
	}
	return kept, nil
}

// CleanOnce returns a stage that empties dir on fsys the first time it runs
// and does nothing afterwards. The same stage value is shared by every engine
// of a run, so rebuilds never clean again.
func CleanOnce(fsys afero.Fs, dir string) BeforeCompileFunc {
	var (
		once sync.Once
		err  error
	)
	return func(ctx context.Context) error {
		once.Do(func() { err = cleanDir(ctx, fsys, dir) })
		return err
	}
}

func cleanDir(ctx context.Context, fsys afero.Fs, dir string) error {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read output directory: %w", err)
	}
	for _, e := range entries {
		if err := fsys.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clean output directory: %w", err)
		}
	}
	ctxlog.FromContext(ctx).Info("🧹 Cleaned output directory.", "path", dir, "removed", len(entries))
	return nil
}

// emit writes the assets below the output directory of fsys.
func emit(fsys afero.Fs, assets []Artifact) error {
	for _, a := range assets {
		if err := fsys.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", a.Name, err)
		}
		if err := afero.WriteFile(fsys, a.Path, a.Bytes, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", a.Name, err)
		}
	}
	return nil
}
