// Package packager turns the in-memory bundle into standalone native
// executables. The bundle is read through an overlay so it never has to
// exist on the real filesystem.
package packager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/vfs"
	"golang.org/x/sync/errgroup"
)

// Job describes one native executable to produce.
type Job struct {
	Target config.Target
	// FS resolves BundlePath from memory and everything else from disk.
	FS         afero.Fs
	BundlePath string
	OutPath    string
}

// NativeBuilder produces one executable per job.
type NativeBuilder interface {
	Build(ctx context.Context, job Job) error
}

// BuilderFunc adapts a function to the NativeBuilder interface.
type BuilderFunc func(ctx context.Context, job Job) error

// Build implements NativeBuilder.
func (f BuilderFunc) Build(ctx context.Context, job Job) error { return f(ctx, job) }

// Packager fans a bundle out to every requested target.
type Packager struct {
	builder NativeBuilder
	name    string
	disk    afero.Fs
}

// New creates a packager naming its outputs after name.
func New(builder NativeBuilder, name string) *Packager {
	return &Packager{builder: builder, name: name, disk: afero.NewOsFs()}
}

// BinaryName is the file name of the executable for t.
func BinaryName(name string, t config.Target) string {
	out := fmt.Sprintf("%s-%s-%s", name, t.OS, t.Arch)
	if t.Executable() {
		out += ".exe"
	}
	return out
}

// Package builds an executable for every target from the bundle held in mem
// at bundlePath and writes them below outputPath. On success the bundle is
// removed from mem. Any failure is a PackagingError.
func (p *Packager) Package(ctx context.Context, bundlePath string, mem *vfs.FS, targets []config.Target, outputPath string) ([]string, error) {
	logger := ctxlog.FromContext(ctx).With("component", "packager", "bundle", bundlePath)

	if !mem.Exists(bundlePath) {
		return nil, builderr.Packaging("package", fmt.Errorf("bundle %s was not produced", bundlePath))
	}
	if len(targets) == 0 {
		return nil, builderr.Packaging("package", errors.New("no targets"))
	}
	if err := p.disk.MkdirAll(outputPath, 0o755); err != nil {
		return nil, builderr.Packaging("create output directory", err)
	}
	overlay := vfs.NewOverlay(p.disk, mem, bundlePath)

	outputs := make([]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		job := Job{
			Target:     target,
			FS:         overlay,
			BundlePath: bundlePath,
			OutPath:    filepath.Join(outputPath, BinaryName(p.name, target)),
		}
		g.Go(func() error {
			logger.Debug("Building native executable.", "target", target.String(), "out", job.OutPath)
			if err := p.builder.Build(gctx, job); err != nil {
				return fmt.Errorf("target %s: %w", target, err)
			}
			outputs[i] = job.OutPath
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, builderr.Packaging("package", err)
	}

	if err := mem.Remove(bundlePath); err != nil {
		return nil, builderr.Packaging("release bundle", err)
	}
	logger.Info("✅ Native executables written.", "count", len(outputs), "outputPath", outputPath)
	return outputs, nil
}
