package app

import (
	"context"

	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/notify"
	"github.com/vk/tsforge/internal/packager"
	"github.com/vk/tsforge/internal/publish"
	"github.com/vk/tsforge/internal/vfs"
)

// runBinary compiles into memory and packages a native executable per
// target. The compiled script never reaches the disk. With a registry set,
// the executables are published afterwards.
func (a *App) runBinary(ctx context.Context, n notify.Notifier, dotenv map[string]string) error {
	req := a.request()
	mem := vfs.New()

	if _, err := a.compileOnce(ctx, mem, a.pipeline(a.cleanStage())); err != nil {
		n.Notify(ctx, notify.Event{Type: notify.TypeCompileError, Cycle: 1, Error: err.Error()})
		return err
	}

	name := packageName(req)
	files, err := packager.New(a.nativeBuilder(), name).Package(ctx, req.BundlePath(), mem, req.BinaryTargets, req.OutputPath)
	if err != nil {
		return err
	}
	for _, f := range files {
		n.Notify(ctx, notify.Event{Type: notify.TypePackaged, Cycle: 1, Path: f})
	}

	if req.Registry == "" {
		return nil
	}
	pub, err := publish.New(req.Registry, config.S3FromEnv(dotenv))
	if err != nil {
		return err
	}
	_, err = pub.Publish(ctx, name, files)
	return err
}
