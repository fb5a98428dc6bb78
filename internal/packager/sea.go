package packager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/vk/tsforge/internal/ctxlog"
)

// SEAFuse is the sentinel fuse that tells a Node binary a single executable
// application blob has been injected.
const SEAFuse = "NODE_SEA_FUSE_fce680ab2cc467b6e072b8b5df1996b2"

// SEAResource names the injected blob.
const SEAResource = "NODE_SEA_BLOB"

const seaBlobName = "sea.blob"

// SEABuilder builds Node single executable applications. The host runtime
// turns the bundle into a preparation blob (--experimental-sea-config) and
// the injector (postject) writes that blob into a copy of the target's base
// runtime. Base binaries are looked up as <CacheDir>/<runtime>-<os>-<arch>,
// plus .exe for Windows; the host target falls back to the host runtime.
//
// Blobs are produced by the host runtime, so cached base binaries must be
// the same Node version.
type SEABuilder struct {
	CacheDir    string
	HostRuntime func() (string, error)
	Injector    func() (string, error)
}

type seaConfig struct {
	Main                          string `json:"main"`
	Output                        string `json:"output"`
	DisableExperimentalSEAWarning bool   `json:"disableExperimentalSEAWarning"`
}

// Build implements NativeBuilder.
func (b *SEABuilder) Build(ctx context.Context, job Job) error {
	logger := ctxlog.FromContext(ctx).With("target", job.Target.String())
	if b.HostRuntime == nil || b.Injector == nil {
		return errors.New("single executable builds need a host runtime and an injector")
	}
	host, err := b.HostRuntime()
	if err != nil {
		return err
	}
	base, err := b.baseBinary(job, host)
	if err != nil {
		return err
	}
	injector, err := b.Injector()
	if err != nil {
		return err
	}
	bundle, err := afero.ReadFile(job.FS, job.BundlePath)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}

	work, err := os.MkdirTemp("", "tsforge-sea-")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(work)

	blob, err := prepareBlob(ctx, host, work, bundle)
	if err != nil {
		return err
	}
	if err := copyFile(job.FS, base, job.OutPath); err != nil {
		return err
	}

	args := []string{job.OutPath, SEAResource, blob, "--sentinel-fuse", SEAFuse}
	if job.Target.OS == "macos" {
		args = append(args, "--macho-segment-name", "NODE_SEA")
	}
	if err := runTool(ctx, work, nil, injector, args...); err != nil {
		return fmt.Errorf("inject blob: %w", err)
	}
	if err := job.FS.Chmod(job.OutPath, 0o755); err != nil {
		return err
	}
	if job.Target.OS == "macos" {
		logger.Warn("macOS executables must be re-signed before they run.", "out", job.OutPath)
	}
	logger.Debug("Single executable written.", "base", base, "out", job.OutPath, "bundleBytes", len(bundle))
	return nil
}

func (b *SEABuilder) baseBinary(job Job, host string) (string, error) {
	name := job.Target.String()
	if job.Target.Executable() {
		name += ".exe"
	}
	cached := filepath.Join(b.CacheDir, name)
	if b.CacheDir != "" {
		if _, err := job.FS.Stat(cached); err == nil {
			return cached, nil
		}
	}
	if job.Target.IsHost() {
		return host, nil
	}
	return "", fmt.Errorf("no base runtime for %s (expected %s)", job.Target, cached)
}

// prepareBlob feeds the bundle to the runtime on stdin, so only the blob
// and its config touch the disk, inside work.
func prepareBlob(ctx context.Context, runtime, work string, bundle []byte) (string, error) {
	blob := filepath.Join(work, seaBlobName)
	cfg, err := json.Marshal(seaConfig{Main: "/dev/stdin", Output: blob, DisableExperimentalSEAWarning: true})
	if err != nil {
		return "", err
	}
	cfgPath := filepath.Join(work, "sea-config.json")
	if err := os.WriteFile(cfgPath, cfg, 0o600); err != nil {
		return "", fmt.Errorf("write sea config: %w", err)
	}
	if err := runTool(ctx, work, bundle, runtime, "--experimental-sea-config", cfgPath); err != nil {
		return "", fmt.Errorf("prepare blob: %w", err)
	}
	if _, err := os.Stat(blob); err != nil {
		return "", fmt.Errorf("prepare blob: %s was not written", blob)
	}
	return blob, nil
}

func runTool(ctx context.Context, dir string, stdin []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open base runtime: %w", err)
	}
	defer in.Close()

	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}
