package app

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/vk/tsforge/internal/notify"
	"github.com/vk/tsforge/internal/packager"
	"github.com/vk/tsforge/internal/supervisor"
	"github.com/vk/tsforge/internal/testutil"
	"github.com/vk/tsforge/internal/vfs"
)

type fakeWorker struct {
	id     string
	script string
	done   chan struct{}
	once   sync.Once
	code   int
}

func (w *fakeWorker) ID() string            { return w.id }
func (w *fakeWorker) Done() <-chan struct{} { return w.done }
func (w *fakeWorker) ExitCode() int         { return w.code }
func (w *fakeWorker) Terminate()            { w.exit(143) }

func (w *fakeWorker) exit(code int) {
	w.once.Do(func() {
		w.code = code
		close(w.done)
	})
}

// fakeLauncher records every launched script. Workers exit immediately with
// exitCode when it is set, otherwise they run until terminated.
type fakeLauncher struct {
	mu       sync.Mutex
	workers  []*fakeWorker
	exitCode *int
}

func (l *fakeLauncher) Launch(_ context.Context, script []byte) (supervisor.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := &fakeWorker{id: fmt.Sprintf("w%d", len(l.workers)+1), script: string(script), done: make(chan struct{})}
	l.workers = append(l.workers, w)
	if l.exitCode != nil {
		w.exit(*l.exitCode)
	}
	return w, nil
}

func (l *fakeLauncher) launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.workers)
}

func (l *fakeLauncher) script(i int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers[i].script
}

func (l *fakeLauncher) live() []*fakeWorker {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*fakeWorker
	for _, w := range l.workers {
		select {
		case <-w.done:
		default:
			out = append(out, w)
		}
	}
	return out
}

func newProject(t *testing.T, mode config.Mode, files map[string]string) (string, *config.Request) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteTree(t, dir, files)
	return dir, &config.Request{
		Mode:       mode,
		WorkDir:    dir,
		EntryPath:  "src/main.ts",
		OutputPath: "dist",
		EntryName:  "index",
	}
}

func newTestApp(t *testing.T, cfg Config) (*App, *testutil.SafeBuffer) {
	t.Helper()
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)
	return SetupAppTest(t, appConfig)
}

func TestNewConfig_RequiresRequest(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.KindConfig))
}

func TestNewApp_RegistersCoreModules(t *testing.T) {
	_, req := newProject(t, config.ModeOneShot, map[string]string{"src/main.ts": "export {};\n"})
	a, logs := newTestApp(t, Config{Request: req})

	assert.Contains(t, a.Registry().Loaders, "server")
	assert.Contains(t, a.Registry().Loaders, "worker")
	assert.Contains(t, a.Registry().Presets, "sdk")
	testutil.AssertLogged(t, logs, "All Go modules registered.")
}

func TestRun_OneShotWritesOnlyTheBundle(t *testing.T) {
	dir, req := newProject(t, config.ModeOneShot, map[string]string{
		"src/main.ts":  "import { greet } from \"./greet\";\nconsole.log(greet(\"x\"));\n",
		"src/greet.ts": "export const greet = (n: string): string => `hi ${n}`;\n",
	})
	req.Sourcemap = "external"
	a, logs := newTestApp(t, Config{Request: req})

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, []string{"index.js"}, testutil.ListFiles(t, filepath.Join(dir, "dist")))
	testutil.AssertLogged(t, logs, "Build finished.")
}

func TestRun_OneShotWithRunForwardsExitCode(t *testing.T) {
	_, req := newProject(t, config.ModeOneShot, map[string]string{"src/main.ts": "process.exit(5);\n"})
	req.Run = true
	code := 5
	launcher := &fakeLauncher{exitCode: &code}
	a, _ := newTestApp(t, Config{Request: req, Launcher: launcher})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 5, builderr.ExitCode(err))
	require.Equal(t, 1, launcher.launched())
	assert.Contains(t, launcher.script(0), "process.exit(5)")
}

func TestRun_OneShotRunsBundleWithNode(t *testing.T) {
	testutil.RequireNode(t)
	dir, req := newProject(t, config.ModeOneShot, map[string]string{
		"src/main.ts": "import { basename } from \"node:path\";\nconsole.log(\"ran \" + basename(__filename));\nprocess.exit(4);\n",
	})
	req.Run = true
	stdout := &testutil.SafeBuffer{}
	a, _ := newTestApp(t, Config{Request: req, Stdout: stdout, Stderr: stdout})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, builderr.ExitCode(err))
	assert.Equal(t, "ran index.js\n", stdout.String())
	assert.Equal(t, []string{"index.js"}, testutil.ListFiles(t, filepath.Join(dir, "dist")))
}

func TestRun_SDKRunsGeneratorOnce(t *testing.T) {
	dir, req := newProject(t, config.ModeSDKGen, map[string]string{
		"src/main.ts": "export const describe = () => ({ openapi: \"3.0.0\" });\n",
	})
	code := 0
	launcher := &fakeLauncher{exitCode: &code}
	a, logs := newTestApp(t, Config{Request: req, Launcher: launcher})

	require.NoError(t, a.Run(context.Background()))

	require.Equal(t, 1, launcher.launched())
	assert.Contains(t, launcher.script(0), "describe")
	assert.Equal(t, []string{"index.js"}, testutil.ListFiles(t, filepath.Join(dir, "dist")))
	testutil.AssertLogged(t, logs, "SDK generated.")
}

func TestRun_SDKForwardsNonZeroExit(t *testing.T) {
	_, req := newProject(t, config.ModeSDKGen, map[string]string{
		"src/main.ts": "export const describe = () => { throw new Error(\"boom\"); };\n",
	})
	code := 3
	a, _ := newTestApp(t, Config{Request: req, Launcher: &fakeLauncher{exitCode: &code}})

	err := a.Run(context.Background())
	var exitErr *builderr.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, builderr.ExitCode(err))
}

func TestRun_UnresolvableLoaderIsFatalBeforeClean(t *testing.T) {
	dir, req := newProject(t, config.ModeOneShot, map[string]string{
		"src/main.ts":    "export {};\n",
		"dist/stale.txt": "old",
	})
	req.LoaderID = "does-not-exist"
	req.Clean = true
	a, _ := newTestApp(t, Config{Request: req})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.KindResolution))
	assert.Equal(t, []string{"stale.txt"}, testutil.ListFiles(t, filepath.Join(dir, "dist")))
}

func recordingBuilder(t *testing.T) packager.NativeBuilder {
	t.Helper()
	return packager.BuilderFunc(func(_ context.Context, job packager.Job) error {
		bundle, err := afero.ReadFile(job.FS, job.BundlePath)
		if err != nil {
			return err
		}
		return afero.WriteFile(job.FS, job.OutPath, append([]byte("BIN:"), bundle...), 0o755)
	})
}

func TestRun_BinaryPackagesEveryTarget(t *testing.T) {
	dir, req := newProject(t, config.ModeBinary, map[string]string{
		"src/main.ts": "console.log(\"native\");\n",
	})
	req.BinaryTargets = []config.Target{
		{Runtime: "node", OS: "linux", Arch: "x64"},
		{Runtime: "node", OS: "win", Arch: "x64"},
	}
	a, _ := newTestApp(t, Config{Request: req, NativeBuilder: recordingBuilder(t)})

	require.NoError(t, a.Run(context.Background()))

	files := testutil.ListFiles(t, filepath.Join(dir, "dist"))
	assert.Equal(t, []string{"index-linux-x64", "index-win-x64.exe"}, files)
	for _, f := range files {
		assert.False(t, strings.HasSuffix(f, ".js"))
	}
	data, err := os.ReadFile(filepath.Join(dir, "dist", "index-linux-x64"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "native")
}

func TestRun_BinaryFailureExitsWithOne(t *testing.T) {
	_, req := newProject(t, config.ModeBinary, map[string]string{"src/main.ts": "export {};\n"})
	req.BinaryTargets = []config.Target{{Runtime: "node", OS: "linux", Arch: "x64"}}
	failing := packager.BuilderFunc(func(context.Context, packager.Job) error {
		return errors.New("no base runtime")
	})
	a, _ := newTestApp(t, Config{Request: req, NativeBuilder: failing})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.KindPackaging))
	assert.Equal(t, 1, builderr.ExitCode(err))
}

func TestRun_WatchRestartsOnChangeAndSkipsIgnored(t *testing.T) {
	dir, req := newProject(t, config.ModeWatch, map[string]string{
		".gitignore":  "tmp/\n",
		"src/main.ts": "console.log(\"version-1\");\n",
		"tmp/.keep":   "",
	})
	req.LoaderID = "server"
	req.Debounce = 50 * time.Millisecond
	launcher := &fakeLauncher{}
	a, logs := newTestApp(t, Config{Request: req, Launcher: launcher})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return launcher.launched() == 1 }, 10*time.Second, 20*time.Millisecond)
	assert.Contains(t, launcher.script(0), "version-1")
	assert.Contains(t, launcher.script(0), "createServer")
	require.Eventually(t, func() bool { return strings.Contains(logs.String(), "Watching for changes.") }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp", "scratch.ts"), []byte("x"), 0o644))
	require.Never(t, func() bool { return launcher.launched() > 1 }, 400*time.Millisecond, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.ts"), []byte("console.log(\"version-2\");\n"), 0o644))
	require.Eventually(t, func() bool {
		live := launcher.live()
		return len(live) == 1 && strings.Contains(live[0].script, "version-2")
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, launcher.launched())
	assert.Len(t, launcher.live(), 1)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch session did not stop")
	}
	assert.Empty(t, launcher.live())
	assert.Nil(t, testutil.ListFiles(t, filepath.Join(dir, "dist")))
	assert.Equal(t, []string{"main.ts"}, testutil.ListFiles(t, filepath.Join(dir, "src")))
}

func TestRun_WatchSurvivesCompileErrors(t *testing.T) {
	dir, req := newProject(t, config.ModeWatch, map[string]string{
		"src/main.ts": "const = ;\n",
	})
	launcher := &fakeLauncher{}
	a, logs := newTestApp(t, Config{Request: req, Launcher: launcher})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(logs.String(), "Compilation failed.") }, 10*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(logs.String(), "Watching for changes.") }, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, launcher.launched())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.ts"), []byte("console.log(\"fixed\");\n"), 0o644))
	require.Eventually(t, func() bool { return len(launcher.live()) == 1 }, 10*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSession_NewCycleWaitsForSupersededCompile(t *testing.T) {
	_, req := newProject(t, config.ModeWatch, map[string]string{
		"src/main.ts": "console.log(\"latest\");\n",
	})
	launcher := &fakeLauncher{}
	a, _ := newTestApp(t, Config{Request: req, Launcher: launcher})

	// The first cycle stalls before esbuild runs until release is closed.
	release := make(chan struct{})
	var compiles atomic.Int32
	s := &session{
		app:      a,
		notifier: notify.Multi{},
		sup:      supervisor.New(launcher),
		synth:    a.synthesizer(),
		mem:      vfs.New(),
		fatal:    make(chan error, 1),
		clean: func(context.Context) error {
			if compiles.Add(1) == 1 {
				<-release
			}
			return nil
		},
	}
	ctx := ctxlog.WithLogger(context.Background(), a.logger)

	s.startCycle(ctx, "first")
	require.Eventually(t, func() bool { return compiles.Load() == 1 }, 10*time.Second, 10*time.Millisecond)

	s.startCycle(ctx, "second")
	require.Never(t, func() bool { return compiles.Load() > 1 || launcher.launched() > 0 }, 300*time.Millisecond, 10*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return launcher.launched() == 1 }, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), compiles.Load())
	assert.Contains(t, launcher.script(0), "latest")

	s.shutdown()
	assert.Empty(t, launcher.live())
}

func TestHealthHandler_ReportsCycleAndWorker(t *testing.T) {
	_, req := newProject(t, config.ModeWatch, map[string]string{"src/main.ts": "export {};\n"})
	a, _ := newTestApp(t, Config{Request: req})

	sup := supervisor.New(&fakeLauncher{})
	a.sup.Store(sup)
	a.cycle.Store(3)

	rec := httptest.NewRecorder()
	a.healthHandler(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"status":"ok","mode":"watch","cycle":3}`, rec.Body.String())
}

func TestInside(t *testing.T) {
	assert.True(t, inside("/w/dist", "/w/dist"))
	assert.True(t, inside("/w/dist", "/w/dist/index.js"))
	assert.False(t, inside("/w/dist", "/w/src/main.ts"))
	assert.False(t, inside("/w/dist", "/w/distance.ts"))
}
