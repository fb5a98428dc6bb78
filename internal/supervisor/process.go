package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/tsforge/internal/ctxlog"
)

// ScriptPathEnv carries the bundle's file name to the worker bootstrap. The
// bootstrap removes it before the program runs.
const ScriptPathEnv = "TSFORGE_SCRIPT_PATH"

// bootstrap reads the script from descriptor 3 and evaluates it as the main
// CommonJS module under the file name in ScriptPathEnv, so require() and
// __dirname behave as if the bundle had been loaded from that path.
const bootstrap = `const fs = require("node:fs");
const path = require("node:path");
const Module = require("node:module");
const filename = path.resolve(process.env.` + ScriptPathEnv + ` || "index.js");
delete process.env.` + ScriptPathEnv + `;
const src = fs.readFileSync(3, "utf8");
fs.closeSync(3);
const m = new Module(filename, null);
m.filename = filename;
m.paths = Module._nodeModulePaths(path.dirname(filename));
process.argv.splice(1, 0, filename);
m._compile(src, filename);
m.loaded = true;
`

// ProcessLauncher runs each script in a new runtime process of its own
// process group. The script is streamed to descriptor 3 of the worker and
// evaluated by a small bootstrap; it is never written to disk.
type ProcessLauncher struct {
	Runtime string
	Dir     string
	// ScriptPath is the file name the worker sees for the script, usually
	// the bundle's output path.
	ScriptPath string
	// Env is added to the parent's environment.
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(ctx context.Context, script []byte) (Handle, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create script pipe: %w", err)
	}

	cmd := exec.Command(l.Runtime, "-e", bootstrap)
	cmd.Dir = l.Dir
	cmd.Env = append(mergeEnv(os.Environ(), l.Env), ScriptPathEnv+"="+l.ScriptPath)
	cmd.Stdout = orDiscard(l.Stdout)
	cmd.Stderr = orDiscard(l.Stderr)
	cmd.ExtraFiles = []*os.File{r}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("start %s: %w", l.Runtime, err)
	}
	r.Close()

	h := &processHandle{
		id:   uuid.NewString(),
		cmd:  cmd,
		done: make(chan struct{}),
	}
	logger := ctxlog.FromContext(ctx).With("workerID", h.id, "pid", cmd.Process.Pid)

	go func() {
		defer w.Close()
		if _, err := w.Write(script); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Debug("Worker stopped reading its script.", "error", err)
		}
	}()
	go func() {
		err := cmd.Wait()
		h.code = cmd.ProcessState.ExitCode()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			logger.Warn("Waiting for worker failed.", "error", err)
		}
		logger.Debug("Worker exited.", "exitCode", h.code)
		close(h.done)
	}()

	logger.Debug("Worker started.", "runtime", l.Runtime)
	return h, nil
}

type processHandle struct {
	id   string
	cmd  *exec.Cmd
	done chan struct{}
	code int

	once sync.Once
}

func (h *processHandle) ID() string { return h.id }

func (h *processHandle) Done() <-chan struct{} { return h.done }

func (h *processHandle) ExitCode() int { return h.code }

// Terminate signals the worker's process group once.
func (h *processHandle) Terminate() {
	h.once.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		terminateProcess(h.cmd)
	})
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := append([]string(nil), base...)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
