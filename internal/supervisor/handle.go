package supervisor

import "context"

// Handle is a running worker.
type Handle interface {
	ID() string
	// Terminate requests termination and returns immediately.
	Terminate()
	// Done is closed once the worker has exited.
	Done() <-chan struct{}
	// ExitCode is valid after Done is closed.
	ExitCode() int
}

// Launcher starts a worker executing script.
type Launcher interface {
	Launch(ctx context.Context, script []byte) (Handle, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, script []byte) (Handle, error)

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context, script []byte) (Handle, error) {
	return f(ctx, script)
}

// wait blocks until h exits or ctx is done. ok is false if ctx ended first.
func wait(ctx context.Context, h Handle) (code int, ok bool) {
	select {
	case <-h.Done():
		return h.ExitCode(), true
	case <-ctx.Done():
		return 0, false
	}
}
