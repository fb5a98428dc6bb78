package notify

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/tsforge/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketEvent is the socket.io event name cycle events are emitted under.
const SocketEvent = "tsforge:cycle"

const socketConnectTimeout = 15 * time.Second

// SocketReporter emits cycle events to a socket.io server.
type SocketReporter struct {
	io *socket.Socket
}

// SocketTarget splits a notify URL into the manager base URL, the engine.io
// path and the socket.io namespace ("http://host:3000/ns" -> namespace "/ns").
func SocketTarget(rawURL string) (base, path, namespace string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("notify URL %q must be absolute", rawURL)
	}
	namespace = u.Path
	if namespace == "" {
		namespace = "/"
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), u.Query().Get("path"), namespace, nil
}

// DialSocket connects to the socket.io server at rawURL and waits for the
// connection to be established.
func DialSocket(ctx context.Context, rawURL string) (*SocketReporter, error) {
	logger := ctxlog.FromContext(ctx).With("component", "notify", "url", rawURL)

	base, path, namespace, err := SocketTarget(rawURL)
	if err != nil {
		return nil, err
	}
	opts := socket.DefaultOptions()
	if path != "" {
		opts.SetPath(path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(base, opts)
	io := manager.Socket(namespace, opts)

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	logger.Debug("Initiating connection...")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketReporter{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(socketConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", socketConnectTimeout)
	}
}

// Notify implements Notifier.
func (r *SocketReporter) Notify(ctx context.Context, ev Event) {
	ctxlog.FromContext(ctx).Debug("Emitting event", "event", SocketEvent, "type", ev.Type)
	r.io.Emit(SocketEvent, ev.fields())
}

// Close implements Notifier.
func (r *SocketReporter) Close() error {
	r.io.Disconnect()
	return nil
}
