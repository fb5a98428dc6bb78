package notify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vk/tsforge/internal/ctxlog"
)

const (
	hubWriteWait = 10 * time.Second
	hubPongWait  = 60 * time.Second
	hubPingEvery = (hubPongWait * 9) / 10
	hubQueueSize = 16
)

var hubUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Hub is a live-reload websocket endpoint. Every connected client receives
// every event as JSON.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
	server  *http.Server
}

// NewHub creates a hub with no clients.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]struct{})}
}

// Listen serves the hub on addr until ctx is done.
func (h *Hub) Listen(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	h.server = &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	logger := ctxlog.FromContext(ctx).With("component", "reload-hub")
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Live-reload server stopped.", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = h.Close()
	}()
	logger.Info("📡 Live-reload hub listening.", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// ServeHTTP upgrades the request and streams events to the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := hubUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := h.subscribe()
	defer h.unsubscribe(events)

	// The reader only exists to process pongs and notice disconnects.
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(hubPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(hubPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(hubPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := conn.SetWriteDeadline(time.Now().Add(hubWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(hubWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, hubQueueSize)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Notify implements Notifier. Clients whose queue is full miss the event.
func (h *Hub) Notify(ctx context.Context, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			ctxlog.FromContext(ctx).Debug("Dropping event for slow live-reload client.", "type", ev.Type)
		}
	}
}

// Close implements Notifier.
func (h *Hub) Close() error {
	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}
