// Package notify reports build-cycle events to interested clients: a
// socket.io server the developer's tooling listens on, and browsers
// connected to the live-reload websocket hub.
package notify

import (
	"context"
	"errors"
	"time"
)

// Event types.
const (
	TypeChange       = "change"
	TypeCompiled     = "compiled"
	TypeCompileError = "compile-error"
	TypeWorkerStart  = "worker-start"
	TypePackaged     = "packaged"
)

// Event describes one step of a build cycle.
type Event struct {
	Type  string    `json:"type"`
	Cycle int64     `json:"cycle"`
	Path  string    `json:"path,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// fields renders the event as a plain map for transports that do their own
// encoding.
func (e Event) fields() map[string]any {
	m := map[string]any{
		"type":  e.Type,
		"cycle": e.Cycle,
		"time":  e.Time.Format(time.RFC3339Nano),
	}
	if e.Path != "" {
		m["path"] = e.Path
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

// Notifier delivers events. Notify must not block on slow clients.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
	Close() error
}

// Multi fans events out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}

// Close implements Notifier.
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.Close())
	}
	return errors.Join(errs...)
}
