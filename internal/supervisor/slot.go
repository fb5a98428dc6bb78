package supervisor

import (
	"context"
	"sync"
)

// Slot holds the single live worker. Replace calls are serialized; the last
// one to run wins.
type Slot struct {
	mu      sync.Mutex
	current Handle
}

// Replace installs the handle produced by launch. Under the slot lock it
// calls before with the outgoing handle (which may be nil), requests the
// outgoing handle's termination without waiting for it, then launches.
//
// A context that is already done means the caller was superseded: nothing
// is terminated or launched and ctx.Err() is returned.
func (s *Slot) Replace(ctx context.Context, before func(old Handle), launch func(ctx context.Context) (Handle, error)) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	old := s.current
	if before != nil {
		before(old)
	}
	if old != nil {
		old.Terminate()
		s.current = nil
	}

	h, err := launch(ctx)
	if err != nil {
		return nil, err
	}
	s.current = h
	return h, nil
}

// Current returns the installed handle, or nil.
func (s *Slot) Current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Terminate requests termination of the installed handle and empties the slot.
func (s *Slot) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Terminate()
		s.current = nil
	}
}
