// Package notify provides NotificationSink implementations. Sinks are
// fire-and-forget: the admission and sync paths log sink failures and never
// let them fail the primary operation.
package notify

import (
	"context"
	"sync"

	"registrar/internal/enrollment/ports"
)

// InMemorySink buffers events in memory. Backs tests and local development.
type InMemorySink struct {
	mu     sync.Mutex
	events []ports.Event
}

// NewInMemory creates an empty sink.
func NewInMemory() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Notify(_ context.Context, event ports.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything received so far.
func (s *InMemorySink) Events() []ports.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Event(nil), s.events...)
}
