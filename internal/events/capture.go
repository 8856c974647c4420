package events

import (
	"context"
	"sync"
)

// CaptureSink records published events in memory. Tests inject it to assert
// that engines emit the expected notifications.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

// NewCaptureSink constructs an empty capturing sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Publish appends the event to the captured list.
func (s *CaptureSink) Publish(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything published so far.
func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the captured event kinds in publish order.
func (s *CaptureSink) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}
