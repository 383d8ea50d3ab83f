// Package testutil holds shared test doubles for packages exercising the
// audit pipeline.
package testutil

import (
	"context"
	"sync"

	"github.com/tradepost/authcore/audit"
)

// CaptureSink is an audit.Sink that records every flushed event for
// later inspection. Safe for concurrent use.
type CaptureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

// Flush implements audit.Sink.
func (s *CaptureSink) Flush(_ context.Context, events []audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// FlushAsync implements audit.Sink.
func (s *CaptureSink) FlushAsync(events []audit.Event) {
	_ = s.Flush(context.Background(), events)
}

// Events returns a copy of everything flushed so far.
func (s *CaptureSink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

// Len returns how many events have been flushed.
func (s *CaptureSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
