// eventsink.go provides an in-memory implementation of EventSink.
//
// Published events are kept for inspection in tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink is an in-memory implementation of the EventSink port.
type EventSink struct {
	mu     sync.RWMutex
	events []outbound.TxEvent
	closed bool
}

// NewEventSink creates a new in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{}
}

// Publish stores the event. Events published after Close are dropped.
func (s *EventSink) Publish(ctx context.Context, event outbound.TxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.events = append(s.events, event)
	return nil
}

// Close marks the sink as closed.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Events returns a copy of all published events.
func (s *EventSink) Events() []outbound.TxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbound.TxEvent(nil), s.events...)
}
