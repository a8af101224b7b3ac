package events

import (
	"context"
	"sync"

	"github.com/fixora/pim/internal/ports"
)

// MemoryPublisher keeps published events in memory. It is used when event
// publishing is disabled and in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []ports.Event
	limit  int
}

// NewMemoryPublisher creates a publisher retaining at most limit events; zero keeps all
func NewMemoryPublisher(limit int) *MemoryPublisher {
	return &MemoryPublisher{limit: limit}
}

var _ ports.EventPublisher = (*MemoryPublisher)(nil)

// Publish records the event
func (p *MemoryPublisher) Publish(ctx context.Context, event ports.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	if p.limit > 0 && len(p.events) > p.limit {
		p.events = append([]ports.Event(nil), p.events[len(p.events)-p.limit:]...)
	}
	return nil
}

// Events returns the recorded events in publish order
func (p *MemoryPublisher) Events() []ports.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.Event(nil), p.events...)
}

// OfType returns the recorded events of one type
func (p *MemoryPublisher) OfType(eventType string) []ports.Event {
	var out []ports.Event
	for _, e := range p.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
