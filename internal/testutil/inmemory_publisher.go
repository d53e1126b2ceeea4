package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/timeline/internal/publisher"
	"github.com/samber/lo"
)

// InMemoryPublisherService records published events for assertions
type InMemoryPublisherService struct {
	mu     sync.RWMutex
	events []*publisher.Event
}

var _ publisher.EventPublisher = (*InMemoryPublisherService)(nil)

func NewInMemoryEventPublisher() *InMemoryPublisherService {
	return &InMemoryPublisherService{}
}

func (p *InMemoryPublisherService) Publish(ctx context.Context, event *publisher.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// GetEvents returns all published events
func (p *InMemoryPublisherService) GetEvents() []*publisher.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*publisher.Event(nil), p.events...)
}

// EventsNamed returns the published events with the given name
func (p *InMemoryPublisherService) EventsNamed(name string) []*publisher.Event {
	return lo.Filter(p.GetEvents(), func(e *publisher.Event, _ int) bool {
		return e.EventName == name
	})
}

// Clear removes all published events
func (p *InMemoryPublisherService) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
