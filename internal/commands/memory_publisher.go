package commands

import (
	"context"
	"sync"
)

// InMemoryEventPublisher is the default EventPublisher: a
// process-local set of published event ids. It exists so
// PublishEventCommand has something to call out of the box in a demo
// deployment — grounded on the same mutex-guarded-map idiom as
// internal/queue/memstore's providers.
type InMemoryEventPublisher struct {
	mu        sync.Mutex
	published map[string]bool
}

func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{published: make(map[string]bool)}
}

// MarkPublished reports true the first time it sees eventID, and false
// on every subsequent call — mirroring the teacher's
// EventsRepository.MarkPublished contract (a conditional UPDATE ...
// WHERE NOT published).
func (p *InMemoryEventPublisher) MarkPublished(ctx context.Context, eventID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.published[eventID] {
		return false, nil
	}
	p.published[eventID] = true
	return true, nil
}
