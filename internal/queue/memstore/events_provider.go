package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/jobqueue/internal/queue"
)

// EventsProvider mirrors JobsProvider's shape for the subscriber
// pipeline's durable event records.
type EventsProvider struct {
	mu      sync.Mutex
	records map[string]queue.EventRecord
}

var _ queue.EventStorageProvider = (*EventsProvider)(nil)

func NewEventsProvider() *EventsProvider {
	return &EventsProvider{records: make(map[string]queue.EventRecord)}
}

func (p *EventsProvider) StoreEvent(ctx context.Context, record queue.EventRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[record.ID] = record
	return nil
}

func (p *EventsProvider) GetNextEvent(ctx context.Context, subscriberID uint64) (*queue.EventRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for _, r := range p.records {
		if r.SubscriberID != subscriberID || r.IsComplete {
			continue
		}
		if now.After(r.ExpireOn) {
			continue
		}
		out := r
		return &out, nil
	}
	return nil, nil
}

func (p *EventsProvider) MarkEventAsComplete(ctx context.Context, record queue.EventRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.records[record.ID]; ok {
		r.IsComplete = true
		p.records[record.ID] = r
	}
	return nil
}
