package postgres

import (
	"context"

	"github.com/geocoder89/jobqueue/internal/observability"
	"github.com/geocoder89/jobqueue/internal/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventsProvider implements queue.EventStorageProvider against a
// queue_events table shaped after queue.EventRecord, mirroring
// JobsProvider's shape per spec §4.1.
type EventsProvider struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

var _ queue.EventStorageProvider = (*EventsProvider)(nil)

func NewEventsProvider(pool *pgxpool.Pool, prom *observability.Prom) *EventsProvider {
	return &EventsProvider{pool: pool, prom: prom}
}

func (p *EventsProvider) observe(op string, fn func() error) error {
	if p.prom != nil {
		return p.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (p *EventsProvider) StoreEvent(ctx context.Context, record queue.EventRecord) error {
	return p.observe("queue.events.store", func() error {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO queue_events (id, subscriber_id, event_type, event, expire_on, is_complete)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, record.ID, record.SubscriberID, record.EventType, record.Event, record.ExpireOn, record.IsComplete)
		return err
	})
}

func (p *EventsProvider) GetNextEvent(ctx context.Context, subscriberID uint64) (*queue.EventRecord, error) {
	var r queue.EventRecord

	err := p.observe("queue.events.get_next", func() error {
		return p.pool.QueryRow(ctx, `
			SELECT id, subscriber_id, event_type, event, expire_on, is_complete
			FROM queue_events
			WHERE subscriber_id = $1
			  AND NOT is_complete
			  AND expire_on >= NOW()
			ORDER BY id
			LIMIT 1
		`, subscriberID).Scan(&r.ID, &r.SubscriberID, &r.EventType, &r.Event, &r.ExpireOn, &r.IsComplete)
	})

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (p *EventsProvider) MarkEventAsComplete(ctx context.Context, record queue.EventRecord) error {
	return p.observe("queue.events.mark_complete", func() error {
		_, err := p.pool.Exec(ctx, `
			UPDATE queue_events SET is_complete = true WHERE id = $1
		`, record.ID)
		return err
	})
}
