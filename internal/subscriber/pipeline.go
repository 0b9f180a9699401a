package subscriber

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/jobqueue/internal/queue"
)

const consumerIdleDelay = 300 * time.Millisecond

// storageBackoff/handlerFailureDelay are vars (not consts) so tests
// can shrink them instead of waiting out the real 5-second cadence.
var (
	storageBackoff      = 5 * time.Second
	handlerFailureDelay = 5 * time.Second
)

// Pipeline is the event subscriber pipeline from spec §4.4: a
// producer task (transport → store) and a consumer task (store →
// handler) sharing a stable subscriber id, decoupled by the store so
// the producer can outrun the consumer without loss.
//
// Grounded on the reconnect-loop idiom in
// other_examples/...hpc_chain_subscriber.go (mutex-guarded running
// flag, stats counters, fixed reconnect delay), adapted to the spec's
// producer/consumer split over a queue.EventStorageProvider.
type Pipeline struct {
	subscriberID   uint64
	eventType      string
	transport      Transport
	provider       queue.EventStorageProvider
	handlerFactory HandlerFactory
	logger         *slog.Logger
}

// New constructs a pipeline for one (event type, handler type) pair.
// hostIdentity, handlerType, and channelTarget are hashed into the
// stable subscriber id per spec §3/§6.
func New(hostIdentity, handlerType, channelTarget, eventType string, transport Transport, provider queue.EventStorageProvider, factory HandlerFactory) *Pipeline {
	return &Pipeline{
		subscriberID:   queue.HashID(hostIdentity, handlerType, channelTarget),
		eventType:      eventType,
		transport:      transport,
		provider:       provider,
		handlerFactory: factory,
		logger:         slog.Default(),
	}
}

// SubscriberID returns the stable hash identifying this pipeline to
// the transport and partitioning its event records.
func (p *Pipeline) SubscriberID() uint64 { return p.subscriberID }

// SetLogger overrides the default logger (slog.Default()).
func (p *Pipeline) SetLogger(l *slog.Logger) { p.logger = l }

// Run starts the producer and consumer tasks as independent
// goroutines and returns immediately; both run until ctx is
// cancelled, mirroring how queue.Instance's drain task is started
// fire-and-forget from SetLimits.
func (p *Pipeline) Run(ctx context.Context) {
	go p.produce(ctx)
	go p.consume(ctx)
}

// produce is the producer task: opens the transport, forwards every
// received event into storage, and reopens after a 5-second delay on
// any stream failure. This loop never exits except on process
// shutdown (spec §4.4).
func (p *Pipeline) produce(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := p.transport.Open(ctx, p.subscriberID)
		if err != nil {
			p.logger.ErrorContext(ctx, "subscriber.open_failed", "subscriber_id", p.subscriberID, "err", err)
			if !sleepOrStop(ctx, storageBackoff) {
				return
			}
			continue
		}

		p.drainStream(ctx, stream)

		if !sleepOrStop(ctx, storageBackoff) {
			return
		}
	}
}

func (p *Pipeline) drainStream(ctx context.Context, stream Stream) {
	defer stream.Close()

	for {
		raw, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.ErrorContext(ctx, "subscriber.stream_read_failed", "subscriber_id", p.subscriberID, "err", err)
			}
			return
		}

		record := queue.NewEventRecord(p.subscriberID, p.eventType, raw.Payload)
		p.storeWithRetry(ctx, record)
	}
}

func (p *Pipeline) storeWithRetry(ctx context.Context, record queue.EventRecord) {
	for {
		if err := p.provider.StoreEvent(ctx, record); err == nil {
			return
		} else {
			p.logger.ErrorContext(ctx, "subscriber.store_failed", "subscriber_id", p.subscriberID, "err", err)
		}

		if !sleepOrStop(ctx, storageBackoff) {
			return
		}
	}
}

// consume is the consumer task: polls for the next due event, and
// either replays a failure after a 5-second delay (leaving the record
// incomplete, so it is retried) or marks it complete after a
// successful handler run (spec §4.4).
func (p *Pipeline) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		record, err := p.provider.GetNextEvent(ctx, p.subscriberID)
		if err != nil {
			p.logger.ErrorContext(ctx, "subscriber.get_next_failed", "subscriber_id", p.subscriberID, "err", err)
			if !sleepOrStop(ctx, storageBackoff) {
				return
			}
			continue
		}

		if record == nil {
			if !sleepOrStop(ctx, consumerIdleDelay) {
				return
			}
			continue
		}

		p.handle(ctx, *record)
	}
}

func (p *Pipeline) handle(ctx context.Context, record queue.EventRecord) {
	handler := p.handlerFactory()

	if err := handler.Handle(ctx, record.EventType, record.Event); err != nil {
		p.logger.ErrorContext(ctx, "subscriber.handler_failed", "subscriber_id", p.subscriberID, "err", err)
		sleepOrStop(ctx, handlerFailureDelay)
		return
	}

	p.markCompleteWithRetry(ctx, record)
}

func (p *Pipeline) markCompleteWithRetry(ctx context.Context, record queue.EventRecord) {
	for {
		if err := p.provider.MarkEventAsComplete(ctx, record); err == nil {
			return
		} else {
			p.logger.ErrorContext(ctx, "subscriber.mark_complete_failed", "subscriber_id", p.subscriberID, "err", err)
		}

		if !sleepOrStop(ctx, storageBackoff) {
			return
		}
	}
}

func sleepOrStop(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
