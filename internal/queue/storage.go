package queue

import "context"

// BatchParams describes a GetNextBatch fetch: up to Limit records for
// QueueID that are not complete, whose eligibility window contains
// now. Matching is specified as a predicate the provider may honor
// natively (a SQL WHERE clause) or by in-memory filtering; order is
// backend-defined and no ordering guarantee surfaces to the core.
type BatchParams struct {
	QueueID uint64
	Limit   int
}

// JobStorageProvider is the pluggable persistence contract the job
// queue instance consumes. Any method may fail with an arbitrary
// error. A StoreJob failure is returned to the enqueuing caller and
// not retried; MarkJobAsComplete and OnHandlerExecutionFailure are
// retried with a 5-second backoff until success or process shutdown,
// and fetch errors (GetNextBatch) are logged and retried on the same
// cadence — see spec §4.1 / §7.
type JobStorageProvider interface {
	// StoreJob persists a newly-minted record; it must be durable
	// before returning success.
	StoreJob(ctx context.Context, record JobRecord) error

	// GetNextBatch returns up to params.Limit records matching
	// queue_id == params.QueueID AND NOT is_complete AND
	// now >= execute_after AND now <= expire_on.
	GetNextBatch(ctx context.Context, params BatchParams) ([]JobRecord, error)

	// MarkJobAsComplete sets is_complete = true durably.
	MarkJobAsComplete(ctx context.Context, record JobRecord) error

	// CancelJob marks the record such that it will never again be
	// returned by GetNextBatch.
	CancelJob(ctx context.Context, trackingID string) error

	// OnHandlerExecutionFailure records a handler failure; policy
	// (reschedule, dead-letter, drop) is the provider's own choice.
	OnHandlerExecutionFailure(ctx context.Context, record JobRecord, execErr error) error
}

// EventStorageProvider mirrors JobStorageProvider's shape for the
// event subscriber pipeline (spec §4.1, "Event provider mirrors this
// shape").
type EventStorageProvider interface {
	// StoreEvent persists a freshly-received event record.
	StoreEvent(ctx context.Context, record EventRecord) error

	// GetNextEvent returns the next not-yet-complete record for a
	// subscriber, or nil if none is due.
	GetNextEvent(ctx context.Context, subscriberID uint64) (*EventRecord, error)

	// MarkEventAsComplete sets is_complete = true durably.
	MarkEventAsComplete(ctx context.Context, record EventRecord) error
}
