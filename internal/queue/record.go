// Package queue implements the persistent, per-command-type job queue
// runtime: durable records, a storage provider contract, a process-wide
// cancellation registry, and the generic queue instance that drains
// due work with bounded concurrency.
package queue

import (
	"encoding/json"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// defaultExpiry is how far past "now" a freshly-minted record is
// eligible to run, absent an explicit expire_on.
const defaultExpiry = 4 * time.Hour

// JobRecord is the durable representation of one unit of queued work.
// Storage providers persist and return this shape; the core never
// interprets Command beyond handing it to the codec for decoding.
type JobRecord struct {
	TrackingID   string          `json:"trackingId"`
	QueueID      uint64          `json:"queueId"`
	Command      json.RawMessage `json:"command"`
	ExecuteAfter time.Time       `json:"executeAfter"`
	ExpireOn     time.Time       `json:"expireOn"`
	IsComplete   bool            `json:"isComplete"`
}

// EventRecord is the durable representation of one received, not-yet-handled
// event delivered by the subscriber pipeline's producer task.
type EventRecord struct {
	ID            string          `json:"id"`
	SubscriberID  uint64          `json:"subscriberId"`
	EventType     string          `json:"eventType"`
	Event         json.RawMessage `json:"event"`
	ExpireOn      time.Time       `json:"expireOn"`
	IsComplete    bool            `json:"isComplete"`
}

// NewJobRecord builds a fresh, pending record for a queue with the
// given queueID. executeAfter/expireOn default to now / now+4h when
// zero, per the record's scheduling-window invariant
// (execute_after <= expire_on).
func NewJobRecord(queueID uint64, command json.RawMessage, executeAfter, expireOn time.Time) JobRecord {
	now := time.Now().UTC()

	if executeAfter.IsZero() {
		executeAfter = now
	}
	if expireOn.IsZero() {
		expireOn = now.Add(defaultExpiry)
	}

	return JobRecord{
		TrackingID:   uuid.NewString(),
		QueueID:      queueID,
		Command:      command,
		ExecuteAfter: executeAfter,
		ExpireOn:     expireOn,
		IsComplete:   false,
	}
}

// NewEventRecord builds a fresh, pending event record for a subscriber.
func NewEventRecord(subscriberID uint64, eventType string, event json.RawMessage) EventRecord {
	now := time.Now().UTC()

	return EventRecord{
		ID:           uuid.NewString(),
		SubscriberID: subscriberID,
		EventType:    eventType,
		Event:        event,
		ExpireOn:     now.Add(defaultExpiry),
		IsComplete:   false,
	}
}

// HashID computes the stable, 64-bit, non-cryptographic hash used for
// queue_id and subscriber_id: a deterministic combinator over one or
// more source strings, joined by a separator byte absent from any
// reasonable type/host/channel name so two different tuples never
// collide on concatenation alone.
func HashID(parts ...string) uint64 {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
