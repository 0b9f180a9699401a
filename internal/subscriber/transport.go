// Package subscriber implements the event subscriber pipeline: a
// producer task moving events from a remote transport into durable
// storage, and a consumer task moving them from storage to handlers,
// decoupled by the store per spec §4.4.
package subscriber

import "context"

// RawEvent is what a Stream yields: the event type tag plus its
// opaque payload. The pipeline wraps this into a durable
// queue.EventRecord before handing it to storage.
type RawEvent struct {
	EventType string
	Payload   []byte
}

// Transport is an async sequence of typed events bound to a
// subscriber identifier (spec §6, "Transport for events (consumed)").
// Implementations must tolerate reconnection by identifier — opening
// again under the same subscriberID should resume, not replay from
// scratch, wherever the underlying medium supports it.
type Transport interface {
	// Open starts a server-streaming call for subscriberID.
	Open(ctx context.Context, subscriberID uint64) (Stream, error)
}

// Stream is one open subscription. Close of the stream signals stream
// end, not subscriber removal — reopening under the same subscriberID
// is expected and supported.
type Stream interface {
	// Next blocks for the next event, returning an error when the
	// stream ends or fails.
	Next(ctx context.Context) (RawEvent, error)
	Close() error
}
