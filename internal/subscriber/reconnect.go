package subscriber

import (
	"context"
	"log/slog"
	"time"
)

// reconnectDelay is a var (not const) so tests can shrink it.
var reconnectDelay = 5 * time.Second

// ReconnectingTransport wraps a Transport so that a read failure
// encountered mid-stream silently reopens the underlying stream under
// the same subscriber id after a fixed delay, instead of surfacing the
// error to the pipeline's producer loop (which only handles Open
// failures on its own retry cadence).
//
// Grounded on the mutex-guarded reconnect loop in
// other_examples/...hpc_chain_subscriber.go's subscriptionLoop,
// adapted from its exponential backoff to the spec's flat 5-second
// delay and pushed down to the stream level instead of the pipeline.
type ReconnectingTransport struct {
	inner  Transport
	logger *slog.Logger
}

var _ Transport = (*ReconnectingTransport)(nil)

// NewReconnectingTransport wraps inner. logger may be nil.
func NewReconnectingTransport(inner Transport, logger *slog.Logger) *ReconnectingTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconnectingTransport{inner: inner, logger: logger}
}

func (t *ReconnectingTransport) Open(ctx context.Context, subscriberID uint64) (Stream, error) {
	stream, err := t.inner.Open(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	return &reconnectingStream{
		inner:        stream,
		transport:    t.inner,
		subscriberID: subscriberID,
		logger:       t.logger,
	}, nil
}

type reconnectingStream struct {
	inner        Stream
	transport    Transport
	subscriberID uint64
	logger       *slog.Logger
}

func (s *reconnectingStream) Next(ctx context.Context) (RawEvent, error) {
	ev, err := s.inner.Next(ctx)
	if err == nil {
		return ev, nil
	}
	if ctx.Err() != nil {
		return RawEvent{}, err
	}

	s.logger.ErrorContext(ctx, "subscriber.stream_failed", "subscriber_id", s.subscriberID, "err", err)
	_ = s.inner.Close()

	for {
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return RawEvent{}, ctx.Err()
		}

		next, openErr := s.transport.Open(ctx, s.subscriberID)
		if openErr != nil {
			s.logger.ErrorContext(ctx, "subscriber.reopen_failed", "subscriber_id", s.subscriberID, "err", openErr)
			continue
		}

		s.inner = next
		return s.Next(ctx)
	}
}

func (s *reconnectingStream) Close() error { return s.inner.Close() }
