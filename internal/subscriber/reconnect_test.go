package subscriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errStreamBoom = errors.New("stream boom")

type flakyStream struct {
	mu       sync.Mutex
	failOnce bool
	events   []RawEvent
	idx      int
}

func (s *flakyStream) Next(ctx context.Context) (RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failOnce {
		s.failOnce = false
		return RawEvent{}, errStreamBoom
	}

	if s.idx < len(s.events) {
		ev := s.events[s.idx]
		s.idx++
		return ev, nil
	}
	return RawEvent{}, errStreamBoom
}

func (s *flakyStream) Close() error { return nil }

type reopenCountingTransport struct {
	mu      sync.Mutex
	opens   int
	streams []*flakyStream
}

func (t *reopenCountingTransport) Open(ctx context.Context, subscriberID uint64) (Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.streams[t.opens]
	t.opens++
	return s, nil
}

func TestReconnectingTransport_ReopensOnStreamError(t *testing.T) {
	orig := reconnectDelay
	reconnectDelay = 10 * time.Millisecond
	defer func() { reconnectDelay = orig }()

	first := &flakyStream{failOnce: true}
	second := &flakyStream{events: []RawEvent{{EventType: "ok", Payload: []byte("1")}}}

	transport := &reopenCountingTransport{streams: []*flakyStream{first, second}}
	reconnecting := NewReconnectingTransport(transport, nil)

	stream, err := reconnecting.Open(context.Background(), 1)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	ev, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("expected Next to transparently reopen and succeed, got error: %v", err)
	}
	if ev.EventType != "ok" {
		t.Fatalf("expected event from the reopened stream, got %+v", ev)
	}

	transport.mu.Lock()
	opens := transport.opens
	transport.mu.Unlock()
	if opens != 2 {
		t.Fatalf("expected exactly one reopen (2 total opens), got %d", opens)
	}
}

func TestReconnectingTransport_StopsOnContextCancel(t *testing.T) {
	orig := reconnectDelay
	reconnectDelay = 2 * time.Second
	defer func() { reconnectDelay = orig }()

	first := &flakyStream{failOnce: true}
	transport := &reopenCountingTransport{streams: []*flakyStream{first, first}}
	reconnecting := NewReconnectingTransport(transport, nil)

	stream, err := reconnecting.Open(context.Background(), 1)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := stream.Next(ctx); err == nil {
		t.Fatalf("expected an error once ctx is already cancelled")
	}
}
