package memstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/geocoder89/jobqueue/internal/queue"
)

func TestEventsProvider_StoreAndFetch(t *testing.T) {
	p := NewEventsProvider()
	ctx := context.Background()

	record := queue.NewEventRecord(3, "user.created", json.RawMessage(`{}`))
	if err := p.StoreEvent(ctx, record); err != nil {
		t.Fatalf("StoreEvent error: %v", err)
	}

	got, err := p.GetNextEvent(ctx, 3)
	if err != nil {
		t.Fatalf("GetNextEvent error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected an event record, got nil")
	}
	if got.ID != record.ID {
		t.Fatalf("expected id %s, got %s", record.ID, got.ID)
	}
}

func TestEventsProvider_NoneDueReturnsNil(t *testing.T) {
	p := NewEventsProvider()

	got, err := p.GetNextEvent(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetNextEvent error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil when nothing is due")
	}
}

func TestEventsProvider_MarkCompleteExcludesFromFetch(t *testing.T) {
	p := NewEventsProvider()
	ctx := context.Background()

	record := queue.NewEventRecord(3, "user.created", json.RawMessage(`{}`))
	_ = p.StoreEvent(ctx, record)
	if err := p.MarkEventAsComplete(ctx, record); err != nil {
		t.Fatalf("MarkEventAsComplete error: %v", err)
	}

	got, err := p.GetNextEvent(ctx, 3)
	if err != nil {
		t.Fatalf("GetNextEvent error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected a completed event to never be re-offered")
	}
}

func TestEventsProvider_IsolatedBySubscriber(t *testing.T) {
	p := NewEventsProvider()
	ctx := context.Background()

	_ = p.StoreEvent(ctx, queue.NewEventRecord(3, "user.created", json.RawMessage(`{}`)))

	got, err := p.GetNextEvent(ctx, 4)
	if err != nil {
		t.Fatalf("GetNextEvent error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no event for a different subscriber id")
	}
}
