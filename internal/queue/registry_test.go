package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

type otherTestCommand struct {
	Noop bool `json:"noop"`
}

func (otherTestCommand) Execute(ctx context.Context) error { return nil }

func TestRegistry_EnqueueDispatchesByType(t *testing.T) {
	shrinkBackoffsForTest(t)

	provider := newFakeJobProvider()
	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	reg := NewRegistry()
	inst := New[testCommand]("registry-dispatch", provider, JSONCodec[testCommand]{}, reg.Cancellations(), appCtx)
	inst.SetLimits(Config{ConcurrencyLimit: 1, SemWaitLimit: 30 * time.Millisecond})
	Register(reg, inst)

	rec := &recorder{}
	testRecorders.Store("job-registry", rec)
	defer testRecorders.Delete("job-registry")

	trackingID, err := Enqueue[testCommand](reg, context.Background(), testCommand{ID: "job-registry"}, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if trackingID == "" {
		t.Fatalf("expected a tracking id")
	}

	waitFor(t, func() bool { return rec.has("job-registry:ok") })
}

func TestRegistry_EnqueueUnregisteredType(t *testing.T) {
	reg := NewRegistry()

	_, err := Enqueue[otherTestCommand](reg, context.Background(), otherTestCommand{}, time.Time{}, time.Time{})
	if !errors.Is(err, ErrNoQueueRegistered) {
		t.Fatalf("expected ErrNoQueueRegistered, got %v", err)
	}
}

func TestRegistry_CancelUnregisteredType(t *testing.T) {
	reg := NewRegistry()

	err := Cancel[otherTestCommand](reg, context.Background(), "some-id")
	if !errors.Is(err, ErrNoQueueRegistered) {
		t.Fatalf("expected ErrNoQueueRegistered, got %v", err)
	}
}

func TestRegistry_CancelRoutesToCorrectQueue(t *testing.T) {
	shrinkBackoffsForTest(t)

	provider := newFakeJobProvider()
	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	reg := NewRegistry()
	inst := New[testCommand]("registry-cancel", provider, JSONCodec[testCommand]{}, reg.Cancellations(), appCtx)
	inst.SetLimits(Config{ConcurrencyLimit: 1, SemWaitLimit: 30 * time.Millisecond})
	Register(reg, inst)

	rec := &recorder{}
	testRecorders.Store("job-registry-cancel", rec)
	defer testRecorders.Delete("job-registry-cancel")

	executeAfter := time.Now().Add(300 * time.Millisecond)
	trackingID, err := Enqueue[testCommand](reg, context.Background(), testCommand{ID: "job-registry-cancel"}, executeAfter, time.Time{})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	if err := Cancel[testCommand](reg, context.Background(), trackingID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	time.Sleep(400 * time.Millisecond)
	if rec.has("job-registry-cancel:ok") {
		t.Fatalf("expected the cancelled job to never execute")
	}
}

func TestRegistry_Cancellations_SharedAcrossQueues(t *testing.T) {
	reg := NewRegistry()
	if reg.Cancellations() == nil {
		t.Fatalf("expected a shared cancellation registry")
	}
	if reg.Cancellations().Len() != 0 {
		t.Fatalf("expected an empty registry on construction")
	}
}
