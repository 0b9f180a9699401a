package queue

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// handle is the uniform, type-erased surface the Registry keeps per
// command type, per design note §9 ("the registry stores a uniform
// queue handle interface — store/cancel by tracking id — rather than
// the generic Instance[T] type directly, sidestepping the fact that
// most languages cannot hold a heterogeneous collection of
// differently-parameterized generics").
type handle interface {
	cancel(ctx context.Context, trackingID string) error
	inspect() InstanceInfo
}

// storer is implemented by *Instance[T] for the concrete T the caller
// enqueues; the type assertion inside Enqueue recovers it.
type storer[T Command] interface {
	StoreJob(ctx context.Context, cmd T, executeAfter, expireOn time.Time) (string, error)
}

// Registry is the process-wide Queue Registry from spec §4.2/§9: a
// map from command type to its queue instance, plus the shared
// cancellation registry every instance is built against.
//
// Grounded on the teacher's worker registry pattern in cmd/worker and
// the dispatcher map in internal/jobs, generalized to use
// reflect.TypeOf(zero value of T) as the map key instead of a string
// job-type tag.
type Registry struct {
	mu             sync.RWMutex
	queues         map[reflect.Type]handle
	cancelRegistry *CancellationRegistry
}

// NewRegistry constructs an empty registry, owning one
// CancellationRegistry shared by every queue instance registered
// against it.
func NewRegistry() *Registry {
	return &Registry{
		queues:         make(map[reflect.Type]handle),
		cancelRegistry: NewCancellationRegistry(),
	}
}

// Cancellations exposes the shared cancellation registry, e.g. for an
// admin introspection endpoint reporting in-flight execution counts.
func (r *Registry) Cancellations() *CancellationRegistry { return r.cancelRegistry }

// Register adds a queue instance for command type T. The host calls
// this once per command type while assembling its object graph,
// before or after SetLimits — registration and draining are
// independent (an "api" process may register without ever calling
// SetLimits, producing only).
func Register[T Command](r *Registry, inst *Instance[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[typeOf[T]()] = instanceHandle[T]{inst}
}

// Enqueue stores cmd on the queue instance registered for its
// concrete type, returning ErrNoQueueRegistered if none was ever
// registered via Register.
func Enqueue[T Command](r *Registry, ctx context.Context, cmd T, executeAfter, expireOn time.Time) (string, error) {
	r.mu.RLock()
	h, ok := r.queues[typeOf[T]()]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoQueueRegistered, typeOf[T]())
	}

	s, ok := h.(storer[T])
	if !ok {
		// Can only happen if two distinct command types hash to the
		// same reflect.Type, which reflect.TypeOf never does.
		return "", fmt.Errorf("%w: %s", ErrNoQueueRegistered, typeOf[T]())
	}

	return s.StoreJob(ctx, cmd, executeAfter, expireOn)
}

// Cancel requests cancellation of trackingID on the queue registered
// for command type T.
func Cancel[T Command](r *Registry, ctx context.Context, trackingID string) error {
	r.mu.RLock()
	h, ok := r.queues[typeOf[T]()]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoQueueRegistered, typeOf[T]())
	}

	return h.cancel(ctx, trackingID)
}

// Inspect returns a snapshot of every registered queue instance, for
// the admin introspection endpoint (GET /queues).
func (r *Registry) Inspect() []InstanceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]InstanceInfo, 0, len(r.queues))
	for t, h := range r.queues {
		info := h.inspect()
		info.CommandType = t.String()
		out = append(out, info)
	}
	return out
}

// instanceHandle adapts *Instance[T] to the type-erased handle
// interface.
type instanceHandle[T Command] struct {
	inst *Instance[T]
}

func (h instanceHandle[T]) cancel(ctx context.Context, trackingID string) error {
	return h.inst.CancelJob(ctx, trackingID)
}

func (h instanceHandle[T]) inspect() InstanceInfo {
	return h.inst.Inspect()
}

func (h instanceHandle[T]) StoreJob(ctx context.Context, cmd T, executeAfter, expireOn time.Time) (string, error) {
	return h.inst.StoreJob(ctx, cmd, executeAfter, expireOn)
}

func typeOf[T Command]() reflect.Type {
	var zero T
	return reflect.TypeOf(&zero).Elem()
}
