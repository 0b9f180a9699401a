package queue

import "errors"

var (
	// ErrNoQueueRegistered is returned by the façade when a command or
	// cancel type was never registered by the host's object graph.
	ErrNoQueueRegistered = errors.New("queue: no queue registered for command type")

	// ErrNotStarted is exported but no function in this package
	// returns it: StoreJob and CancelJob run whether or not the
	// instance has been registered.
	ErrNotStarted = errors.New("queue: instance not configured")
)
