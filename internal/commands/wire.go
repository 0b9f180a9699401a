package commands

import (
	"context"

	"github.com/geocoder89/jobqueue/internal/observability"
	"github.com/geocoder89/jobqueue/internal/queue"
)

// NewInstances builds the queue instances backing this package's demo
// command types. Both cmd/api (producer) and cmd/queueworker
// (consumer) call this with the same provider so the two processes
// agree on queue ids for the same command types — queue ids are a
// deterministic hash of the queue name, not process-assigned, per
// spec_full's multi-process deployment note.
func NewInstances(provider queue.JobStorageProvider, metrics *observability.QueueMetrics, cancelRegistry *queue.CancellationRegistry, appStop context.Context) (notify *queue.Instance[SendNotificationCommand], publish *queue.Instance[PublishEventCommand]) {
	notify = queue.New[SendNotificationCommand]("send-notification", provider, queue.JSONCodec[SendNotificationCommand]{}, cancelRegistry, appStop)
	publish = queue.New[PublishEventCommand]("publish-event", provider, queue.JSONCodec[PublishEventCommand]{}, cancelRegistry, appStop)

	if metrics != nil {
		notify.SetMetrics(metrics)
		publish.SetMetrics(metrics)
	}
	return notify, publish
}

// Register adds both demo command types' instances to registry. The
// caller decides separately whether to call SetLimits on each instance
// — a producer-only process (cmd/api) registers without ever calling
// it; a consumer process (cmd/queueworker) calls SetLimits right after
// this to start draining.
func Register(registry *queue.Registry, notify *queue.Instance[SendNotificationCommand], publish *queue.Instance[PublishEventCommand]) {
	queue.Register(registry, notify)
	queue.Register(registry, publish)
}
