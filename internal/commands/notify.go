// Package commands holds the concrete queue.Command implementations
// this service ships with. Each type here is a thin adapter: it
// carries the durable, JSON-serializable arguments for one unit of
// asynchronous work, and an Execute method that resolves its
// dependencies from package-level state set up at process start.
//
// This mirrors the teacher's JobType/payload split (internal/jobs) but
// replaces the string-tag-plus-switch dispatch with one Go type per
// job, since the queue runtime now dispatches generically on
// queue.Command rather than on a JobType enum.
package commands

import (
	"context"
	"fmt"

	"github.com/geocoder89/jobqueue/internal/notifications"
)

// notifier is resolved once at process start (see cmd/queueworker) and
// shared by every decoded SendNotificationCommand. It is package state
// rather than a field on the command because the command itself must
// stay a plain, JSON-round-trippable value — it travels through the
// storage provider as bytes and is reconstructed by the codec with no
// constructor call of ours in between.
var notifier notifications.Notifier

// SetNotifier wires the shared Notifier used by SendNotificationCommand.
// Call this once during process startup, before any queue instance
// handling this command type starts draining.
func SetNotifier(n notifications.Notifier) {
	notifier = n
}

// SendNotificationCommand delivers one notification through the
// process-wide Notifier. It is the generic descendant of the teacher's
// JobSendRegistrationConfirmation job: same "send something to someone"
// shape, generalized away from the conference-registration domain.
type SendNotificationCommand struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

func (c SendNotificationCommand) Execute(ctx context.Context) error {
	if notifier == nil {
		return fmt.Errorf("commands: SendNotificationCommand: no notifier configured")
	}
	return notifier.Send(ctx, notifications.NotificationInput{
		Recipient: c.Recipient,
		Subject:   c.Subject,
		Body:      c.Body,
	})
}
