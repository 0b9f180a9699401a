package notifications

import "context"

// NotificationInput is the payload a Notifier sends on behalf of a
// SendNotificationCommand (see internal/commands).
type NotificationInput struct {
	Recipient string
	Subject   string
	Body      string
}

// Notifier delivers one notification. Implementations are expected to
// be safe for concurrent use, since a queue instance may invoke
// SendNotificationCommand.Execute from several goroutines at once.
type Notifier interface {
	Send(ctx context.Context, input NotificationInput) error
}
