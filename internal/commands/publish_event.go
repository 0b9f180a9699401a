package commands

import (
	"context"
	"fmt"
)

// EventPublisher marks a previously recorded event as published.
// Grounded on the teacher's EventsRepository.MarkPublished
// (internal/queue/worker/worker.go) — generalized from a Postgres-repo
// method into a small interface so PublishEventCommand stays testable
// without a database.
type EventPublisher interface {
	MarkPublished(ctx context.Context, eventID string) (bool, error)
}

var eventPublisher EventPublisher

// SetEventPublisher wires the shared EventPublisher used by
// PublishEventCommand. Call once during process startup.
func SetEventPublisher(p EventPublisher) {
	eventPublisher = p
}

// PublishEventCommand marks one domain event as published. It is the
// generic descendant of the teacher's JobPublishEvent job.
type PublishEventCommand struct {
	EventID     string `json:"eventId"`
	RequestedBy string `json:"requestedBy"`
}

func (c PublishEventCommand) Execute(ctx context.Context) error {
	if eventPublisher == nil {
		return fmt.Errorf("commands: PublishEventCommand: no event publisher configured")
	}
	if c.EventID == "" {
		return fmt.Errorf("commands: PublishEventCommand: missing eventId")
	}

	ok, err := eventPublisher.MarkPublished(ctx, c.EventID)
	if err != nil {
		return fmt.Errorf("commands: PublishEventCommand: %w", err)
	}
	if !ok {
		return fmt.Errorf("commands: PublishEventCommand: event %s already published or not found", c.EventID)
	}
	return nil
}
