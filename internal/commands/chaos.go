package commands

import (
	"context"
	"fmt"
	"time"
)

// SleepCommand blocks for Duration, or until ctx is cancelled —
// whichever comes first. It exists to exercise the queue instance's
// execution_time_limit and explicit-cancel semantics (spec §8) without
// needing a real downstream dependency, the same role the teacher's
// ad-hoc sleep-based chaos testing (NOTIFIER_SLEEP_MS) plays for the
// notifications package.
type SleepCommand struct {
	Duration time.Duration `json:"duration"`
}

func (c SleepCommand) Execute(ctx context.Context) error {
	select {
	case <-time.After(c.Duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FailCommand always fails with Reason. It exists to exercise the
// retry/backoff path on OnHandlerExecutionFailure.
type FailCommand struct {
	Reason string `json:"reason"`
}

func (c FailCommand) Execute(ctx context.Context) error {
	if c.Reason == "" {
		c.Reason = "unspecified"
	}
	return fmt.Errorf("commands: FailCommand: %s", c.Reason)
}
