package commands

import (
	"context"
	"log/slog"

	"github.com/geocoder89/jobqueue/internal/subscriber"
)

// LogEventHandler is the demo subscriber.Handler this service ships
// with: it just logs whatever the transport delivered. Standing in for
// a real domain handler the way LogNotifier stands in for a real
// notification provider.
type LogEventHandler struct {
	logger *slog.Logger
}

func NewLogEventHandler(logger *slog.Logger) *LogEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventHandler{logger: logger}
}

func (h *LogEventHandler) Handle(ctx context.Context, eventType string, payload []byte) error {
	h.logger.InfoContext(ctx, "subscriber.event_handled", "event_type", eventType, "payload_bytes", len(payload))
	return nil
}

// NewLogEventHandlerFactory returns a subscriber.HandlerFactory that
// hands out a fresh LogEventHandler per dispatch, per spec §4.4's
// "obtain a fresh handler instance from the handler factory".
func NewLogEventHandlerFactory(logger *slog.Logger) subscriber.HandlerFactory {
	return func() subscriber.Handler {
		return NewLogEventHandler(logger)
	}
}
