package subscriber

import "context"

// Handler processes one decoded event. A fresh instance is obtained
// from the factory for every dispatch, per spec §4.4 ("obtain a fresh
// handler instance from the handler factory and call its handle
// operation").
type Handler interface {
	Handle(ctx context.Context, eventType string, payload []byte) error
}

// HandlerFactory constructs a fresh Handler for each dispatch.
type HandlerFactory func() Handler
