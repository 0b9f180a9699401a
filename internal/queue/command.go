package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Command is a unit of asynchronous work. Execute is invoked with a
// context carrying the per-execution cancellation token (linked to the
// instance's execution_time_limit and to any explicit Cancel call).
type Command interface {
	Execute(ctx context.Context) error
}

// Codec converts a Command to and from its durable, opaque wire form.
// The storage layer only ever sees the encoded bytes; decoding back to
// the concrete TCommand is the queue instance's job (per design note
// §9: "serialization...delegated to the storage record's get/set
// operations").
type Codec[T Command] interface {
	Encode(cmd T) (json.RawMessage, error)
	Decode(raw json.RawMessage) (T, error)
}

// JSONCodec is the default Codec, grounded on the teacher's
// EncodePayload/DecodePayload pair in internal/jobs/codec.go —
// generalized here from a job-type switch to one codec per command
// type, since polymorphism now comes from Go generics rather than a
// string tag.
type JSONCodec[T Command] struct{}

func (JSONCodec[T]) Encode(cmd T) (json.RawMessage, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("queue: encode command: %w", err)
	}
	return b, nil
}

func (JSONCodec[T]) Decode(raw json.RawMessage) (T, error) {
	var cmd T
	if len(raw) == 0 {
		return cmd, fmt.Errorf("queue: decode command: empty payload")
	}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, fmt.Errorf("queue: decode command: %w", err)
	}
	return cmd, nil
}
