package core

import (
	"context"
	"encoding"
	"fmt"
)

// Sender publishes events. nodeID is the node the topic is addressed to: the
// target for requests and this node's own id for reports.
type Sender interface {
	Send(ctx context.Context, event EventType, nodeID uint64, payload []byte) error
	SendMessage(ctx context.Context, event EventType, nodeID uint64, msg encoding.BinaryMarshaler) error
}

type HandlerFunc func(ctx context.Context, payload []byte) error

type TypedHandlerFunc[T any, P interface {
	*T
	encoding.BinaryUnmarshaler
}] func(ctx context.Context, msg P) error

// MessageAdapter decodes the payload into a fresh T before calling handler.
func MessageAdapter[T any, P interface {
	*T
	encoding.BinaryUnmarshaler
}](handler TypedHandlerFunc[T, P]) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var msg P = new(T)

		if err := msg.UnmarshalBinary(payload); err != nil {
			return fmt.Errorf("decode %T failed: %w", msg, err)
		}

		return handler(ctx, msg)
	}
}
