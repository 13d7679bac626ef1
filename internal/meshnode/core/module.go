package core

import (
	"context"
)

// Module is a unit of node behaviour wired to the hub by the agent.
type Module interface {
	Name() string

	Setup(ctx context.Context, hal HAL, sender Sender) error

	Routes() map[EventType]HandlerFunc
}
