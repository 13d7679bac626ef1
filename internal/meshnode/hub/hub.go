package hub

import (
	"context"
	"encoding"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/pkg/log"
	"github.com/autopeer-io/meshnode/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/meshnode/pkg/mqtt/topic"
)

// Hub binds node events to MQTT topics.
type Hub struct {
	nodeID uint64

	mc     mqtt.Client
	topics *mqtttopic.Builder

	mu     sync.Mutex
	routes map[string]core.HandlerFunc
}

var _ core.Sender = (*Hub)(nil)

func New(nodeID uint64, client mqtt.Client, topicbuilder *mqtttopic.Builder) *Hub {
	return &Hub{
		nodeID: nodeID,
		mc:     client,
		topics: topicbuilder,
		routes: make(map[string]core.HandlerFunc),
	}
}

func (b *Hub) Send(ctx context.Context, event core.EventType, nodeID uint64, payload []byte) error {
	segment, ok := events[event]
	if !ok {
		return fmt.Errorf("unmapped event: %s", event)
	}
	fullTopic := b.topics.Node(segment, nodeID)
	return b.mc.Publish(ctx, fullTopic, 1, retained[event], payload)
}

func (b *Hub) SendMessage(ctx context.Context, event core.EventType, nodeID uint64, msg encoding.BinaryMarshaler) error {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return b.Send(ctx, event, nodeID, payload)
}

func (b *Hub) IsConnected() bool {
	return b.mc.IsConnected()
}

func (b *Hub) Start(ctx context.Context) error {
	if err := b.mc.Start(ctx); err != nil {
		return err
	}

	if err := b.mc.AwaitConnection(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, handler := range b.routes {
		err := b.mc.Subscribe(ctx, topic, 1, func(c context.Context, t string, p []byte) {
			if handleErr := handler(c, p); handleErr != nil {
				log.Error(handleErr, "Handler execution failed", "topic", t)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	return nil
}

func (b *Hub) Stop() {
	log.Info("Disconnecting MQTT client...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.mc.Disconnect(ctx)
}
