package hub

import (
	"fmt"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/pkg/mqtt/paths"
)

var (
	events = make(map[core.EventType]string)

	// peer events are published under the sender's id, so they are received
	// on a wildcard filter rather than on this node's own topic.
	peer = make(map[core.EventType]bool)

	retained = make(map[core.EventType]bool)
)

// Register routes event to handler. It must be called before Start.
func (b *Hub) Register(event core.EventType, handler core.HandlerFunc) error {
	segment, ok := events[event]
	if !ok {
		return fmt.Errorf("unmapped event: %s", event)
	}

	fullTopic := b.topics.Node(segment, b.nodeID)
	if peer[event] {
		fullTopic = b.topics.Wildcard(segment)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.routes[fullTopic]; dup {
		return fmt.Errorf("event %s already routed", event)
	}
	b.routes[fullTopic] = handler
	return nil
}

func init() {
	events[core.EventRegister] = paths.Register
	events[core.EventOnline] = paths.Online

	events[core.EventHeartbeat] = paths.Heartbeat
	events[core.EventInfoRequest] = paths.InfoRequest
	events[core.EventInfoReply] = paths.InfoReply
	events[core.EventNeighborsRequest] = paths.NeighborsRequest
	events[core.EventNeighborsReply] = paths.NeighborsReply

	events[core.EventDfuStart] = paths.DfuStart
	events[core.EventDfuChunk] = paths.DfuChunk
	events[core.EventDfuChunkAck] = paths.DfuChunkAck
	events[core.EventDfuFinish] = paths.DfuFinish
	events[core.EventDfuRelay] = paths.DfuRelay
	events[core.EventDfuRelayResult] = paths.DfuRelayResult

	peer[core.EventHeartbeat] = true
	peer[core.EventInfoReply] = true
	peer[core.EventNeighborsReply] = true

	retained[core.EventOnline] = true
	retained[core.EventRegister] = true
}
