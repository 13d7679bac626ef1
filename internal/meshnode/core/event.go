package core

type EventType string

const (
	EventRegister EventType = "node.register"
	EventOnline   EventType = "node.online"

	EventHeartbeat        EventType = "mesh.heartbeat"
	EventInfoRequest      EventType = "mesh.info.request"
	EventInfoReply        EventType = "mesh.info.reply"
	EventNeighborsRequest EventType = "mesh.neighbors.request"
	EventNeighborsReply   EventType = "mesh.neighbors.reply"

	EventDfuStart       EventType = "dfu.start"
	EventDfuChunk       EventType = "dfu.chunk"
	EventDfuChunkAck    EventType = "dfu.chunk.ack"
	EventDfuFinish      EventType = "dfu.finish"
	EventDfuRelay       EventType = "dfu.relay"
	EventDfuRelayResult EventType = "dfu.relay.result"
)
