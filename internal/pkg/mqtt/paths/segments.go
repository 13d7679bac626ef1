package paths

// Topic segments of the node protocol. A full topic is {root}/{segment}/{nodeID}
// where nodeID is the 16 digit hex id of the node the message is addressed to,
// or of the node it comes from for upstream reports.

// Downstream: host -> node.
const (
	// DfuStart carries a start request for this node or one of its peers.
	// Pattern: {root}/dfu/start/{nodeID}
	DfuStart = "dfu/start"

	// DfuChunk carries one piece of an image destined for the staging partition.
	// Pattern: {root}/dfu/chunk/{nodeID}
	DfuChunk = "dfu/chunk"

	// DfuRelayResult is the transfer engine's verdict on a relayed update.
	// Pattern: {root}/dfu/relay/result/{nodeID}
	DfuRelayResult = "dfu/relay/result"

	// InfoRequest asks this node to describe itself.
	// Pattern: {root}/mesh/info/request/{nodeID}
	InfoRequest = "mesh/info/request"

	// NeighborsRequest asks this node for its neighbor table.
	// Pattern: {root}/mesh/neighbors/request/{nodeID}
	NeighborsRequest = "mesh/neighbors/request"
)

// Peer traffic: node <-> node, addressed by the sender.
const (
	// Heartbeat is the periodic liveness message of a node.
	// Pattern: {root}/mesh/heartbeat/{nodeID}
	Heartbeat = "mesh/heartbeat"

	// InfoReply answers an info request.
	// Pattern: {root}/mesh/info/reply/{nodeID}
	InfoReply = "mesh/info/reply"
)

// Upstream: node -> host.
const (
	// Register announces the node's identity after it connects.
	// Pattern: {root}/register/{nodeID}
	Register = "register"

	// Online is the retained online/offline status, also used as the will topic.
	// Pattern: {root}/online/{nodeID}
	Online = "online"

	// DfuChunkAck acknowledges or rejects one chunk write.
	// Pattern: {root}/dfu/chunk/ack/{nodeID}
	DfuChunkAck = "dfu/chunk/ack"

	// DfuFinish reports the outcome of an update session.
	// Pattern: {root}/dfu/finish/{nodeID}
	DfuFinish = "dfu/finish"

	// DfuRelay hands a peer update to the transfer engine.
	// Pattern: {root}/dfu/relay/{nodeID}
	DfuRelay = "dfu/relay"

	// NeighborsReply carries the neighbor table.
	// Pattern: {root}/mesh/neighbors/reply/{nodeID}
	NeighborsReply = "mesh/neighbors/reply"
)
