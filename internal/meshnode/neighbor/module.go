package neighbor

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
	"github.com/autopeer-io/meshnode/pkg/log"
)

// Module connects the table to the mesh: it consumes heartbeats and info
// replies, answers info and neighbor table requests, and sends this node's
// own heartbeat.
type Module struct {
	table  *Table
	clock  clock.Clock
	period time.Duration
	bootAt time.Time

	self     core.Identity
	sender   core.Sender
	topology *Topology
}

// ModuleOption tunes a Module.
type ModuleOption func(*Module)

// WithTopologyTimeout sets how long a topology walk waits for each node.
func WithTopologyTimeout(d time.Duration) ModuleOption {
	return func(m *Module) {
		m.topology.timeout = d
	}
}

var (
	_ core.Module   = (*Module)(nil)
	_ InfoRequester = (*Module)(nil)
)

// NewModule creates the module and the table it feeds. period is the heartbeat
// period this node advertises.
func NewModule(clk clock.Clock, period time.Duration, opts ...ModuleOption) *Module {
	m := &Module{
		clock:  clk,
		period: period,
		bootAt: clk.Now(),
	}
	m.table = NewTable(m)
	m.topology = newTopology(m, DefaultTopologyTimeout)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Table() *Table {
	return m.table
}

func (m *Module) Topology() *Topology {
	return m.topology
}

func (m *Module) Name() string {
	return "neighbor"
}

func (m *Module) Setup(ctx context.Context, hal core.HAL, sender core.Sender) error {
	m.self = hal
	m.sender = sender
	return nil
}

func (m *Module) Routes() map[core.EventType]core.HandlerFunc {
	return map[core.EventType]core.HandlerFunc{
		core.EventHeartbeat:        core.MessageAdapter(m.HandleHeartbeat),
		core.EventInfoRequest:      core.MessageAdapter(m.HandleInfoRequest),
		core.EventInfoReply:        core.MessageAdapter(m.HandleInfoReply),
		core.EventNeighborsRequest: core.MessageAdapter(m.HandleNeighborsRequest),
		core.EventNeighborsReply:   core.MessageAdapter(m.HandleNeighborsReply),
	}
}

// RequestInfo asks nodeID for an info reply.
func (m *Module) RequestInfo(ctx context.Context, nodeID uint64) error {
	return m.sender.SendMessage(ctx, core.EventInfoRequest, nodeID, &wire.InfoRequest{
		NodeID: m.self.NodeID(),
		Target: nodeID,
	})
}

func (m *Module) HandleHeartbeat(ctx context.Context, hb *wire.Heartbeat) error {
	if hb.NodeID == m.self.NodeID() {
		return nil
	}
	return m.table.Heartbeat(hb.NodeID, hb.Port, hb.UptimeUs, hb.PeriodS, m.clock.Now())
}

func (m *Module) HandleInfoRequest(ctx context.Context, req *wire.InfoRequest) error {
	info := m.self.DeviceInfo()
	return m.sender.SendMessage(ctx, core.EventInfoReply, m.self.NodeID(), &wire.InfoReply{
		NodeID:        m.self.NodeID(),
		VendorID:      info.VendorID,
		ProductID:     info.ProductID,
		Serial:        info.Serial[:],
		GitSHA:        info.GitSHA,
		VersionMajor:  info.VersionMajor,
		VersionMinor:  info.VersionMinor,
		VersionPatch:  info.VersionPatch,
		HwRevision:    info.HwRevision,
		VersionString: m.self.Version(),
		DeviceName:    m.self.DeviceName(),
	})
}

func (m *Module) HandleInfoReply(ctx context.Context, reply *wire.InfoReply) error {
	if reply.NodeID == m.self.NodeID() {
		return nil
	}

	info := core.DeviceInfo{
		VendorID:     reply.VendorID,
		ProductID:    reply.ProductID,
		GitSHA:       reply.GitSHA,
		VersionMajor: reply.VersionMajor,
		VersionMinor: reply.VersionMinor,
		VersionPatch: reply.VersionPatch,
		HwRevision:   reply.HwRevision,
	}
	copy(info.Serial[:], reply.Serial)

	if err := m.table.SetInfo(reply.NodeID, info, reply.VersionString, reply.DeviceName); err != nil {
		// Replies from nodes that are no longer neighbors are expected.
		log.Debug("Dropping info reply", "nodeID", fmt.Sprintf("%016x", reply.NodeID), "err", err)
	}
	return nil
}

func (m *Module) HandleNeighborsRequest(ctx context.Context, req *wire.NeighborsRequest) error {
	if req.Target != 0 && req.Target != m.self.NodeID() {
		return nil
	}

	reply := &wire.NeighborsReply{
		NodeID:    m.self.NodeID(),
		Neighbors: m.entries(m.clock.Now()),
	}
	return m.sender.SendMessage(ctx, core.EventNeighborsReply, m.self.NodeID(), reply)
}

// HandleNeighborsReply feeds a running topology walk. Replies nobody waits for
// are dropped.
func (m *Module) HandleNeighborsReply(ctx context.Context, reply *wire.NeighborsReply) error {
	if reply.NodeID == m.self.NodeID() {
		return nil
	}
	if !m.topology.deliver(reply) {
		log.Debug("Dropping neighbor table reply", "nodeID", fmt.Sprintf("%016x", reply.NodeID))
	}
	return nil
}

// entries is the table as sent in a neighbor table reply, swept at now.
func (m *Module) entries(now time.Time) []wire.Neighbor {
	records := m.table.Snapshot(now)
	out := make([]wire.Neighbor, 0, len(records))
	for _, r := range records {
		entry := wire.Neighbor{
			NodeID:  r.NodeID,
			Port:    r.Port,
			Online:  r.Online,
			PeriodS: r.HeartbeatPeriodS,
		}
		if !r.LastHeartbeat.IsZero() {
			entry.LastHeartbeatMs = uint64(now.Sub(r.LastHeartbeat).Milliseconds())
		}
		out = append(out, entry)
	}
	return out
}

// Run publishes this node's heartbeat every period until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.period)
	defer ticker.Stop()

	m.sendHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sendHeartbeat(ctx)
		}
	}
}

func (m *Module) sendHeartbeat(ctx context.Context) {
	hb := &wire.Heartbeat{
		NodeID:   m.self.NodeID(),
		UptimeUs: uint64(m.clock.Now().Sub(m.bootAt).Microseconds()),
		PeriodS:  uint32(m.period / time.Second),
	}
	if err := m.sender.SendMessage(ctx, core.EventHeartbeat, hb.NodeID, hb); err != nil {
		log.Warn("Heartbeat not sent", "err", err)
	}
}
