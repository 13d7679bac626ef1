package dfu

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
	"github.com/autopeer-io/meshnode/pkg/log"
)

// Module connects the orchestrator to the mesh.
type Module struct {
	cfg   Config
	clock clock.Clock

	orch  *Orchestrator
	relay *relayEngine
}

var _ core.Module = (*Module)(nil)

func NewModule(cfg Config, clk clock.Clock) *Module {
	return &Module{cfg: cfg, clock: clk}
}

func (m *Module) Name() string {
	return "dfu"
}

// Orchestrator is nil until Setup ran.
func (m *Module) Orchestrator() *Orchestrator {
	return m.orch
}

func (m *Module) Setup(ctx context.Context, hal core.HAL, sender core.Sender) error {
	if hal.Staging().Size() <= int64(m.cfg.ImageStartOffset) {
		return fmt.Errorf("staging partition of %d bytes has no room after offset %d", hal.Staging().Size(), m.cfg.ImageStartOffset)
	}

	m.relay = newRelayEngine(sender)
	m.orch = NewOrchestrator(m.cfg, hal, &senderReporter{nodeID: hal.NodeID(), sender: sender}, m.relay, m.clock)
	return nil
}

func (m *Module) Routes() map[core.EventType]core.HandlerFunc {
	return map[core.EventType]core.HandlerFunc{
		core.EventDfuStart:       core.MessageAdapter(m.HandleStart),
		core.EventDfuChunk:       core.MessageAdapter(m.HandleChunk),
		core.EventDfuRelayResult: core.MessageAdapter(m.HandleRelayResult),
	}
}

func (m *Module) HandleStart(ctx context.Context, msg *wire.DfuStart) error {
	req := StartRequest{
		Target: msg.Target,
		Info: ImageInfo{
			Size:      msg.ImageSize,
			ChunkSize: msg.ChunkSize,
			CRC:       msg.CRC,
			Major:     msg.Major,
			Minor:     msg.Minor,
			FilterKey: msg.FilterKey,
			BuildID:   msg.BuildID,
		},
	}

	err := m.orch.Start(ctx, req)
	if errors.Is(err, ErrSessionBusy) || errors.Is(err, ErrNotReady) {
		return nil
	}
	return err
}

func (m *Module) HandleChunk(ctx context.Context, msg *wire.DfuChunk) error {
	return m.orch.WriteChunk(ctx, msg.Offset, msg.Data)
}

func (m *Module) HandleRelayResult(ctx context.Context, msg *wire.DfuFinish) error {
	if !m.relay.deliver(*msg) {
		log.Debug("Dropping unexpected relay result", "nodeID", fmt.Sprintf("%016x", msg.NodeID))
	}
	return nil
}

// senderReporter publishes reports under this node's own topics.
type senderReporter struct {
	nodeID uint64
	sender core.Sender
}

func (r *senderReporter) ReportFinish(ctx context.Context, f Finish) error {
	return r.sender.SendMessage(ctx, core.EventDfuFinish, r.nodeID, &wire.DfuFinish{
		NodeID:  f.NodeID,
		Success: f.Success,
		Code:    uint32(f.Code),
	})
}

func (r *senderReporter) AckChunk(ctx context.Context, offset uint32) error {
	return r.sender.SendMessage(ctx, core.EventDfuChunkAck, r.nodeID, &wire.DfuChunkAck{Offset: offset})
}
