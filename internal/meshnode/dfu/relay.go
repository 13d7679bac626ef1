package dfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
)

// relayEngine hands a peer update to the gateway that owns the peer link. It
// publishes the request and waits for the relay result of the target. Chunks
// for the staging partition arrive on the chunk route, not through write.
type relayEngine struct {
	sender core.Sender

	mu      sync.Mutex
	waiting map[uint64]chan wire.DfuFinish
}

var _ TransferEngine = (*relayEngine)(nil)

func newRelayEngine(sender core.Sender) *relayEngine {
	return &relayEngine{
		sender:  sender,
		waiting: make(map[uint64]chan wire.DfuFinish),
	}
}

func (r *relayEngine) Transfer(ctx context.Context, req StartRequest, write ChunkWriter) error {
	ch := make(chan wire.DfuFinish, 1)

	r.mu.Lock()
	if _, busy := r.waiting[req.Target]; busy {
		r.mu.Unlock()
		return fmt.Errorf("relay to %016x already pending", req.Target)
	}
	r.waiting[req.Target] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.waiting, req.Target)
		r.mu.Unlock()
	}()

	msg := &wire.DfuStart{
		Target:    req.Target,
		ImageSize: req.Info.Size,
		ChunkSize: req.Info.ChunkSize,
		CRC:       req.Info.CRC,
		Major:     req.Info.Major,
		Minor:     req.Info.Minor,
		FilterKey: req.Info.FilterKey,
		BuildID:   req.Info.BuildID,
	}
	if err := r.sender.SendMessage(ctx, core.EventDfuRelay, req.Target, msg); err != nil {
		return fmt.Errorf("publish relay request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Success {
			return nil
		}
		if ErrorCode(res.Code) == EngineRejected {
			return ErrEngineRejected
		}
		return &Error{Code: ErrorCode(res.Code), Op: "relay"}
	}
}

// deliver passes a relay result to the pending transfer. Results nobody waits
// for are dropped.
func (r *relayEngine) deliver(res wire.DfuFinish) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.waiting[res.NodeID]
	if !ok {
		return false
	}
	select {
	case ch <- res:
	default:
	}
	return true
}
