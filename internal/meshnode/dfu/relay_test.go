package dfu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
)

func runRelay(ctx context.Context, t *testing.T, r *relayEngine, res *wire.DfuFinish) error {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		done <- r.Transfer(ctx, StartRequest{Target: peerID, Info: ImageInfo{Size: 10, CRC: 0x1234, BuildID: buildID}}, nil)
	}()

	if res != nil {
		require.Eventually(t, func() bool { return r.deliver(*res) }, time.Second, time.Millisecond)
	}
	return <-done
}

func TestRelayEngine(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &fakeSender{}
		r := newRelayEngine(s)

		err := runRelay(context.Background(), t, r, &wire.DfuFinish{NodeID: peerID, Success: true})
		require.NoError(t, err)

		sent := s.all()
		require.Len(t, sent, 1)
		assert.Equal(t, core.EventDfuRelay, sent[0].event)
		assert.Equal(t, peerID, sent[0].nodeID)
		assert.Equal(t, &wire.DfuStart{Target: peerID, ImageSize: 10, CRC: 0x1234, BuildID: buildID}, sent[0].msg)
	})

	t.Run("rejected", func(t *testing.T) {
		r := newRelayEngine(&fakeSender{})
		err := runRelay(context.Background(), t, r, &wire.DfuFinish{NodeID: peerID, Code: uint32(EngineRejected)})
		assert.ErrorIs(t, err, ErrEngineRejected)
		assert.Equal(t, EngineRejected, CodeOf(err))
	})

	t.Run("peer failure code", func(t *testing.T) {
		r := newRelayEngine(&fakeSender{})
		err := runRelay(context.Background(), t, r, &wire.DfuFinish{NodeID: peerID, Code: uint32(CRCMismatch)})
		assert.Equal(t, CRCMismatch, CodeOf(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		r := newRelayEngine(&fakeSender{})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := runRelay(ctx, t, r, nil)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.False(t, r.deliver(wire.DfuFinish{NodeID: peerID}), "waiter removed")
	})

	t.Run("unexpected result", func(t *testing.T) {
		r := newRelayEngine(&fakeSender{})
		assert.False(t, r.deliver(wire.DfuFinish{NodeID: peerID, Success: true}))
	})
}
