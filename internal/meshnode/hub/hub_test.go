package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
	"github.com/autopeer-io/meshnode/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/meshnode/pkg/mqtt/topic"
)

type published struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	published []published
	subs      map[string]mqtt.MessageHandler
	subErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeClient) Start(context.Context) error           { return nil }
func (f *fakeClient) Disconnect(context.Context)            {}
func (f *fakeClient) AwaitConnection(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool                     { return true }
func (f *fakeClient) Unsubscribe(context.Context, string) error {
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, _ int, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, retain: retain, payload: payload})
	return nil
}

func (f *fakeClient) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = handler
	return nil
}

func TestHubRegisterTopics(t *testing.T) {
	fc := newFakeClient()
	h := New(0xab, fc, mqtttopic.NewBuilder("mesh/v1"))

	noop := func(context.Context, []byte) error { return nil }
	require.NoError(t, h.Register(core.EventDfuStart, noop))
	require.NoError(t, h.Register(core.EventHeartbeat, noop))
	require.Error(t, h.Register(core.EventDfuStart, noop), "duplicate route")
	require.Error(t, h.Register(core.EventType("bogus"), noop))

	require.NoError(t, h.Start(context.Background()))

	assert.Contains(t, fc.subs, "mesh/v1/dfu/start/00000000000000ab")
	assert.Contains(t, fc.subs, "mesh/v1/mesh/heartbeat/+")
	assert.Len(t, fc.subs, 2)
}

func TestHubDispatch(t *testing.T) {
	fc := newFakeClient()
	h := New(1, fc, mqtttopic.NewBuilder("mesh/v1"))

	got := make(chan *wire.DfuChunk, 1)
	require.NoError(t, h.Register(core.EventDfuChunk, core.MessageAdapter(func(_ context.Context, m *wire.DfuChunk) error {
		got <- m
		return nil
	})))
	require.NoError(t, h.Start(context.Background()))

	payload, err := (&wire.DfuChunk{Offset: 16, Data: []byte{1}}).MarshalBinary()
	require.NoError(t, err)
	fc.subs["mesh/v1/dfu/chunk/0000000000000001"](context.Background(), "mesh/v1/dfu/chunk/0000000000000001", payload)

	m := <-got
	assert.Equal(t, uint32(16), m.Offset)
}

func TestHubSend(t *testing.T) {
	fc := newFakeClient()
	h := New(1, fc, mqtttopic.NewBuilder("mesh/v1"))
	ctx := context.Background()

	require.NoError(t, h.SendMessage(ctx, core.EventInfoRequest, 0x22, &wire.InfoRequest{NodeID: 1, Target: 0x22}))
	require.NoError(t, h.SendMessage(ctx, core.EventOnline, 1, &wire.OnlineStatus{NodeID: 1, Online: true}))
	require.Error(t, h.Send(ctx, core.EventType("bogus"), 1, nil))

	require.Len(t, fc.published, 2)
	assert.Equal(t, "mesh/v1/mesh/info/request/0000000000000022", fc.published[0].topic)
	assert.False(t, fc.published[0].retain)
	assert.Equal(t, "mesh/v1/online/0000000000000001", fc.published[1].topic)
	assert.True(t, fc.published[1].retain)
}

func TestHubStartSubscribeError(t *testing.T) {
	fc := newFakeClient()
	fc.subErr = errors.New("broker gone")
	h := New(1, fc, mqtttopic.NewBuilder("mesh/v1"))
	require.NoError(t, h.Register(core.EventDfuStart, func(context.Context, []byte) error { return nil }))

	err := h.Start(context.Background())
	require.ErrorIs(t, err, fc.subErr)
}
