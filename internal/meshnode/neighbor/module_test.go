package neighbor

import (
	"context"
	"encoding"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
)

const selfID = 0x10

// fakeHAL only answers identity questions.
type fakeHAL struct {
	core.HAL
}

func (fakeHAL) NodeID() uint64 { return selfID }
func (fakeHAL) DeviceInfo() core.DeviceInfo {
	return core.DeviceInfo{VendorID: 0x1234, GitSHA: 0xcafe, VersionMajor: 3}
}
func (fakeHAL) Version() string    { return "3.0.0" }
func (fakeHAL) DeviceName() string { return "bridge" }

type sent struct {
	event  core.EventType
	nodeID uint64
	msg    encoding.BinaryMarshaler
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeSender) Send(context.Context, core.EventType, uint64, []byte) error {
	return nil
}

func (f *fakeSender) SendMessage(_ context.Context, event core.EventType, nodeID uint64, msg encoding.BinaryMarshaler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{event: event, nodeID: nodeID, msg: msg})
	return nil
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func newTestModule(t *testing.T) (*Module, *fakeSender, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	m := NewModule(mock, 10*time.Second)
	s := &fakeSender{}
	require.NoError(t, m.Setup(context.Background(), fakeHAL{}, s))
	return m, s, mock
}

func TestModuleHeartbeat(t *testing.T) {
	m, s, mock := newTestModule(t)
	ctx := context.Background()

	require.NoError(t, m.HandleHeartbeat(ctx, &wire.Heartbeat{NodeID: selfID, PeriodS: 10}))
	_, ok := m.Table().Find(selfID)
	assert.False(t, ok, "own heartbeat is ignored")

	require.NoError(t, m.HandleHeartbeat(ctx, &wire.Heartbeat{NodeID: 0x20, Port: 2, UptimeUs: 10, PeriodS: 10}))
	m.Table().Wait()

	rec, ok := m.Table().Find(0x20)
	require.True(t, ok)
	assert.True(t, rec.Online)
	assert.Equal(t, mock.Now(), rec.LastHeartbeat)

	out := s.all()
	require.Len(t, out, 1)
	assert.Equal(t, core.EventInfoRequest, out[0].event)
	assert.Equal(t, uint64(0x20), out[0].nodeID)
	assert.Equal(t, &wire.InfoRequest{NodeID: selfID, Target: 0x20}, out[0].msg)
}

func TestModuleInfoExchange(t *testing.T) {
	m, s, _ := newTestModule(t)
	ctx := context.Background()

	require.NoError(t, m.HandleInfoRequest(ctx, &wire.InfoRequest{NodeID: 0x20, Target: selfID}))
	out := s.all()
	require.Len(t, out, 1)
	reply := out[0].msg.(*wire.InfoReply)
	assert.Equal(t, core.EventInfoReply, out[0].event)
	assert.Equal(t, uint64(selfID), out[0].nodeID)
	assert.Equal(t, uint16(0x1234), reply.VendorID)
	assert.Equal(t, "bridge", reply.DeviceName)

	_, err := m.Table().UpdateOrCreate(0x20, 1)
	require.NoError(t, err)
	m.Table().Wait()
	require.NoError(t, m.HandleInfoReply(ctx, &wire.InfoReply{NodeID: 0x20, GitSHA: 7, Serial: []byte{1, 2}, VersionString: "1.1.0"}))

	rec, _ := m.Table().Find(0x20)
	assert.Equal(t, uint32(7), rec.Info.GitSHA)
	assert.Equal(t, byte(2), rec.Info.Serial[1])
	require.NotNil(t, rec.VersionString)
	assert.Equal(t, "1.1.0", *rec.VersionString)
	assert.Nil(t, rec.DeviceName)

	require.NoError(t, m.HandleInfoReply(ctx, &wire.InfoReply{NodeID: 0x99}), "replies from strangers are dropped")
}

func TestModuleNeighborsRequest(t *testing.T) {
	m, s, mock := newTestModule(t)
	ctx := context.Background()

	require.NoError(t, m.HandleHeartbeat(ctx, &wire.Heartbeat{NodeID: 0x20, Port: 1, PeriodS: 10}))
	m.Table().Wait()
	mock.Add(1500 * time.Millisecond)

	require.NoError(t, m.HandleNeighborsRequest(ctx, &wire.NeighborsRequest{NodeID: 1, Target: 0x55}))
	assert.Len(t, s.all(), 1, "requests for another node are ignored")

	require.NoError(t, m.HandleNeighborsRequest(ctx, &wire.NeighborsRequest{NodeID: 1}))
	out := s.all()
	require.Len(t, out, 2)
	reply := out[1].msg.(*wire.NeighborsReply)
	assert.Equal(t, core.EventNeighborsReply, out[1].event)
	assert.Equal(t, []wire.Neighbor{{NodeID: 0x20, Port: 1, Online: true, PeriodS: 10, LastHeartbeatMs: 1500}}, reply.Neighbors)
}

func TestModuleRoutes(t *testing.T) {
	m, _, _ := newTestModule(t)
	routes := m.Routes()
	for _, ev := range []core.EventType{core.EventHeartbeat, core.EventInfoRequest, core.EventInfoReply, core.EventNeighborsRequest, core.EventNeighborsReply} {
		assert.Contains(t, routes, ev)
	}
}

func TestModuleRunSendsHeartbeat(t *testing.T) {
	m, s, _ := newTestModule(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.all()) > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	first := s.all()[0]
	assert.Equal(t, core.EventHeartbeat, first.event)
	assert.Equal(t, uint32(10), first.msg.(*wire.Heartbeat).PeriodS)
}

func TestSweeper(t *testing.T) {
	mock := clock.NewMock()
	table := NewTable(nil)
	require.NoError(t, table.Heartbeat(1, 0, 0, 10, mock.Now()))
	require.NoError(t, table.Heartbeat(2, 0, 0, 30, mock.Now()))

	s := NewSweeper(table, mock, time.Second)
	mock.Add(25 * time.Second)
	s.Sweep()

	one, _ := table.Find(1)
	two, _ := table.Find(2)
	assert.False(t, one.Online)
	assert.True(t, two.Online)
	assert.Equal(t, 2, table.Count())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
