package meshnode

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/autopeer-io/meshnode/internal/meshnode/dfu"
	"github.com/autopeer-io/meshnode/internal/meshnode/hal"
	"github.com/autopeer-io/meshnode/internal/meshnode/hub"
	"github.com/autopeer-io/meshnode/internal/meshnode/neighbor"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
	"github.com/autopeer-io/meshnode/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/meshnode/pkg/mqtt/topic"
	"github.com/autopeer-io/meshnode/pkg/options"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type published struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	published []published
	subs      []string
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

func (f *fakeClient) Subscribe(_ context.Context, topic string, _ int, _ mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, topic)
	return nil
}

func (f *fakeClient) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.published {
		out = append(out, p.topic)
	}
	return out
}

func (f *fakeClient) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

func TestAgentRun(t *testing.T) {
	dir := t.TempDir()
	halOpts := options.NewHalOptions()
	halOpts.NodeID = "00000000000000ab"
	halOpts.StagingPath = filepath.Join(dir, "staging.bin")
	halOpts.StagingSize = 0x4000
	halOpts.FlashPath = filepath.Join(dir, "slot.bin")
	halOpts.RetainedPath = filepath.Join(dir, "noinit")

	clk := clock.New()
	platform, err := hal.New(halOpts, clk)
	require.NoError(t, err)

	fc := &fakeClient{}
	httpOpts := options.NewHttpOptions()
	httpOpts.Enabled = false

	a := NewAgent(
		clk,
		platform,
		hub.New(platform.NodeID(), fc, mqtttopic.NewBuilder("mesh/v1")),
		neighbor.NewModule(clk, time.Hour),
		dfu.NewModule(dfu.DefaultConfig(), clk),
		time.Hour,
		httpOpts,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, a.Ready, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{
			"mesh/v1/online/00000000000000ab",
			"mesh/v1/register/00000000000000ab",
			"mesh/v1/mesh/heartbeat/00000000000000ab",
		}, fc.topics())
	}, 2*time.Second, 5*time.Millisecond)

	fc.mu.Lock()
	assert.True(t, fc.published[0].retain)
	assert.True(t, fc.published[1].retain)
	assert.False(t, fc.published[2].retain)
	assert.ElementsMatch(t, []string{
		"mesh/v1/mesh/heartbeat/+",
		"mesh/v1/mesh/info/request/00000000000000ab",
		"mesh/v1/mesh/info/reply/+",
		"mesh/v1/mesh/neighbors/request/00000000000000ab",
		"mesh/v1/mesh/neighbors/reply/+",
		"mesh/v1/dfu/start/00000000000000ab",
		"mesh/v1/dfu/chunk/00000000000000ab",
		"mesh/v1/dfu/relay/result/00000000000000ab",
	}, fc.subs)
	fc.mu.Unlock()

	assert.Equal(t, dfu.StateIdle, a.dfu.Orchestrator().Status().State)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}

	last := fc.last()
	assert.Equal(t, "mesh/v1/online/00000000000000ab", last.topic)
	var status wire.OnlineStatus
	require.NoError(t, status.UnmarshalBinary(last.payload))
	assert.Equal(t, wire.OnlineStatus{NodeID: 0xab, Online: false, Reason: "Shutdown"}, status)
	assert.False(t, a.Ready())
}

func TestConfigDfu(t *testing.T) {
	cfg := &Config{DfuOptions: options.NewDfuOptions()}
	assert.Equal(t, dfu.DefaultConfig(), cfg.dfuConfig())
}
