// Package meshnode assembles a mesh node: the platform, the MQTT hub, the
// neighbor and update modules and the local HTTP listener.
package meshnode

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/meshnode/dfu"
	"github.com/autopeer-io/meshnode/internal/meshnode/hub"
	"github.com/autopeer-io/meshnode/internal/meshnode/neighbor"
	"github.com/autopeer-io/meshnode/internal/meshnode/server"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
	"github.com/autopeer-io/meshnode/pkg/log"
	mqtttopic "github.com/autopeer-io/meshnode/pkg/mqtt/topic"
	"github.com/autopeer-io/meshnode/pkg/options"
)

// Platform is the HAL the agent owns.
type Platform interface {
	core.HAL
	Close() error
}

type Agent struct {
	clock    clock.Clock
	platform Platform
	hub      *hub.Hub

	neighbors *neighbor.Module
	dfu       *dfu.Module
	sweeper   *neighbor.Sweeper

	httpOptions *options.HttpOptions

	ready atomic.Bool
}

func NewAgent(
	clk clock.Clock,
	platform Platform,
	hub *hub.Hub,
	neighbors *neighbor.Module,
	dfuModule *dfu.Module,
	sweepInterval time.Duration,
	httpOptions *options.HttpOptions,
) *Agent {
	return &Agent{
		clock:       clk,
		platform:    platform,
		hub:         hub,
		neighbors:   neighbors,
		dfu:         dfuModule,
		sweeper:     neighbor.NewSweeper(neighbors.Table(), clk, sweepInterval),
		httpOptions: httpOptions,
	}
}

func (a *Agent) modules() []core.Module {
	return []core.Module{a.neighbors, a.dfu}
}

func (a *Agent) Run(ctx context.Context) error {
	nodeID := mqtttopic.NodeID(a.platform.NodeID())
	log.Info("Starting meshnode", "nodeID", nodeID, "version", a.platform.Version())
	defer func() {
		if err := a.platform.Close(); err != nil {
			log.Error(err, "Failed to close platform")
		}
	}()

	for _, m := range a.modules() {
		if err := m.Setup(ctx, a.platform, a.hub); err != nil {
			return fmt.Errorf("module %s setup failed: %w", m.Name(), err)
		}

		for event, handler := range m.Routes() {
			if err := a.hub.Register(event, handler); err != nil {
				return fmt.Errorf("module %s register event %s failed: %w", m.Name(), event, err)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.httpOptions.Enabled {
		srv := server.NewServer(a.httpOptions, server.Sources{
			Neighbors: a.neighbors.Table(),
			Topology:  a.neighbors.Topology().Walk,
			DfuStatus: a.dfu.Orchestrator().Status,
			Ready:     a.Ready,
			Clock:     a.clock,
		})
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	g.Go(func() error {
		return a.runNode(gctx)
	})

	err := g.Wait()
	log.Info("meshnode stopped", "nodeID", nodeID)
	return err
}

// Ready reports whether the node is connected and accepts update requests.
func (a *Agent) Ready() bool {
	return a.ready.Load() && a.hub.IsConnected()
}

func (a *Agent) runNode(ctx context.Context) error {
	if err := a.hub.Start(ctx); err != nil {
		return err
	}
	defer a.hub.Stop()

	a.announce(ctx)
	a.dfu.Orchestrator().CheckForUpdate(ctx)
	a.ready.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.sweeper.Run(gctx)
	})
	g.Go(func() error {
		return a.neighbors.Run(gctx)
	})
	err := g.Wait()

	log.Info("Agent shutting down...")
	a.ready.Store(false)
	a.goOffline()
	a.neighbors.Table().Wait()
	return err
}

// announce publishes the retained online status and registration.
func (a *Agent) announce(ctx context.Context) {
	self := a.platform.NodeID()

	online := &wire.OnlineStatus{NodeID: self, Online: true, Reason: "Connected"}
	if err := a.hub.SendMessage(ctx, core.EventOnline, self, online); err != nil {
		log.Error(err, "Failed to publish online status")
	}

	req := &wire.Register{
		NodeID:        self,
		BuildID:       a.platform.BuildID(),
		VersionString: a.platform.Version(),
		DeviceName:    a.platform.DeviceName(),
		Timestamp:     a.clock.Now().Unix(),
	}
	if err := a.hub.SendMessage(ctx, core.EventRegister, self, req); err != nil {
		log.Error(err, "Failed to send registration")
		return
	}

	log.Info("Sent registration", "version", req.VersionString, "buildID", fmt.Sprintf("%08x", req.BuildID))
}

// goOffline replaces the retained online status before a clean disconnect, so
// the will is not needed.
func (a *Agent) goOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	self := a.platform.NodeID()
	status := &wire.OnlineStatus{NodeID: self, Online: false, Reason: "Shutdown"}
	if err := a.hub.SendMessage(ctx, core.EventOnline, self, status); err != nil {
		log.Warn("Offline status not sent", "err", err)
	}
}
