package hal

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/pkg/log"
)

const powerPollInterval = 10 * time.Millisecond

// SimPower simulates the bus power controller. While control is enabled the
// controller keeps the bus off; disabling control turns the bus on after the
// settle time.
type SimPower struct {
	clock      clock.Clock
	bootAt     time.Time
	initPeriod time.Duration
	settle     time.Duration

	mu        sync.Mutex
	enabled   bool
	changedAt time.Time
}

var _ core.PowerController = (*SimPower)(nil)

func NewSimPower(clk clock.Clock, enabled bool, initPeriod, settle time.Duration) *SimPower {
	now := clk.Now()
	return &SimPower{
		clock:      clk,
		bootAt:     now,
		initPeriod: initPeriod,
		settle:     settle,
		enabled:    enabled,
		changedAt:  now,
	}
}

func (p *SimPower) ControlEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *SimPower) EnableControl(enable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled == enable {
		return
	}
	p.enabled = enable
	p.changedAt = p.clock.Now()
	log.Debug("Bus power control changed", "enabled", enable)
}

func (p *SimPower) InitPeriodElapsed() bool {
	return p.clock.Now().Sub(p.bootAt) >= p.initPeriod
}

// busOn reports the simulated bus state at now.
func (p *SimPower) busOn(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return false
	}
	return now.Sub(p.changedAt) >= p.settle
}

func (p *SimPower) WaitForSignal(ctx context.Context, on bool, timeout time.Duration) bool {
	if p.busOn(p.clock.Now()) == on {
		return true
	}

	deadline := p.clock.Timer(timeout)
	defer deadline.Stop()
	poll := p.clock.Ticker(powerPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return p.busOn(p.clock.Now()) == on
		case now := <-poll.C:
			if p.busOn(now) == on {
				return true
			}
		}
	}
}
