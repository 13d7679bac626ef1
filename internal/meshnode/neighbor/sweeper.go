package neighbor

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/autopeer-io/meshnode/internal/pkg/metrics"
	"github.com/autopeer-io/meshnode/pkg/log"
)

// Sweeper periodically demotes neighbors that stopped sending heartbeats.
type Sweeper struct {
	table    *Table
	clock    clock.Clock
	interval time.Duration
}

func NewSweeper(table *Table, clk clock.Clock, interval time.Duration) *Sweeper {
	return &Sweeper{table: table, clock: clk, interval: interval}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Info("Starting liveness sweeper", "interval", s.interval)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one liveness pass.
func (s *Sweeper) Sweep() {
	online := s.table.CheckAllLiveness(s.clock.Now())
	metrics.NeighborsTotal.Set(float64(s.table.Count()))
	metrics.NeighborsOnline.Set(float64(online))
}
