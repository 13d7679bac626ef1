package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*NeighborOptions)(nil)

// NeighborOptions configures neighbor liveness tracking.
type NeighborOptions struct {
	// SweepInterval is how often every neighbor's liveness is checked.
	SweepInterval time.Duration `json:"sweep-interval" mapstructure:"sweep-interval"`

	// HeartbeatPeriod is advertised in this node's own heartbeats.
	HeartbeatPeriod time.Duration `json:"heartbeat-period" mapstructure:"heartbeat-period"`

	// TopologyTimeout bounds the wait for each node's table during a topology walk.
	TopologyTimeout time.Duration `json:"topology-timeout" mapstructure:"topology-timeout"`
}

func NewNeighborOptions() *NeighborOptions {
	return &NeighborOptions{
		SweepInterval:   time.Second,
		HeartbeatPeriod: 10 * time.Second,
		TopologyTimeout: time.Second,
	}
}

func (o *NeighborOptions) Validate() []error {
	var errs []error

	if o.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("--neighbor.sweep-interval must be positive, got %s", o.SweepInterval))
	}
	if o.HeartbeatPeriod < time.Second {
		errs = append(errs, fmt.Errorf("--neighbor.heartbeat-period must be at least 1s, got %s", o.HeartbeatPeriod))
	}

	if o.TopologyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--neighbor.topology-timeout must be positive, got %s", o.TopologyTimeout))
	}

	return errs
}

func (o *NeighborOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.SweepInterval, "neighbor.sweep-interval", o.SweepInterval, "Interval between neighbor liveness sweeps.")
	fs.DurationVar(&o.HeartbeatPeriod, "neighbor.heartbeat-period", o.HeartbeatPeriod, "Heartbeat period advertised by this node.")
	fs.DurationVar(&o.TopologyTimeout, "neighbor.topology-timeout", o.TopologyTimeout, "How long a topology walk waits for each node's neighbor table.")
}
