package options

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HalOptions)(nil)

const (
	ResetModeExit   = "exit"
	ResetModeReboot = "reboot"
)

// HalOptions selects the backing files and behaviour of the hardware layer.
type HalOptions struct {
	// NodeID is the hex node id. Empty means discover it from the environment.
	NodeID     string `json:"node-id" mapstructure:"node-id"`
	DeviceName string `json:"device-name" mapstructure:"device-name"`
	Version    string `json:"version" mapstructure:"version"`

	StagingPath    string `json:"staging-path" mapstructure:"staging-path"`
	StagingSize    int64  `json:"staging-size" mapstructure:"staging-size"`
	FlashPath      string `json:"flash-path" mapstructure:"flash-path"`
	FlashBlockSize uint32 `json:"flash-block-size" mapstructure:"flash-block-size"`
	RetainedPath   string `json:"retained-path" mapstructure:"retained-path"`

	// ResetMode is "exit" to end the process or "reboot" to restart the host.
	ResetMode string `json:"reset-mode" mapstructure:"reset-mode"`

	PowerControlEnabled bool          `json:"power-control-enabled" mapstructure:"power-control-enabled"`
	PowerInitPeriod     time.Duration `json:"power-init-period" mapstructure:"power-init-period"`
	PowerSettleTime     time.Duration `json:"power-settle-time" mapstructure:"power-settle-time"`
}

func NewHalOptions() *HalOptions {
	return &HalOptions{
		StagingPath:         "/var/lib/meshnode/staging.bin",
		StagingSize:         1 << 20,
		FlashPath:           "/var/lib/meshnode/slot-b.bin",
		FlashBlockSize:      0x2000,
		RetainedPath:        "/dev/shm/meshnode-noinit",
		ResetMode:           ResetModeExit,
		PowerControlEnabled: true,
		PowerInitPeriod:     2 * time.Minute,
		PowerSettleTime:     100 * time.Millisecond,
	}
}

func (o *HalOptions) Validate() []error {
	var errs []error

	if o.NodeID != "" {
		if id, err := strconv.ParseUint(o.NodeID, 16, 64); err != nil || id == 0 {
			errs = append(errs, fmt.Errorf("--hal.node-id %q is not a non-zero hex id", o.NodeID))
		}
	}
	switch o.ResetMode {
	case ResetModeExit, ResetModeReboot:
	default:
		errs = append(errs, fmt.Errorf("--hal.reset-mode must be %q or %q, got %q", ResetModeExit, ResetModeReboot, o.ResetMode))
	}
	if o.FlashBlockSize == 0 || o.FlashBlockSize&(o.FlashBlockSize-1) != 0 {
		errs = append(errs, fmt.Errorf("--hal.flash-block-size must be a power of two, got %d", o.FlashBlockSize))
	}
	if o.StagingSize <= 0 {
		errs = append(errs, fmt.Errorf("--hal.staging-size must be positive, got %d", o.StagingSize))
	}

	return errs
}

func (o *HalOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.NodeID, "hal.node-id", o.NodeID, "Hex node id. Falls back to $MESHNODE_NODE_ID and /etc/meshnode/node-id.")
	fs.StringVar(&o.DeviceName, "hal.device-name", o.DeviceName, "Device name reported to peers.")
	fs.StringVar(&o.Version, "hal.version", o.Version, "Version string reported to peers.")
	fs.StringVar(&o.StagingPath, "hal.staging-path", o.StagingPath, "File backing the staging partition.")
	fs.Int64Var(&o.StagingSize, "hal.staging-size", o.StagingSize, "Size of the staging partition in bytes.")
	fs.StringVar(&o.FlashPath, "hal.flash-path", o.FlashPath, "File backing the alternate firmware slot.")
	fs.Uint32Var(&o.FlashBlockSize, "hal.flash-block-size", o.FlashBlockSize, "Erase block size of the alternate slot.")
	fs.StringVar(&o.RetainedPath, "hal.retained-path", o.RetainedPath, "File holding state that survives a warm reset.")
	fs.StringVar(&o.ResetMode, "hal.reset-mode", o.ResetMode, "How a reset is carried out: 'exit' or 'reboot'.")
	fs.BoolVar(&o.PowerControlEnabled, "hal.power-control-enabled", o.PowerControlEnabled, "Start with bus power control enabled.")
	fs.DurationVar(&o.PowerInitPeriod, "hal.power-init-period", o.PowerInitPeriod, "Time after boot before the bus power controller is usable.")
	fs.DurationVar(&o.PowerSettleTime, "hal.power-settle-time", o.PowerSettleTime, "Time for the bus to report power on after control is released.")
}
