package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DfuOptions)(nil)

// DfuOptions holds the firmware update tunables. The defaults match the values
// the bootloader and the peers were built with; change them together.
type DfuOptions struct {
	// ImageStartOffset is where the image begins inside the staging partition.
	ImageStartOffset uint32 `json:"image-start-offset" mapstructure:"image-start-offset"`

	CRCTimeout      time.Duration `json:"crc-timeout" mapstructure:"crc-timeout"`
	TransferTimeout time.Duration `json:"transfer-timeout" mapstructure:"transfer-timeout"`
	FlashTimeout    time.Duration `json:"flash-timeout" mapstructure:"flash-timeout"`
	PowerTimeout    time.Duration `json:"power-timeout" mapstructure:"power-timeout"`
	RebootDelay     time.Duration `json:"reboot-delay" mapstructure:"reboot-delay"`

	// CopyBufferSize bounds the staging to slot copy buffer.
	CopyBufferSize int `json:"copy-buffer-size" mapstructure:"copy-buffer-size"`
}

func NewDfuOptions() *DfuOptions {
	return &DfuOptions{
		ImageStartOffset: 2048,
		CRCTimeout:       30 * time.Second,
		TransferTimeout:  60 * time.Second,
		FlashTimeout:     3 * time.Second,
		PowerTimeout:     5 * time.Second,
		RebootDelay:      1 * time.Second,
		CopyBufferSize:   1024,
	}
}

func (o *DfuOptions) Validate() []error {
	var errs []error

	if o.CopyBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("--dfu.copy-buffer-size must be positive, got %d", o.CopyBufferSize))
	}
	for name, d := range map[string]time.Duration{
		"crc-timeout":      o.CRCTimeout,
		"transfer-timeout": o.TransferTimeout,
		"flash-timeout":    o.FlashTimeout,
		"power-timeout":    o.PowerTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("--dfu.%s must be positive, got %s", name, d))
		}
	}
	if o.RebootDelay < 0 {
		errs = append(errs, fmt.Errorf("--dfu.reboot-delay must not be negative, got %s", o.RebootDelay))
	}

	return errs
}

func (o *DfuOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Uint32Var(&o.ImageStartOffset, "dfu.image-start-offset", o.ImageStartOffset, "Offset of the image inside the staging partition.")
	fs.DurationVar(&o.CRCTimeout, "dfu.crc-timeout", o.CRCTimeout, "Timeout for the staged image CRC check.")
	fs.DurationVar(&o.TransferTimeout, "dfu.transfer-timeout", o.TransferTimeout, "Timeout for a complete transfer to a peer.")
	fs.DurationVar(&o.FlashTimeout, "dfu.flash-timeout", o.FlashTimeout, "Timeout for a single staging partition read or write.")
	fs.DurationVar(&o.PowerTimeout, "dfu.power-timeout", o.PowerTimeout, "Time to wait for the bus power signal before a peer update.")
	fs.DurationVar(&o.RebootDelay, "dfu.reboot-delay", o.RebootDelay, "Delay between reporting a version mismatch and resetting.")
	fs.IntVar(&o.CopyBufferSize, "dfu.copy-buffer-size", o.CopyBufferSize, "Size of the staging to flash copy buffer in bytes.")
}
