// Package hal provides the platform the node runs on: its identity, the bus
// power controller, the staging partition, the alternate slot, the bootloader
// handshake and reset-surviving memory. Everything is backed by files so the
// node runs unchanged on a development host.
package hal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/benbjohnson/clock"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/pkg/log"
	"github.com/autopeer-io/meshnode/pkg/options"
)

// HAL is the file backed platform.
type HAL struct {
	*identity

	power    *SimPower
	staging  *FilePartition
	flash    *FileFlash
	boot     *Boot
	retained *FileRetained
}

var _ core.HAL = (*HAL)(nil)

// New builds the platform described by opts.
func New(opts *options.HalOptions, clk clock.Clock) (*HAL, error) {
	nodeID := DiscoverNodeID(opts.NodeID)
	if nodeID == 0 {
		return nil, fmt.Errorf("unable to discover the node id, set --hal.node-id or $%s", nodeIDEnv)
	}

	for _, p := range []string{opts.StagingPath, opts.FlashPath, opts.RetainedPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", p, err)
		}
	}

	staging, err := OpenFilePartition(opts.StagingPath, opts.StagingSize)
	if err != nil {
		return nil, err
	}

	major, minor, patch := parseVersion(opts.Version)
	id := &identity{
		nodeID:  nodeID,
		version: opts.Version,
		name:    opts.DeviceName,
		info: core.DeviceInfo{
			GitSHA:       parseGitSHA(GitSHA),
			VersionMajor: major,
			VersionMinor: minor,
			VersionPatch: patch,
		},
	}
	// The serial is the big endian node id, left padded.
	for i := 0; i < 8; i++ {
		id.info.Serial[15-i] = byte(nodeID >> (8 * i))
	}

	slotSize := (opts.StagingSize + int64(opts.FlashBlockSize) - 1) / int64(opts.FlashBlockSize) * int64(opts.FlashBlockSize)

	h := &HAL{
		identity: id,
		power:    NewSimPower(clk, opts.PowerControlEnabled, opts.PowerInitPeriod, opts.PowerSettleTime),
		staging:  staging,
		flash:    NewFileFlash(opts.FlashPath, slotSize, opts.FlashBlockSize),
		boot:     NewBoot(opts.FlashPath, opts.ResetMode),
		retained: NewFileRetained(opts.RetainedPath),
	}

	log.Info("Platform ready",
		"nodeID", fmt.Sprintf("%016x", nodeID),
		"buildID", fmt.Sprintf("%08x", id.BuildID()),
		"staging", opts.StagingPath,
		"slot", opts.FlashPath,
		"pending", h.boot.Pending())

	return h, nil
}

func (h *HAL) Power() core.PowerController { return h.power }
func (h *HAL) Staging() core.Partition       { return h.staging }
func (h *HAL) Flash() core.Flash             { return h.flash }
func (h *HAL) Boot() core.BootAuthority      { return h.boot }
func (h *HAL) Retained() core.Retained       { return h.retained }

// Close releases the staging partition.
func (h *HAL) Close() error {
	return h.staging.Close()
}
