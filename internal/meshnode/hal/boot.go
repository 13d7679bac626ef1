package hal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/pkg/log"
	"github.com/autopeer-io/meshnode/pkg/options"
)

// resetExitCode tells the supervisor the node asked to be restarted.
const resetExitCode = 3

// Boot implements the bootloader handshake with marker files next to the
// alternate slot, the same way a swap-on-reset bootloader keeps its trailer.
type Boot struct {
	pendingPath string
	mode        string

	exit func(code int)
}

var _ core.BootAuthority = (*Boot)(nil)

func NewBoot(slotPath, mode string) *Boot {
	return &Boot{
		pendingPath: slotPath + ".pending",
		mode:        mode,
		exit:        os.Exit,
	}
}

func (b *Boot) SetPending() error {
	if err := os.WriteFile(b.pendingPath, []byte("test\n"), 0o600); err != nil {
		return fmt.Errorf("mark alternate slot pending: %w", err)
	}
	return nil
}

// Pending reports whether the alternate slot is marked for a trial boot.
func (b *Boot) Pending() bool {
	_, err := os.Stat(b.pendingPath)
	return err == nil
}

func (b *Boot) Confirm() error {
	if err := os.Remove(b.pendingPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("confirm running image: %w", err)
	}
	return nil
}

func (b *Boot) Reset(reason string) {
	log.Warn("Resetting node", "reason", reason, "mode", b.mode)
	_ = log.Sync()

	if b.mode == options.ResetModeReboot {
		if err := reboot(); err != nil {
			log.Error(err, "Reboot failed, exiting instead")
			_ = log.Sync()
		}
	}
	b.exit(resetExitCode)
}
