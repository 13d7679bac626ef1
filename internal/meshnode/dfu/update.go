package dfu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/pkg/metrics"
	"github.com/autopeer-io/meshnode/pkg/log"
)

// selfUpdate installs the staged image into the alternate slot and resets into
// it. On success it does not return.
func (o *Orchestrator) selfUpdate(ctx context.Context, sess *session) error {
	o.machine.step(EventErase)

	area, err := o.hal.Flash().OpenAlternate()
	if err != nil {
		return &Error{Code: FlashOpenFailed, Op: "open slot", Err: err}
	}

	size := int64(AlignedSize(sess.req.Info.Size, area.BlockSize()))
	if err := area.Erase(0, size); err != nil {
		closeArea(area)
		return &Error{Code: EraseFailed, Op: "erase slot", Err: err}
	}

	o.machine.step(EventCopy)
	if err := o.copyImage(ctx, area, sess.req.Info.Size); err != nil {
		closeArea(area)
		return err
	}
	if err := area.Close(); err != nil {
		return &Error{Code: PartitionWriteFailed, Op: "close slot", Err: err}
	}

	o.machine.step(EventReset)
	if err := o.reboot.Arm(sess.req.Info.BuildID); err != nil {
		return &Error{Code: Aborted, Op: "arm reboot", Err: err}
	}
	if err := o.hal.Boot().SetPending(); err != nil {
		if cerr := o.reboot.Clear(); cerr != nil {
			log.Error(cerr, "Failed to clear reboot info")
		}
		return &Error{Code: Aborted, Op: "set pending", Err: err}
	}

	sess.diverged = true
	log.Info("Image installed, resetting into it", "buildID", fmt.Sprintf("%08x", sess.req.Info.BuildID))
	o.hal.Boot().Reset("dfu self update")
	panic("dfu: reset returned")
}

// copyImage moves size bytes from the staging partition into the start of area
// through a buffer of CopyBufferSize bytes.
func (o *Orchestrator) copyImage(ctx context.Context, area core.FlashArea, size uint32) error {
	buf := make([]byte, o.cfg.CopyBufferSize)
	src := int64(o.cfg.ImageStartOffset)

	var off int64
	for remaining := int64(size); remaining > 0; {
		n := min(remaining, int64(len(buf)))

		rctx, cancel := context.WithTimeout(ctx, o.cfg.FlashTimeout)
		err := o.hal.Staging().Read(rctx, src+off, buf[:n])
		cancel()
		if err != nil {
			return &Error{Code: PartitionReadFailed, Op: "read staging", Err: err}
		}

		if err := area.Write(off, buf[:n]); err != nil {
			return &Error{Code: PartitionWriteFailed, Op: "write slot", Err: err}
		}

		off += n
		remaining -= n
	}
	return nil
}

func closeArea(area core.FlashArea) {
	if err := area.Close(); err != nil {
		log.Error(err, "Failed to close flash slot")
	}
}

// remoteUpdate powers the peer bus and hands the image to the transfer engine.
// The power gate is restored by conclude after the outcome is reported.
func (o *Orchestrator) remoteUpdate(ctx context.Context, sess *session) error {
	power := o.hal.Power()

	o.machine.step(EventAwaitInit)
	if !power.InitPeriodElapsed() {
		return &Error{Code: InitPeriodNotElapsed, Op: "await init"}
	}

	o.machine.step(EventRequestPower)
	sess.gateWasEnabled = power.ControlEnabled()
	if sess.gateWasEnabled {
		power.EnableControl(false)
		sess.restoreGate = func() {
			power.EnableControl(true)
			log.Debug("Power control restored")
		}
	}

	o.machine.step(EventWaitPower)
	begin := o.clock.Now()
	ok := power.WaitForSignal(ctx, true, o.cfg.PowerTimeout)
	metrics.DfuPowerWait.Observe(o.clock.Now().Sub(begin).Seconds())
	if !ok {
		return &Error{Code: PowerGateTimeout, Op: "wait power", Err: ctx.Err()}
	}

	o.machine.step(EventTransfer)
	tctx, cancel := context.WithTimeout(ctx, o.cfg.TransferTimeout)
	defer cancel()

	err := o.engine.Transfer(tctx, sess.req, o.WriteChunk)
	var derr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &derr):
		return err
	case errors.Is(err, ErrEngineRejected):
		return &Error{Code: EngineRejected, Op: "transfer", Err: err}
	default:
		return &Error{Code: Aborted, Op: "transfer", Err: err}
	}
}

// CheckForUpdate runs once at boot. When the previous boot installed an image
// it confirms the running image if it is the expected build, otherwise it
// reports the mismatch and resets so the bootloader reverts. Start requests are
// accepted only after it returns.
func (o *Orchestrator) CheckForUpdate(ctx context.Context) {
	info, armed, err := o.reboot.Consume()
	if err != nil {
		log.Error(err, "Reboot info slot failed")
	}

	if armed {
		self := o.hal.NodeID()
		running := o.hal.BuildID()
		if info.BuildID == running {
			err := o.hal.Boot().Confirm()
			if err != nil {
				err = &Error{Code: Aborted, Op: "confirm", Err: err}
			} else {
				log.Info("Updated image confirmed", "buildID", fmt.Sprintf("%08x", running))
			}
			metrics.DfuSessions.WithLabelValues("self", CodeOf(err).String()).Inc()
			o.report(ctx, self, err)
		} else {
			err := &Error{Code: WrongVersionAfterReboot, Op: "reboot check",
				Err: fmt.Errorf("expected build %08x, running %08x", info.BuildID, running)}
			log.Error(err, "Booted the wrong image, reverting")
			metrics.DfuSessions.WithLabelValues("self", CodeOf(err).String()).Inc()
			o.report(ctx, self, err)

			o.wait(ctx, o.cfg.RebootDelay)
			o.hal.Boot().Reset("dfu revert")
			panic("dfu: reset returned")
		}
	}

	o.mu.Lock()
	o.machine.step(EventReady)
	o.mu.Unlock()
}

// wait pauses for d so the report can leave before a reset. It returns early
// when ctx ends.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration) {
	t := o.clock.Timer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
