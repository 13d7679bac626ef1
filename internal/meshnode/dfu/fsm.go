package dfu

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/meshnode/internal/pkg/util/fsm"
	"github.com/autopeer-io/meshnode/pkg/log"
)

// Session states.
const (
	StateBooting         = "booting"
	StateIdle            = "idle"
	StateValidating      = "validating"
	StateErasing         = "erasing"
	StateCopying         = "copying"
	StateResetting       = "resetting"
	StateAwaitingInit    = "awaiting_init"
	StateRequestingPower = "requesting_power"
	StateWaitingPower    = "waiting_power"
	StateTransferring    = "transferring"
	StateFinished        = "finished"
	StateAborted         = "aborted"
)

const (
	// EventReady ends the reboot check.
	EventReady = "event_ready"
	// EventStart (Guarded) accepts a start request.
	EventStart = "event_start"

	EventErase = "event_erase"
	EventCopy  = "event_copy"
	EventReset = "event_reset"

	EventAwaitInit    = "event_await_init"
	EventRequestPower = "event_request_power"
	EventWaitPower    = "event_wait_power"
	EventTransfer     = "event_transfer"
	EventFinish       = "event_finish"

	EventAbort = "event_abort"
	// EventRelease returns a concluded session to idle.
	EventRelease = "event_release"
)

type sessionMachine struct {
	*fsm.FSM

	stagingSize   int64
	imageStartOff uint32
}

func newSessionMachine(stagingSize int64, imageStartOff uint32) *sessionMachine {
	m := &sessionMachine{stagingSize: stagingSize, imageStartOff: imageStartOff}

	// Marking the slot pending can still fail after the reset step began.
	working := []string{
		StateValidating, StateErasing, StateCopying, StateResetting,
		StateAwaitingInit, StateRequestingPower, StateWaitingPower, StateTransferring,
	}

	events := fsm.Events{
		{Name: EventReady, Src: []string{StateBooting}, Dst: StateIdle},
		{Name: EventStart, Src: []string{StateIdle}, Dst: StateValidating},

		// Self update
		{Name: EventErase, Src: []string{StateValidating}, Dst: StateErasing},
		{Name: EventCopy, Src: []string{StateErasing}, Dst: StateCopying},
		{Name: EventReset, Src: []string{StateCopying}, Dst: StateResetting},

		// Remote update
		{Name: EventAwaitInit, Src: []string{StateValidating}, Dst: StateAwaitingInit},
		{Name: EventRequestPower, Src: []string{StateAwaitingInit}, Dst: StateRequestingPower},
		{Name: EventWaitPower, Src: []string{StateRequestingPower}, Dst: StateWaitingPower},
		{Name: EventTransfer, Src: []string{StateWaitingPower}, Dst: StateTransferring},
		{Name: EventFinish, Src: []string{StateTransferring}, Dst: StateFinished},

		{Name: EventAbort, Src: working, Dst: StateAborted},
		{Name: EventRelease, Src: []string{StateFinished, StateAborted}, Dst: StateIdle},
	}

	callbacks := fsm.Callbacks{
		"before_" + EventStart: fsmutil.WrapEvent(m.GuardStart),
		"enter_state":          m.ActionEnterState,
	}

	m.FSM = fsm.NewFSM(StateBooting, events, callbacks)
	return m
}

// GuardStart refuses requests whose image cannot be in the staging partition.
func (m *sessionMachine) GuardStart(ctx context.Context, e *fsm.Event) error {
	req := e.Args[0].(StartRequest)
	if req.Info.Size == 0 {
		return fmt.Errorf("empty image")
	}
	if end := int64(m.imageStartOff) + int64(req.Info.Size); end > m.stagingSize {
		return fmt.Errorf("image of %d bytes does not fit the staging partition of %d bytes", req.Info.Size, m.stagingSize)
	}
	return nil
}

func (m *sessionMachine) ActionEnterState(ctx context.Context, e *fsm.Event) {
	log.Debug("DFU state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
}

// step fires a transition that the session flow guarantees to be valid.
func (m *sessionMachine) step(event string) {
	if err := m.Event(context.Background(), event); err != nil {
		log.Error(err, "Invalid DFU transition", "event", event, "state", m.Current())
	}
}
