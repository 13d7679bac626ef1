// Package dfu orchestrates firmware updates of this node and of its peers.
//
// A session starts from a request naming the target node. The staged image is
// checked against the requested CRC, then either installed into the alternate
// slot followed by a reset (self update) or handed to a transfer engine after
// the peer bus is powered (remote update). After a self update the next boot
// confirms or reverts the new image.
package dfu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/pkg/metrics"
	"github.com/autopeer-io/meshnode/pkg/log"
)

const reportTimeout = 5 * time.Second

type session struct {
	req StartRequest

	// gateWasEnabled is the power control state before the session touched it.
	gateWasEnabled bool
	restoreGate    func()

	// diverged is set once the node is resetting. Nothing may be reported
	// or released after that.
	diverged bool
}

func (s *session) path(self uint64) string {
	if s.req.Target == self {
		return "self"
	}
	return "remote"
}

// Orchestrator runs at most one update session at a time.
type Orchestrator struct {
	cfg      Config
	hal      core.HAL
	reporter Reporter
	engine   TransferEngine
	reboot   *RebootState
	clock    clock.Clock

	mu      sync.Mutex
	machine *sessionMachine
	sess    *session
}

func NewOrchestrator(cfg Config, hal core.HAL, reporter Reporter, engine TransferEngine, clk clock.Clock) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		hal:      hal,
		reporter: reporter,
		engine:   engine,
		reboot:   NewRebootState(hal.Retained()),
		clock:    clk,
		machine:  newSessionMachine(hal.Staging().Size(), cfg.ImageStartOffset),
	}
}

// Status is a point in time view of the orchestrator.
type Status struct {
	State  string
	Target uint64
	Image  ImageInfo
	// GateWasEnabled is only meaningful during a remote update.
	GateWasEnabled bool
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{State: o.machine.Current()}
	if o.sess != nil {
		st.Target = o.sess.req.Target
		st.Image = o.sess.req.Info
		st.GateWasEnabled = o.sess.gateWasEnabled
	}
	return st
}

// Start runs a session for req and returns its outcome. A self update that
// succeeds resets the node and does not return. A request that arrives while
// another session runs is rejected with ErrSessionBusy and reported as aborted
// without touching the running session.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) error {
	sess, err := o.acquire(req)
	if err != nil {
		log.Warn("Rejected DFU start request", "target", fmt.Sprintf("%016x", req.Target), "err", err)
		o.report(ctx, req.Target, err)
		return err
	}

	log.Info("DFU session started",
		"target", fmt.Sprintf("%016x", req.Target),
		"path", sess.path(o.hal.NodeID()),
		"size", req.Info.Size,
		"crc", fmt.Sprintf("%#04x", req.Info.CRC),
		"version", fmt.Sprintf("%d.%d", req.Info.Major, req.Info.Minor),
		"buildID", fmt.Sprintf("%08x", req.Info.BuildID))

	return o.run(ctx, sess)
}

func (o *Orchestrator) acquire(req StartRequest) (*session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.machine.Is(StateBooting):
		return nil, ErrNotReady
	case !o.machine.Is(StateIdle):
		return nil, ErrSessionBusy
	}

	if err := o.machine.Event(context.Background(), EventStart, req); err != nil {
		var canceled fsm.CanceledError
		if errors.As(err, &canceled) {
			return nil, &Error{Code: Aborted, Op: "start", Err: canceled.Err}
		}
		return nil, ErrSessionBusy
	}

	o.sess = &session{req: req}
	return o.sess, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *session) (err error) {
	defer func() {
		o.conclude(ctx, sess, err)
	}()

	if err := o.validate(ctx, sess); err != nil {
		return err
	}

	if sess.req.Target == o.hal.NodeID() {
		return o.selfUpdate(ctx, sess)
	}
	return o.remoteUpdate(ctx, sess)
}

// validate checks the staged image against the requested CRC.
func (o *Orchestrator) validate(ctx context.Context, sess *session) error {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CRCTimeout)
	defer cancel()

	sum, err := o.hal.Staging().CRC16(cctx, int64(o.cfg.ImageStartOffset), int64(sess.req.Info.Size))
	if err != nil {
		return &Error{Code: CRCMismatch, Op: "validate", Err: err}
	}
	if sum != sess.req.Info.CRC {
		return &Error{Code: CRCMismatch, Op: "validate", Err: fmt.Errorf("staged image has %#04x, request has %#04x", sum, sess.req.Info.CRC)}
	}
	return nil
}

// conclude reports the outcome, restores the power gate and releases the
// session. It does nothing once the node is resetting.
func (o *Orchestrator) conclude(ctx context.Context, sess *session, err error) {
	if sess.diverged {
		return
	}

	if err == nil {
		o.machine.step(EventFinish)
		log.Info("DFU session finished", "target", fmt.Sprintf("%016x", sess.req.Target))
	} else {
		o.machine.step(EventAbort)
		log.Error(err, "DFU session aborted", "target", fmt.Sprintf("%016x", sess.req.Target), "code", CodeOf(err))
	}

	o.report(ctx, sess.req.Target, err)
	if sess.restoreGate != nil {
		sess.restoreGate()
	}
	metrics.DfuSessions.WithLabelValues(sess.path(o.hal.NodeID()), CodeOf(err).String()).Inc()

	o.mu.Lock()
	o.machine.step(EventRelease)
	o.sess = nil
	o.mu.Unlock()
}

// report sends one finish report. It outlives ctx so a cancelled session is
// still reported.
func (o *Orchestrator) report(ctx context.Context, nodeID uint64, err error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	f := Finish{NodeID: nodeID, Success: err == nil, Code: CodeOf(err)}
	if rerr := o.reporter.ReportFinish(rctx, f); rerr != nil {
		log.Error(rerr, "Failed to send DFU finish report", "target", fmt.Sprintf("%016x", nodeID), "code", f.Code)
	}
}

// WriteChunk stores data at offset within the image and acknowledges it. A
// failed write is acknowledged with NakFlag set. It is not retried.
func (o *Orchestrator) WriteChunk(ctx context.Context, offset uint32, data []byte) error {
	var err error
	if offset&NakFlag != 0 {
		err = fmt.Errorf("offset %#x has the NAK bit set", offset)
	} else {
		wctx, cancel := context.WithTimeout(ctx, o.cfg.FlashTimeout)
		err = o.hal.Staging().Write(wctx, int64(o.cfg.ImageStartOffset)+int64(offset), data)
		cancel()
	}

	if err != nil {
		metrics.DfuChunkWrites.WithLabelValues("nak").Inc()
		if ackErr := o.reporter.AckChunk(ctx, offset|NakFlag); ackErr != nil {
			log.Error(ackErr, "Failed to send chunk NAK", "offset", offset)
		}
		return &Error{Code: PartitionWriteFailed, Op: "write chunk", Err: err}
	}

	metrics.DfuChunkWrites.WithLabelValues("ack").Inc()
	return o.reporter.AckChunk(ctx, offset)
}
