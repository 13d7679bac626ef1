package dfu

import (
	"bytes"
	"context"
	"encoding"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/pkg/crc"
)

const (
	selfID  uint64 = 0x0102030405060708
	peerID  uint64 = 0x1112131415161718
	buildID uint32 = 0x0000beef
)

// journal records the order of side effects across fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type memPartition struct {
	mu       sync.Mutex
	data     []byte
	readErr  error
	writeErr error
	crcErr   error
}

func newMemPartition(size int) *memPartition {
	return &memPartition{data: make([]byte, size)}
}

func (p *memPartition) Size() int64 { return int64(len(p.data)) }

func (p *memPartition) Read(_ context.Context, off int64, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return p.readErr
	}
	copy(b, p.data[off:off+int64(len(b))])
	return nil
}

func (p *memPartition) Write(_ context.Context, off int64, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return p.writeErr
	}
	if off+int64(len(b)) > int64(len(p.data)) {
		return errors.New("write past end")
	}
	copy(p.data[off:], b)
	return nil
}

func (p *memPartition) CRC16(_ context.Context, off, n int64) (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.crcErr != nil {
		return 0, p.crcErr
	}
	return crc.Checksum(p.data[off : off+n]), nil
}

func (p *memPartition) bytesAt(off, n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.data[off:off+n]...)
}

type memArea struct {
	blockSize uint32
	data      []byte
	erased    []int64
	eraseErr  error
	closed    int
}

func (a *memArea) BlockSize() uint32 { return a.blockSize }

func (a *memArea) Erase(off, n int64) error {
	if a.eraseErr != nil {
		return a.eraseErr
	}
	a.erased = append(a.erased, off, n)
	for i := off; i < off+n; i++ {
		a.data[i] = 0xff
	}
	return nil
}

func (a *memArea) Write(off int64, p []byte) error {
	copy(a.data[off:], p)
	return nil
}

func (a *memArea) Close() error {
	a.closed++
	return nil
}

type fakeFlash struct {
	area    *memArea
	opens   int
	openErr error
}

func (f *fakeFlash) OpenAlternate() (core.FlashArea, error) {
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.area, nil
}

type fakeBoot struct {
	j          *journal
	pending    bool
	pendingErr error
	confirmErr error
	confirms   int
	resets     int
}

func (b *fakeBoot) SetPending() error {
	if b.pendingErr != nil {
		return b.pendingErr
	}
	b.pending = true
	return nil
}

func (b *fakeBoot) Confirm() error {
	b.confirms++
	return b.confirmErr
}

// Reset ends the calling goroutine like a real reset ends the process.
func (b *fakeBoot) Reset(reason string) {
	b.resets++
	b.j.add("reset")
	runtime.Goexit()
}

type memRetained struct {
	data     [rebootInfoSize]byte
	storeErr error
}

func (r *memRetained) Load(p []byte) error {
	copy(p, r.data[:])
	return nil
}

func (r *memRetained) Store(p []byte) error {
	if r.storeErr != nil {
		return r.storeErr
	}
	copy(r.data[:], p)
	return nil
}

type fakePower struct {
	j       *journal
	mu      sync.Mutex
	enabled bool
	elapsed bool
	signal  bool
	waits   int
}

func (p *fakePower) ControlEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *fakePower) EnableControl(enable bool) {
	p.mu.Lock()
	p.enabled = enable
	p.mu.Unlock()
	p.j.add("gate %t", enable)
}

func (p *fakePower) InitPeriodElapsed() bool { return p.elapsed }

func (p *fakePower) WaitForSignal(context.Context, bool, time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return p.signal
}

type testHAL struct {
	build    uint32
	power    *fakePower
	staging  *memPartition
	flash    *fakeFlash
	boot     *fakeBoot
	retained *memRetained
}

var _ core.HAL = (*testHAL)(nil)

func (h *testHAL) NodeID() uint64              { return selfID }
func (h *testHAL) BuildID() uint32             { return h.build }
func (h *testHAL) DeviceInfo() core.DeviceInfo { return core.DeviceInfo{} }
func (h *testHAL) Version() string             { return "1.0.0" }
func (h *testHAL) DeviceName() string          { return "test" }
func (h *testHAL) Power() core.PowerController { return h.power }
func (h *testHAL) Staging() core.Partition     { return h.staging }
func (h *testHAL) Flash() core.Flash           { return h.flash }
func (h *testHAL) Boot() core.BootAuthority    { return h.boot }
func (h *testHAL) Retained() core.Retained     { return h.retained }

type recordingReporter struct {
	j        *journal
	mu       sync.Mutex
	finishes []Finish
	acks     []uint32
}

func (r *recordingReporter) ReportFinish(_ context.Context, f Finish) error {
	r.mu.Lock()
	r.finishes = append(r.finishes, f)
	r.mu.Unlock()
	r.j.add("finish %s", f.Code)
	return nil
}

func (r *recordingReporter) AckChunk(_ context.Context, offset uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, offset)
	return nil
}

func (r *recordingReporter) reported() []Finish {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Finish(nil), r.finishes...)
}

type engineFunc func(ctx context.Context, req StartRequest, write ChunkWriter) error

func (f engineFunc) Transfer(ctx context.Context, req StartRequest, write ChunkWriter) error {
	return f(ctx, req, write)
}

type sentMessage struct {
	event  core.EventType
	nodeID uint64
	msg    encoding.BinaryMarshaler
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(context.Context, core.EventType, uint64, []byte) error {
	return nil
}

func (f *fakeSender) SendMessage(_ context.Context, event core.EventType, nodeID uint64, msg encoding.BinaryMarshaler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{event: event, nodeID: nodeID, msg: msg})
	return nil
}

func (f *fakeSender) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// testImage returns size bytes of image content.
func testImage(size int) []byte {
	return bytes.Repeat([]byte{0xa5, 0x01, 0x5a, 0x7e}, size/4+1)[:size]
}
