// Package neighbor tracks the peers of this node and their liveness.
package neighbor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/pkg/metrics"
	"github.com/autopeer-io/meshnode/pkg/log"
)

const infoRequestTimeout = 5 * time.Second

var (
	// ErrNotFound is returned for operations on an id the table does not hold.
	ErrNotFound = errors.New("neighbor not found")

	// ErrReservedID is returned for node id 0, which addresses every node.
	ErrReservedID = errors.New("node id 0 is reserved")
)

// ContractError is the panic value for misuse of the table by its caller.
type ContractError struct {
	Op     string
	NodeID uint64
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("neighbor %s: node %016x is not in the table", e.Op, e.NodeID)
}

// InfoRequester asks a peer to describe itself. The reply arrives separately.
type InfoRequester interface {
	RequestInfo(ctx context.Context, nodeID uint64) error
}

// Table is the set of known peers, kept in the order they were discovered.
type Table struct {
	requester InfoRequester

	mu      sync.RWMutex
	records map[uint64]*Record
	order   []uint64
	// count is refreshed by ForEach only.
	count int

	requests sync.WaitGroup
}

// NewTable returns an empty table. requester may be nil.
func NewTable(requester InfoRequester) *Table {
	return &Table{
		requester: requester,
		records:   make(map[uint64]*Record),
	}
}

// Find returns a copy of the record for nodeID. Node id 0 never matches.
func (t *Table) Find(nodeID uint64) (Record, bool) {
	if nodeID == 0 {
		return Record{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[nodeID]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// UpdateOrCreate returns the record for nodeID, adding it when missing. A new
// record starts offline and triggers an asynchronous info request. If another
// caller adds the same id first, that record wins and no request is sent.
func (t *Table) UpdateOrCreate(nodeID uint64, port uint8) (Record, error) {
	rec, _, err := t.updateOrCreate(nodeID, port)
	return rec, err
}

func (t *Table) updateOrCreate(nodeID uint64, port uint8) (Record, bool, error) {
	if nodeID == 0 {
		return Record{}, false, ErrReservedID
	}
	if r, ok := t.Find(nodeID); ok {
		return r, false, nil
	}

	fresh := &Record{NodeID: nodeID, Port: port}

	t.mu.Lock()
	if existing, ok := t.records[nodeID]; ok {
		out := existing.clone()
		t.mu.Unlock()
		log.Debug("Discarded duplicate neighbor", "nodeID", fmt.Sprintf("%016x", nodeID))
		return out, false, nil
	}
	t.records[nodeID] = fresh
	t.order = append(t.order, nodeID)
	out := fresh.clone()
	t.mu.Unlock()

	log.Info("New neighbor", "nodeID", fmt.Sprintf("%016x", nodeID), "port", port)
	t.requestInfo(nodeID)
	return out, true, nil
}

// RemoveAndFree removes nodeID and releases the strings it owns. Removing an
// id that is not in the table is a programming error and panics with a
// *ContractError.
func (t *Table) RemoveAndFree(nodeID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[nodeID]
	if !ok {
		err := &ContractError{Op: "remove", NodeID: nodeID}
		log.Error(err, "Neighbor table contract violated")
		panic(err)
	}

	delete(t.records, nodeID)
	if i := slices.Index(t.order, nodeID); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
	r.release()
}

// ForEach calls fn for every record in discovery order and refreshes Count.
// fn may modify the record it is given but must not call back into the table
// or keep the pointer.
func (t *Table) ForEach(fn func(r *Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, id := range t.order {
		fn(t.records[id])
		n++
	}
	t.count = n
}

// Count returns the number of records seen by the last ForEach.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// CheckAllLiveness marks offline every online record whose last heartbeat is
// older than twice its period. It never marks a record online. It returns the
// number of records still online.
func (t *Table) CheckAllLiveness(now time.Time) int {
	online := 0
	t.ForEach(func(r *Record) {
		if !r.Online {
			return
		}
		if r.expired(now) {
			r.Online = false
			log.Info("Neighbor went offline",
				"nodeID", fmt.Sprintf("%016x", r.NodeID),
				"lastHeartbeat", r.LastHeartbeat,
				"periodS", r.HeartbeatPeriodS)
			return
		}
		online++
	})
	return online
}

// Heartbeat records a heartbeat from nodeID received at at. An uptime lower
// than the previous one means the peer rebooted, so its info is requested
// again.
func (t *Table) Heartbeat(nodeID uint64, port uint8, uptimeUs uint64, periodS uint32, at time.Time) error {
	if _, _, err := t.updateOrCreate(nodeID, port); err != nil {
		return err
	}

	t.mu.Lock()
	r, ok := t.records[nodeID]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}
	rebooted := uptimeUs < r.LastUptimeUs
	if !r.Online {
		log.Info("Neighbor is online", "nodeID", fmt.Sprintf("%016x", nodeID))
	}
	r.Online = true
	r.Port = port
	r.LastHeartbeat = at
	r.HeartbeatPeriodS = periodS
	r.LastUptimeUs = uptimeUs
	t.mu.Unlock()

	if rebooted {
		log.Info("Neighbor rebooted", "nodeID", fmt.Sprintf("%016x", nodeID), "uptimeUs", uptimeUs)
		t.requestInfo(nodeID)
	}
	return nil
}

// SetInfo stores the description from a peer's info reply.
func (t *Table) SetInfo(nodeID uint64, info core.DeviceInfo, version, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[nodeID]
	if !ok {
		return ErrNotFound
	}
	r.release()
	r.Info = info
	r.VersionString = optional(version)
	r.DeviceName = optional(name)
	return nil
}

// Snapshot sweeps the table at now and returns a copy of every record.
func (t *Table) Snapshot(now time.Time) []Record {
	t.CheckAllLiveness(now)

	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.records[id].clone())
	}
	return out
}

// Wait blocks until every info request in flight has finished.
func (t *Table) Wait() {
	t.requests.Wait()
}

func (t *Table) requestInfo(nodeID uint64) {
	if t.requester == nil {
		return
	}

	t.requests.Add(1)
	go func() {
		defer t.requests.Done()

		ctx, cancel := context.WithTimeout(context.Background(), infoRequestTimeout)
		defer cancel()

		if err := t.requester.RequestInfo(ctx, nodeID); err != nil {
			metrics.NeighborInfoRequests.WithLabelValues("failed").Inc()
			log.Error(err, "Info request failed", "nodeID", fmt.Sprintf("%016x", nodeID))
			return
		}
		metrics.NeighborInfoRequests.WithLabelValues("sent").Inc()
	}()
}
