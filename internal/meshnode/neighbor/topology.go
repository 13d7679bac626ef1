package neighbor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
	"github.com/autopeer-io/meshnode/pkg/log"
)

// DefaultTopologyTimeout bounds the wait for one node's neighbor table.
const DefaultTopologyTimeout = time.Second

var (
	ErrWalkInProgress = errors.New("topology walk already in progress")

	errNoReply = errors.New("no neighbor table reply")
)

// NodeTable is the neighbor table one node reported during a walk.
type NodeTable struct {
	NodeID    uint64
	Root      bool
	Neighbors []wire.Neighbor
}

// Topology maps the mesh beyond the direct neighbors. It asks every online
// node it learns about for its neighbor table, one node at a time, starting
// from this node's own table.
type Topology struct {
	m       *Module
	timeout time.Duration

	walking atomic.Bool

	mu      sync.Mutex
	target  uint64
	replies chan wire.NeighborsReply
}

func newTopology(m *Module, timeout time.Duration) *Topology {
	return &Topology{m: m, timeout: timeout}
}

// Walk returns the tables of every node reachable from this one, depth first
// in port order, with this node first. Nodes that do not answer within the
// timeout are left out and the walk goes on with the rest.
func (t *Topology) Walk(ctx context.Context) ([]NodeTable, error) {
	if !t.walking.CompareAndSwap(false, true) {
		return nil, ErrWalkInProgress
	}
	defer t.walking.Store(false)

	self := t.m.self.NodeID()
	root := NodeTable{NodeID: self, Root: true, Neighbors: t.m.entries(t.m.clock.Now())}

	out := []NodeTable{root}
	seen := map[uint64]bool{self: true}
	stack := push(nil, root.Neighbors, seen)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		reply, err := t.request(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			log.Warn("Skipping node in topology walk", "nodeID", fmt.Sprintf("%016x", id), "err", err)
			continue
		}

		out = append(out, NodeTable{NodeID: id, Neighbors: reply.Neighbors})
		stack = push(stack, reply.Neighbors, seen)
	}

	log.Debug("Topology walk done", "nodes", len(out))
	return out, nil
}

// push adds the unseen online neighbors so that the first one is popped first.
func push(stack []uint64, neighbors []wire.Neighbor, seen map[uint64]bool) []uint64 {
	for i := len(neighbors) - 1; i >= 0; i-- {
		n := neighbors[i]
		if n.NodeID != 0 && n.Online && !seen[n.NodeID] {
			stack = append(stack, n.NodeID)
		}
	}
	return stack
}

func (t *Topology) request(ctx context.Context, nodeID uint64) (wire.NeighborsReply, error) {
	ch := make(chan wire.NeighborsReply, 1)

	t.mu.Lock()
	t.target, t.replies = nodeID, ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.target, t.replies = 0, nil
		t.mu.Unlock()
	}()

	req := &wire.NeighborsRequest{NodeID: t.m.self.NodeID(), Target: nodeID}
	if err := t.m.sender.SendMessage(ctx, core.EventNeighborsRequest, nodeID, req); err != nil {
		return wire.NeighborsReply{}, err
	}

	timer := t.m.clock.Timer(t.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return wire.NeighborsReply{}, fmt.Errorf("%w within %s", errNoReply, t.timeout)
	case <-ctx.Done():
		return wire.NeighborsReply{}, ctx.Err()
	}
}

// deliver hands reply to the walk waiting for it.
func (t *Topology) deliver(reply *wire.NeighborsReply) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.replies == nil || reply.NodeID != t.target {
		return false
	}
	select {
	case t.replies <- *reply:
	default:
	}
	return true
}

// PrintTopology writes one line per node of a walk to w.
func PrintTopology(w io.Writer, tables []NodeTable) error {
	table := uitable.New()
	table.MaxColWidth = 120
	table.AddRow("NODE", "ROOT", "NEIGHBORS")
	for _, nt := range tables {
		peers := make([]string, 0, len(nt.Neighbors))
		for _, n := range nt.Neighbors {
			state := "up"
			if !n.Online {
				state = "down"
			}
			peers = append(peers, fmt.Sprintf("%016x@%d(%s)", n.NodeID, n.Port, state))
		}
		list := strings.Join(peers, " ")
		if list == "" {
			list = "-"
		}
		table.AddRow(fmt.Sprintf("%016x", nt.NodeID), nt.Root, list)
	}

	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d nodes\n", len(tables))
	return err
}
