package neighbor

import (
	"time"

	"k8s.io/utils/ptr"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
)

// Record is what the node knows about one peer. Records handed out by Table
// are copies; changing them does not change the table.
type Record struct {
	NodeID uint64
	// Port is the local port the peer was heard on.
	Port   uint8
	Online bool

	LastHeartbeat    time.Time
	HeartbeatPeriodS uint32
	LastUptimeUs     uint64

	Info core.DeviceInfo

	// Optional strings from the peer's info reply. They belong to the record.
	VersionString *string
	DeviceName    *string
}

func (r *Record) clone() Record {
	out := *r
	if r.VersionString != nil {
		out.VersionString = ptr.To(*r.VersionString)
	}
	if r.DeviceName != nil {
		out.DeviceName = ptr.To(*r.DeviceName)
	}
	return out
}

// release drops the strings owned by the record.
func (r *Record) release() {
	r.VersionString = nil
	r.DeviceName = nil
}

// expired reports whether the record missed two heartbeat periods at now.
func (r *Record) expired(now time.Time) bool {
	limit := 2 * time.Duration(r.HeartbeatPeriodS) * time.Second
	return now.Sub(r.LastHeartbeat) > limit
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return ptr.To(s)
}
