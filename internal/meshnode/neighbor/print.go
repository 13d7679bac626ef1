package neighbor

import (
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
)

// PrintInfo writes the stored description of nodeID to w.
func (t *Table) PrintInfo(w io.Writer, nodeID uint64) error {
	r, ok := t.Find(nodeID)
	if !ok {
		return fmt.Errorf("%016x: %w", nodeID, ErrNotFound)
	}

	table := uitable.New()
	table.MaxColWidth = 64
	table.AddRow("Node:", fmt.Sprintf("%016x", r.NodeID))
	table.AddRow("VID:", fmt.Sprintf("%04x", r.Info.VendorID))
	table.AddRow("PID:", fmt.Sprintf("%04x", r.Info.ProductID))
	table.AddRow("Serial:", fmt.Sprintf("%x", r.Info.Serial[:]))
	table.AddRow("GIT SHA:", fmt.Sprintf("%08x", r.Info.GitSHA))
	table.AddRow("Version:", fmt.Sprintf("%d.%d.%d", r.Info.VersionMajor, r.Info.VersionMinor, r.Info.VersionPatch))
	table.AddRow("HW Ver:", r.Info.HwRevision)
	if r.VersionString != nil {
		table.AddRow("VersionStr:", *r.VersionString)
	}
	if r.DeviceName != nil {
		table.AddRow("Device Name:", *r.DeviceName)
	}

	_, err := fmt.Fprintln(w, table)
	return err
}

// PrintTable sweeps the table at now and writes one line per neighbor to w.
func (t *Table) PrintTable(w io.Writer, now time.Time) error {
	records := t.Snapshot(now)

	table := uitable.New()
	table.AddRow("NODE", "PORT", "ONLINE", "PERIOD", "LAST HEARTBEAT", "VERSION")
	for _, r := range records {
		last := "never"
		if !r.LastHeartbeat.IsZero() {
			last = now.Sub(r.LastHeartbeat).Truncate(time.Millisecond).String() + " ago"
		}
		version := "-"
		if r.VersionString != nil {
			version = *r.VersionString
		}
		table.AddRow(fmt.Sprintf("%016x", r.NodeID), r.Port, r.Online, fmt.Sprintf("%ds", r.HeartbeatPeriodS), last, version)
	}

	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d neighbors\n", t.Count())
	return err
}
