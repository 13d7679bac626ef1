package wire

// Heartbeat is broadcast periodically by every node.
type Heartbeat struct {
	NodeID   uint64
	UptimeUs uint64
	PeriodS  uint32
	Port     uint8
}

func (m *Heartbeat) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	e.uint(2, m.UptimeUs)
	e.uint(3, uint64(m.PeriodS))
	e.uint(4, uint64(m.Port))
	return e.b, nil
}

func (m *Heartbeat) UnmarshalBinary(b []byte) error {
	*m = Heartbeat{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			return f.uint64(&m.UptimeUs)
		case 3:
			return f.uint32(&m.PeriodS)
		case 4:
			return f.uint8(&m.Port)
		}
		return 0, nil
	})
}

// InfoRequest asks Target to publish an InfoReply.
type InfoRequest struct {
	NodeID uint64
	Target uint64
}

func (m *InfoRequest) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	e.uint(2, m.Target)
	return e.b, nil
}

func (m *InfoRequest) UnmarshalBinary(b []byte) error {
	*m = InfoRequest{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			return f.uint64(&m.Target)
		}
		return 0, nil
	})
}

// InfoReply describes a node.
type InfoReply struct {
	NodeID        uint64
	VendorID      uint16
	ProductID     uint16
	Serial        []byte
	GitSHA        uint32
	VersionMajor  uint8
	VersionMinor  uint8
	VersionPatch  uint8
	HwRevision    uint8
	VersionString string
	DeviceName    string
}

func (m *InfoReply) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	e.uint(2, uint64(m.VendorID))
	e.uint(3, uint64(m.ProductID))
	e.bytes(4, m.Serial)
	e.uint(5, uint64(m.GitSHA))
	e.uint(6, uint64(m.VersionMajor))
	e.uint(7, uint64(m.VersionMinor))
	e.uint(8, uint64(m.VersionPatch))
	e.uint(9, uint64(m.HwRevision))
	e.string(10, m.VersionString)
	e.string(11, m.DeviceName)
	return e.b, nil
}

func (m *InfoReply) UnmarshalBinary(b []byte) error {
	*m = InfoReply{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			return f.uint16(&m.VendorID)
		case 3:
			return f.uint16(&m.ProductID)
		case 4:
			return f.bytes(&m.Serial)
		case 5:
			return f.uint32(&m.GitSHA)
		case 6:
			return f.uint8(&m.VersionMajor)
		case 7:
			return f.uint8(&m.VersionMinor)
		case 8:
			return f.uint8(&m.VersionPatch)
		case 9:
			return f.uint8(&m.HwRevision)
		case 10:
			return f.string(&m.VersionString)
		case 11:
			return f.string(&m.DeviceName)
		}
		return 0, nil
	})
}

// NeighborsRequest asks Target for its neighbor table. A zero Target addresses
// whichever node receives it.
type NeighborsRequest struct {
	NodeID uint64
	Target uint64
}

func (m *NeighborsRequest) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	e.uint(2, m.Target)
	return e.b, nil
}

func (m *NeighborsRequest) UnmarshalBinary(b []byte) error {
	*m = NeighborsRequest{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			return f.uint64(&m.Target)
		}
		return 0, nil
	})
}

// Neighbor is one entry of a NeighborsReply.
type Neighbor struct {
	NodeID  uint64
	Port    uint8
	Online  bool
	PeriodS uint32
	// LastHeartbeatMs is the age of the last heartbeat in milliseconds.
	LastHeartbeatMs uint64
}

func (m *Neighbor) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	e.uint(2, uint64(m.Port))
	e.bool(3, m.Online)
	e.uint(4, uint64(m.PeriodS))
	e.uint(5, m.LastHeartbeatMs)
	return e.b, nil
}

func (m *Neighbor) UnmarshalBinary(b []byte) error {
	*m = Neighbor{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			return f.uint8(&m.Port)
		case 3:
			return f.bool(&m.Online)
		case 4:
			return f.uint32(&m.PeriodS)
		case 5:
			return f.uint64(&m.LastHeartbeatMs)
		}
		return 0, nil
	})
}

// NeighborsReply carries a node's neighbor table.
type NeighborsReply struct {
	NodeID    uint64
	Neighbors []Neighbor
}

func (m *NeighborsReply) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	for i := range m.Neighbors {
		b, err := m.Neighbors[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		e.message(2, b)
	}
	return e.b, nil
}

func (m *NeighborsReply) UnmarshalBinary(b []byte) error {
	*m = NeighborsReply{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			var raw []byte
			n, err := f.bytes(&raw)
			if err != nil {
				return 0, err
			}
			var nb Neighbor
			if err := nb.UnmarshalBinary(raw); err != nil {
				return 0, err
			}
			m.Neighbors = append(m.Neighbors, nb)
			return n, nil
		}
		return 0, nil
	})
}
