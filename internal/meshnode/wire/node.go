package wire

// Register announces a node to the host after it connects.
type Register struct {
	NodeID        uint64
	BuildID       uint32
	VersionString string
	DeviceName    string
	Timestamp     int64
}

func (m *Register) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	e.uint(2, uint64(m.BuildID))
	e.string(3, m.VersionString)
	e.string(4, m.DeviceName)
	e.uint(5, uint64(m.Timestamp))
	return e.b, nil
}

func (m *Register) UnmarshalBinary(b []byte) error {
	*m = Register{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			return f.uint32(&m.BuildID)
		case 3:
			return f.string(&m.VersionString)
		case 4:
			return f.string(&m.DeviceName)
		case 5:
			var v uint64
			n, err := f.uint64(&v)
			m.Timestamp = int64(v)
			return n, err
		}
		return 0, nil
	})
}

// OnlineStatus is the retained presence of a node. The offline variant is
// installed as the MQTT will.
type OnlineStatus struct {
	NodeID uint64
	Online bool
	Reason string
}

func (m *OnlineStatus) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	e.bool(2, m.Online)
	e.string(3, m.Reason)
	return e.b, nil
}

func (m *OnlineStatus) UnmarshalBinary(b []byte) error {
	*m = OnlineStatus{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			return f.bool(&m.Online)
		case 3:
			return f.string(&m.Reason)
		}
		return 0, nil
	})
}
