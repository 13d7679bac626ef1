package wire

// DfuStart requests an update of Target from the image in the staging
// partition. The same message hands a peer update to the transfer engine.
type DfuStart struct {
	Target    uint64
	ImageSize uint32
	ChunkSize uint32
	CRC       uint16
	Major     uint16
	Minor     uint16
	FilterKey uint32
	BuildID   uint32
}

func (m *DfuStart) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.Target)
	e.uint(2, uint64(m.ImageSize))
	e.uint(3, uint64(m.ChunkSize))
	e.uint(4, uint64(m.CRC))
	e.uint(5, uint64(m.Major))
	e.uint(6, uint64(m.Minor))
	e.uint(7, uint64(m.FilterKey))
	e.uint(8, uint64(m.BuildID))
	return e.b, nil
}

func (m *DfuStart) UnmarshalBinary(b []byte) error {
	*m = DfuStart{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.Target)
		case 2:
			return f.uint32(&m.ImageSize)
		case 3:
			return f.uint32(&m.ChunkSize)
		case 4:
			return f.uint16(&m.CRC)
		case 5:
			return f.uint16(&m.Major)
		case 6:
			return f.uint16(&m.Minor)
		case 7:
			return f.uint32(&m.FilterKey)
		case 8:
			return f.uint32(&m.BuildID)
		}
		return 0, nil
	})
}

// DfuChunk is one piece of an image bound for the staging partition. Offset is
// relative to the start of the image.
type DfuChunk struct {
	Offset uint32
	Data   []byte
}

func (m *DfuChunk) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, uint64(m.Offset))
	e.bytes(2, m.Data)
	return e.b, nil
}

func (m *DfuChunk) UnmarshalBinary(b []byte) error {
	*m = DfuChunk{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.Offset)
		case 2:
			return f.bytes(&m.Data)
		}
		return 0, nil
	})
}

// DfuChunkAck acknowledges a chunk. A rejected chunk has the NAK bit set in Offset.
type DfuChunkAck struct {
	Offset uint32
}

func (m *DfuChunkAck) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, uint64(m.Offset))
	return e.b, nil
}

func (m *DfuChunkAck) UnmarshalBinary(b []byte) error {
	*m = DfuChunkAck{}
	return decode(b, func(f field) (int, error) {
		if f.num == 1 {
			return f.uint32(&m.Offset)
		}
		return 0, nil
	})
}

// DfuFinish reports the outcome of an update of NodeID. It is also the reply of
// the transfer engine to a relayed update.
type DfuFinish struct {
	NodeID  uint64
	Success bool
	Code    uint32
}

func (m *DfuFinish) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint(1, m.NodeID)
	e.bool(2, m.Success)
	e.uint(3, uint64(m.Code))
	return e.b, nil
}

func (m *DfuFinish) UnmarshalBinary(b []byte) error {
	*m = DfuFinish{}
	return decode(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.NodeID)
		case 2:
			return f.bool(&m.Success)
		case 3:
			return f.uint32(&m.Code)
		}
		return 0, nil
	})
}
