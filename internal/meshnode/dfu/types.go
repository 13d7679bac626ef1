package dfu

import (
	"context"
	"time"
)

// NakFlag marks a chunk acknowledgement as a rejection.
const NakFlag uint32 = 0x80000000

// ImageInfo describes the image in the staging partition.
type ImageInfo struct {
	Size      uint32
	ChunkSize uint32
	CRC       uint16
	Major     uint16
	Minor     uint16
	FilterKey uint32
	BuildID   uint32
}

// StartRequest asks for Target to be updated with the staged image.
type StartRequest struct {
	Target uint64
	Info   ImageInfo
}

// Finish is the outcome of a session as reported upstream.
type Finish struct {
	NodeID  uint64
	Success bool
	Code    ErrorCode
}

// Reporter sends session outcomes and chunk acknowledgements upstream.
type Reporter interface {
	ReportFinish(ctx context.Context, f Finish) error
	AckChunk(ctx context.Context, offset uint32) error
}

// ChunkWriter stores one received chunk at offset within the image.
type ChunkWriter func(ctx context.Context, offset uint32, data []byte) error

// TransferEngine moves the staged image to a peer. Transfer blocks until the
// peer finished or ctx is done. Chunks it receives go through write; engines
// whose chunks reach the node out of band, on the chunk route, may ignore it.
type TransferEngine interface {
	Transfer(ctx context.Context, req StartRequest, write ChunkWriter) error
}

// Config holds the update tunables.
type Config struct {
	ImageStartOffset uint32

	CRCTimeout      time.Duration
	TransferTimeout time.Duration
	FlashTimeout    time.Duration
	PowerTimeout    time.Duration
	RebootDelay     time.Duration

	CopyBufferSize int
}

func DefaultConfig() Config {
	return Config{
		ImageStartOffset: 2048,
		CRCTimeout:       30 * time.Second,
		TransferTimeout:  60 * time.Second,
		FlashTimeout:     3 * time.Second,
		PowerTimeout:     5 * time.Second,
		RebootDelay:      time.Second,
		CopyBufferSize:   1024,
	}
}

// AlignedSize rounds size up to a whole number of blockSize blocks.
func AlignedSize(size, blockSize uint32) uint64 {
	if blockSize == 0 {
		return uint64(size)
	}
	b := uint64(blockSize)
	return (uint64(size) + b - 1) / b * b
}
