package hal

import (
	"context"
	"fmt"
	"os"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/pkg/crc"
)

const crcBlock = 1024

// FilePartition is a staging partition backed by a fixed size file.
type FilePartition struct {
	f    *os.File
	size int64
}

var _ core.Partition = (*FilePartition)(nil)

// OpenFilePartition opens path, creating it with size bytes when missing.
func OpenFilePartition(path string, size int64) (*FilePartition, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open staging partition: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat staging partition: %w", err)
	}
	if st.Size() != size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("size staging partition: %w", err)
		}
	}
	return &FilePartition{f: f, size: size}, nil
}

func (p *FilePartition) Size() int64 {
	return p.size
}

func (p *FilePartition) check(off int64, n int) error {
	if off < 0 || off+int64(n) > p.size {
		return fmt.Errorf("range [%d, %d) outside partition of %d bytes", off, off+int64(n), p.size)
	}
	return nil
}

func (p *FilePartition) Read(ctx context.Context, off int64, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.check(off, len(buf)); err != nil {
		return err
	}
	_, err := p.f.ReadAt(buf, off)
	return err
}

func (p *FilePartition) Write(ctx context.Context, off int64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.check(off, len(data)); err != nil {
		return err
	}
	_, err := p.f.WriteAt(data, off)
	return err
}

func (p *FilePartition) CRC16(ctx context.Context, off, n int64) (uint16, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative length %d", n)
	}
	if err := p.check(off, int(n)); err != nil {
		return 0, err
	}

	var sum uint16
	buf := make([]byte, crcBlock)
	for n > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		chunk := buf
		if n < int64(len(chunk)) {
			chunk = chunk[:n]
		}
		if _, err := p.f.ReadAt(chunk, off); err != nil {
			return 0, err
		}
		sum = crc.Update(sum, chunk)
		off += int64(len(chunk))
		n -= int64(len(chunk))
	}
	return sum, nil
}

func (p *FilePartition) Close() error {
	return p.f.Close()
}
