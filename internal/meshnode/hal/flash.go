package hal

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
)

const erasedByte = 0xff

// FileFlash simulates the alternate firmware slot with a file.
type FileFlash struct {
	path      string
	size      int64
	blockSize uint32

	mu   sync.Mutex
	open bool
}

var _ core.Flash = (*FileFlash)(nil)

func NewFileFlash(path string, size int64, blockSize uint32) *FileFlash {
	return &FileFlash{path: path, size: size, blockSize: blockSize}
}

// OpenAlternate opens the slot. Only one area may be open at a time.
func (f *FileFlash) OpenAlternate() (core.FlashArea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		return nil, fmt.Errorf("alternate slot already open")
	}

	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open alternate slot: %w", err)
	}
	if err := file.Truncate(f.size); err != nil {
		file.Close()
		return nil, fmt.Errorf("size alternate slot: %w", err)
	}

	f.open = true
	return &fileArea{owner: f, file: file}, nil
}

type fileArea struct {
	owner *FileFlash
	file  *os.File
}

func (a *fileArea) BlockSize() uint32 {
	return a.owner.blockSize
}

func (a *fileArea) Erase(off, n int64) error {
	bs := int64(a.owner.blockSize)
	if off%bs != 0 || n%bs != 0 {
		return fmt.Errorf("erase [%d, %d) is not aligned to %d byte blocks", off, off+n, bs)
	}
	if off < 0 || off+n > a.owner.size {
		return fmt.Errorf("erase [%d, %d) outside slot of %d bytes", off, off+n, a.owner.size)
	}

	block := bytes.Repeat([]byte{erasedByte}, int(bs))
	for pos := off; pos < off+n; pos += bs {
		if _, err := a.file.WriteAt(block, pos); err != nil {
			return fmt.Errorf("erase block at %d: %w", pos, err)
		}
	}
	return nil
}

func (a *fileArea) Write(off int64, p []byte) error {
	if off < 0 || off+int64(len(p)) > a.owner.size {
		return fmt.Errorf("write [%d, %d) outside slot of %d bytes", off, off+int64(len(p)), a.owner.size)
	}
	_, err := a.file.WriteAt(p, off)
	return err
}

func (a *fileArea) Close() error {
	a.owner.mu.Lock()
	a.owner.open = false
	a.owner.mu.Unlock()

	if err := a.file.Sync(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}
