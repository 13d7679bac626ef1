package hal

import (
	"errors"
	"io/fs"
	"os"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
)

// FileRetained keeps reset-surviving state in a file. Pointing it at tmpfs
// gives the same lifetime as uninitialised RAM: it survives a restart of the
// process but not a power cycle.
type FileRetained struct {
	path string
}

var _ core.Retained = (*FileRetained)(nil)

func NewFileRetained(path string) *FileRetained {
	return &FileRetained{path: path}
}

// Load fills p from the file. A missing file reads as zeros.
func (r *FileRetained) Load(p []byte) error {
	clear(p)
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	copy(p, data)
	return nil
}

func (r *FileRetained) Store(p []byte) error {
	return os.WriteFile(r.path, p, 0o600)
}
