package staging

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/meshnode/internal/meshnode/hal"
	"github.com/autopeer-io/meshnode/internal/pkg/crc"
	"github.com/autopeer-io/meshnode/pkg/options"
)

func openPartition(t *testing.T, size int64) *hal.FilePartition {
	t.Helper()
	p, err := hal.OpenFilePartition(filepath.Join(t.TempDir(), "staging.bin"), size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestCopyInto(t *testing.T) {
	ctx := context.Background()
	image := bytes.Repeat([]byte("meshnode-image-"), 300)
	p := openPartition(t, 8192)

	// A one byte reader checks the running CRC across many short reads.
	res, err := copyInto(ctx, iotest.OneByteReader(bytes.NewReader(image)), p, 2048, make([]byte, 256))
	require.NoError(t, err)
	assert.Equal(t, Result{Size: uint32(len(image)), CRC: crc.Checksum(image)}, res)

	got := make([]byte, len(image))
	require.NoError(t, p.Read(ctx, 2048, got))
	assert.Equal(t, image, got)

	sum, err := p.CRC16(ctx, 2048, int64(len(image)))
	require.NoError(t, err)
	assert.Equal(t, res.CRC, sum)
}

func TestCopyIntoErrors(t *testing.T) {
	ctx := context.Background()
	p := openPartition(t, 4096)

	_, err := copyInto(ctx, bytes.NewReader(make([]byte, 3000)), p, 2048, make([]byte, 1024))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = copyInto(ctx, bytes.NewReader(nil), p, 2048, make([]byte, 1024))
	assert.Error(t, err)

	boom := errors.New("connection reset")
	_, err = copyInto(ctx, iotest.ErrReader(boom), p, 2048, make([]byte, 1024))
	assert.ErrorIs(t, err, boom)
}

func TestNewFetcher(t *testing.T) {
	f, err := NewFetcher(options.NewS3Options())
	require.NoError(t, err)
	assert.Equal(t, "firmware", f.bucketName)

	opts := options.NewS3Options()
	opts.Endpoint = "http://not-a-host:9000"
	_, err = NewFetcher(opts)
	assert.Error(t, err, "minio wants a bare host:port endpoint")
}
