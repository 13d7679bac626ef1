package hal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/meshnode/internal/pkg/crc"
	"github.com/autopeer-io/meshnode/pkg/options"
)

func TestFilePartition(t *testing.T) {
	ctx := context.Background()
	p, err := OpenFilePartition(filepath.Join(t.TempDir(), "staging.bin"), 4096)
	require.NoError(t, err)
	defer p.Close()

	image := bytes.Repeat([]byte("meshnode"), 300) // 2400 bytes, spans several CRC blocks
	require.NoError(t, p.Write(ctx, 100, image))

	got := make([]byte, len(image))
	require.NoError(t, p.Read(ctx, 100, got))
	assert.Equal(t, image, got)

	sum, err := p.CRC16(ctx, 100, int64(len(image)))
	require.NoError(t, err)
	assert.Equal(t, crc.Checksum(image), sum)

	assert.Error(t, p.Write(ctx, 4000, make([]byte, 200)), "write past end")
	_, err = p.CRC16(ctx, 0, 5000)
	assert.Error(t, err, "crc past end")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, p.Read(cancelled, 0, got), context.Canceled)
}

func TestFileFlash(t *testing.T) {
	f := NewFileFlash(filepath.Join(t.TempDir(), "slot.bin"), 0x4000, 0x2000)

	area, err := f.OpenAlternate()
	require.NoError(t, err)

	_, err = f.OpenAlternate()
	require.Error(t, err, "second open must fail while the first is open")

	require.Error(t, area.Erase(0, 0x1000), "unaligned erase")
	require.NoError(t, area.Erase(0, 0x4000))
	require.NoError(t, area.Write(0, []byte{1, 2, 3}))
	require.Error(t, area.Write(0x3fff, []byte{1, 2}))
	require.NoError(t, area.Close())

	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	require.Len(t, data, 0x4000)
	assert.Equal(t, []byte{1, 2, 3, 0xff}, data[:4])

	area, err = f.OpenAlternate()
	require.NoError(t, err, "slot can be opened again after close")
	require.NoError(t, area.Close())
}

func TestFileRetained(t *testing.T) {
	r := NewFileRetained(filepath.Join(t.TempDir(), "noinit"))

	buf := []byte{9, 9, 9, 9}
	require.NoError(t, r.Load(buf))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf, "missing file reads as zeros")

	require.NoError(t, r.Store([]byte{1, 2, 3, 4}))
	require.NoError(t, r.Load(buf))
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
}

func TestSimPowerInitPeriod(t *testing.T) {
	mock := clock.NewMock()
	p := NewSimPower(mock, true, 2*time.Minute, 0)

	assert.False(t, p.InitPeriodElapsed())
	mock.Add(2 * time.Minute)
	assert.True(t, p.InitPeriodElapsed())
}

func TestSimPowerSignal(t *testing.T) {
	ctx := context.Background()
	p := NewSimPower(clock.New(), true, 0, 20*time.Millisecond)

	assert.True(t, p.ControlEnabled())
	assert.False(t, p.WaitForSignal(ctx, true, 50*time.Millisecond), "bus stays off while control is enabled")

	p.EnableControl(false)
	assert.False(t, p.ControlEnabled())
	assert.True(t, p.WaitForSignal(ctx, true, time.Second))

	p.EnableControl(true)
	assert.True(t, p.WaitForSignal(ctx, false, time.Second))
}

func TestBoot(t *testing.T) {
	slot := filepath.Join(t.TempDir(), "slot.bin")
	b := NewBoot(slot, options.ResetModeExit)
	var code int
	b.exit = func(c int) { code = c }

	assert.False(t, b.Pending())
	require.NoError(t, b.SetPending())
	assert.True(t, b.Pending())
	require.NoError(t, b.Confirm())
	assert.False(t, b.Pending())
	require.NoError(t, b.Confirm(), "confirming twice is harmless")

	b.Reset("test")
	assert.Equal(t, resetExitCode, code)
}

func TestDiscoverNodeID(t *testing.T) {
	assert.Equal(t, uint64(0xab), DiscoverNodeID("ab"))
	assert.Equal(t, uint64(0xab), DiscoverNodeID("0xab"))

	t.Setenv(nodeIDEnv, "1234")
	assert.Equal(t, uint64(0x1234), DiscoverNodeID(""))
	assert.Equal(t, uint64(0x1234), DiscoverNodeID("not-hex"), "invalid flag falls through to env")
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in                  string
		major, minor, patch uint8
	}{
		{"v1.2.3", 1, 2, 3},
		{"2.10", 2, 10, 0},
		{"1.4.0-rc1", 1, 4, 0},
		{"", 0, 0, 0},
		{"dev", 0, 0, 0},
	}
	for _, tt := range tests {
		major, minor, patch := parseVersion(tt.in)
		if major != tt.major || minor != tt.minor || patch != tt.patch {
			t.Errorf("parseVersion(%q) = %d.%d.%d, want %d.%d.%d", tt.in, major, minor, patch, tt.major, tt.minor, tt.patch)
		}
	}
	assert.Equal(t, uint32(0x1a2b3c4d), parseGitSHA("1a2b3c4d5e6f"))
	assert.Equal(t, uint32(0), parseGitSHA("zzzz"))
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	opts := options.NewHalOptions()
	opts.NodeID = "00000000000000ab"
	opts.Version = "1.2.3"
	opts.StagingPath = filepath.Join(dir, "staging.bin")
	opts.StagingSize = 0x3000
	opts.FlashPath = filepath.Join(dir, "slot.bin")
	opts.RetainedPath = filepath.Join(dir, "noinit")

	h, err := New(opts, clock.NewMock())
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, uint64(0xab), h.NodeID())
	assert.Equal(t, int64(0x3000), h.Staging().Size())
	assert.Equal(t, uint8(0xab), h.DeviceInfo().Serial[15])
	assert.Equal(t, uint8(2), h.DeviceInfo().VersionMinor)
	assert.Equal(t, int64(0x4000), h.flash.size, "slot rounds up to whole blocks")
}
