package core

import (
	"context"
	"time"
)

// DeviceInfo is the fixed description a node reports about itself.
type DeviceInfo struct {
	VendorID     uint16
	ProductID    uint16
	Serial       [16]byte
	GitSHA       uint32
	VersionMajor uint8
	VersionMinor uint8
	VersionPatch uint8
	HwRevision   uint8
}

// Identity describes the running node.
type Identity interface {
	NodeID() uint64
	// BuildID identifies the running firmware build.
	BuildID() uint32
	DeviceInfo() DeviceInfo
	Version() string
	DeviceName() string
}

// PowerController switches the bus that feeds downstream peers.
type PowerController interface {
	// ControlEnabled reports whether the controller is switching the bus.
	ControlEnabled() bool
	// EnableControl turns switching on or off. Off forces the bus on.
	EnableControl(enable bool)
	// InitPeriodElapsed reports whether the controller finished its start up.
	InitPeriodElapsed() bool
	// WaitForSignal blocks until the bus reports the wanted state, the timeout
	// expires or ctx ends. It reports whether the state was reached.
	WaitForSignal(ctx context.Context, on bool, timeout time.Duration) bool
}

// Partition is the staging area that holds an image before it is installed.
type Partition interface {
	Size() int64
	Read(ctx context.Context, off int64, p []byte) error
	Write(ctx context.Context, off int64, p []byte) error
	// CRC16 returns the checksum of n bytes starting at off.
	CRC16(ctx context.Context, off, n int64) (uint16, error)
}

// Flash gives access to the slot the bootloader installs images from.
type Flash interface {
	OpenAlternate() (FlashArea, error)
}

// FlashArea is an open slot. Erase must precede Write.
type FlashArea interface {
	BlockSize() uint32
	Erase(off, n int64) error
	Write(off int64, p []byte) error
	Close() error
}

// BootAuthority talks to the bootloader.
type BootAuthority interface {
	// SetPending boots the alternate slot once on the next reset.
	SetPending() error
	// Confirm makes the running image permanent.
	Confirm() error
	// Reset restarts the node. It does not return.
	Reset(reason string)
}

// Retained is memory that survives a warm reset but not a power cycle.
type Retained interface {
	Load(p []byte) error
	Store(p []byte) error
}

// HAL is everything the node needs from the platform.
type HAL interface {
	Identity

	Power() PowerController
	Staging() Partition
	Flash() Flash
	Boot() BootAuthority
	Retained() Retained
}
