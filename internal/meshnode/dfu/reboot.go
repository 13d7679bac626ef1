package dfu

import (
	"encoding/binary"
	"fmt"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
)

// RebootMagic marks reboot info written by a self update.
const RebootMagic uint32 = 0xbaadc0de

const rebootInfoSize = 8

// RebootInfo is the record a self update leaves for the next boot: magic then
// build id, little endian, no padding.
type RebootInfo struct {
	Magic   uint32
	BuildID uint32
}

func (i RebootInfo) encode() []byte {
	b := make([]byte, rebootInfoSize)
	binary.LittleEndian.PutUint32(b[0:4], i.Magic)
	binary.LittleEndian.PutUint32(b[4:8], i.BuildID)
	return b
}

func decodeRebootInfo(b []byte) RebootInfo {
	return RebootInfo{
		Magic:   binary.LittleEndian.Uint32(b[0:4]),
		BuildID: binary.LittleEndian.Uint32(b[4:8]),
	}
}

// RebootState is the reboot info slot in reset-surviving memory. It can only be
// read through Consume, which clears it.
type RebootState struct {
	mem core.Retained
}

func NewRebootState(mem core.Retained) *RebootState {
	return &RebootState{mem: mem}
}

// Arm records that the next boot should run buildID.
func (s *RebootState) Arm(buildID uint32) error {
	if err := s.mem.Store(RebootInfo{Magic: RebootMagic, BuildID: buildID}.encode()); err != nil {
		return fmt.Errorf("store reboot info: %w", err)
	}
	return nil
}

// Clear zeroes the slot.
func (s *RebootState) Clear() error {
	if err := s.mem.Store(make([]byte, rebootInfoSize)); err != nil {
		return fmt.Errorf("clear reboot info: %w", err)
	}
	return nil
}

// Consume reads the slot and clears it. armed is false when no self update
// left a record. A clear failure is returned together with the record read.
func (s *RebootState) Consume() (info RebootInfo, armed bool, err error) {
	b := make([]byte, rebootInfoSize)
	if err := s.mem.Load(b); err != nil {
		return RebootInfo{}, false, fmt.Errorf("load reboot info: %w", err)
	}
	info = decodeRebootInfo(b)
	armed = info.Magic == RebootMagic

	if info != (RebootInfo{}) {
		err = s.Clear()
	}
	return info, armed, err
}
