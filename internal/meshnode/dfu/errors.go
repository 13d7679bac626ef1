package dfu

import (
	"errors"
	"fmt"
)

// ErrorCode is the outcome carried by a finish report.
type ErrorCode uint32

const (
	None ErrorCode = iota
	CRCMismatch
	InitPeriodNotElapsed
	PowerGateTimeout
	FlashOpenFailed
	EraseFailed
	PartitionReadFailed
	PartitionWriteFailed
	EngineRejected
	WrongVersionAfterReboot
	Aborted
)

var codeNames = map[ErrorCode]string{
	None:                    "NONE",
	CRCMismatch:             "CRC_MISMATCH",
	InitPeriodNotElapsed:    "INIT_PERIOD_NOT_ELAPSED",
	PowerGateTimeout:        "POWER_GATE_TIMEOUT",
	FlashOpenFailed:         "FLASH_OPEN_FAILED",
	EraseFailed:             "ERASE_FAILED",
	PartitionReadFailed:     "PARTITION_READ_FAILED",
	PartitionWriteFailed:    "PARTITION_WRITE_FAILED",
	EngineRejected:          "ENGINE_REJECTED",
	WrongVersionAfterReboot: "WRONG_VERSION_AFTER_REBOOT",
	Aborted:                 "ABORTED",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", uint32(c))
}

// Error is a failed update step.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dfu %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("dfu %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrSessionBusy rejects a start request while another session runs.
	ErrSessionBusy = errors.New("dfu session in progress")

	// ErrNotReady rejects a start request before the reboot check has run.
	ErrNotReady = errors.New("dfu not ready, reboot check pending")

	// ErrEngineRejected is returned by a TransferEngine that refuses the update.
	ErrEngineRejected = errors.New("transfer engine rejected the update")
)

// CodeOf maps err to the code reported for it. nil is None; errors without a
// more specific code are Aborted.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return None
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, ErrEngineRejected) {
		return EngineRejected
	}
	return Aborted
}
