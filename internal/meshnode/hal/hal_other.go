//go:build !linux

package hal

import (
	"errors"
	"runtime"
)

func reboot() error {
	return errors.New("reboot is not supported on " + runtime.GOOS)
}
