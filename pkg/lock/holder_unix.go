//go:build unix

package lock

import (
	"errors"
	"os"
	"syscall"
)

// isProcessAlive sends signal 0, which checks existence without affecting
// the process. EPERM means the process exists but belongs to someone else.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
