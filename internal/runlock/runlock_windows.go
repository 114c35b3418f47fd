//go:build windows

package runlock

import (
	"os"
	"syscall"
)

// processAlive tests process existence via FindProcess plus a zero signal.
// FindProcess always succeeds on Windows, so the signal probe does the work.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
