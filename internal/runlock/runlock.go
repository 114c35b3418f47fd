package runlock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Lock guards a state directory against concurrent run invocations. Two
// engines posting against the same database would double-claim reviews and
// trip platform rate limits, so only one holder is allowed at a time.
type Lock struct {
	path string
}

// Acquire takes the run lock for the given state directory. A stale pid file
// left by a crashed process is replaced; a live holder is an error.
func Acquire(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(stateDir, "replypilot.pid")
	if pid, alive := readAlive(path); alive {
		return nil, fmt.Errorf("another run is already active (pid %d)", pid)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write run lock: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the pid file. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	return os.Remove(l.path)
}

// Path returns the pid file location.
func (l *Lock) Path() string {
	return l.path
}

// readAlive reads the pid file and reports whether that process still exists.
// Unreadable or malformed files count as not alive.
func readAlive(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, processAlive(pid)
}
