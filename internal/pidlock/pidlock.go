// Package pidlock provides a single-instance guard for the Worker: a
// PID file that records the owning process, refusing to start a
// second instance while the recorded PID is still alive.
package pidlock

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Lock represents an acquired PID-file lock. Release removes the file.
type Lock struct {
	path string
}

// Acquire reads any existing PID file at path. If it names a process
// that is still alive (per a signal-0 liveness probe), Acquire fails so
// a second instance never runs concurrently. Otherwise it writes the
// current process's PID to path, replacing any stale file, and returns
// a Lock the caller must Release on shutdown.
func Acquire(path string) (*Lock, error) {
	if existing, ok, err := readPID(path); err != nil {
		return nil, fmt.Errorf("pidlock: reading existing pid file %s: %w", path, err)
	} else if ok && isAlive(existing) {
		return nil, fmt.Errorf("pidlock: another instance is already running with pid %d (%s)", existing, path)
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return nil, fmt.Errorf("pidlock: writing pid file %s: %w", path, err)
	}

	return &Lock{path: path}, nil
}

// Release removes the PID file. It is safe to call even if the file
// was already removed.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidlock: removing pid file %s: %w", l.path, err)
	}
	return nil
}

// IsHeld reports whether path names a PID file recording a process
// that is still alive, without acquiring or replacing it. Used by
// health checks that need to confirm the Worker is actually running.
func IsHeld(path string) (pid int, held bool) {
	existing, ok, err := readPID(path)
	if err != nil || !ok {
		return 0, false
	}
	return existing, isAlive(existing)
}

func readPID(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// A corrupt or empty PID file is treated as stale, not fatal.
		return 0, false, nil
	}
	return pid, true, nil
}

// isAlive reports whether pid names a running process, using a signal-0
// probe: no signal is delivered, but the kernel still validates that
// the pid exists and is permitted to be signaled.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	if err == unix.EPERM {
		// Process exists but is owned by another user; still alive.
		return true
	}
	return false
}
