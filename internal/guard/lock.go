package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLockHeld is returned by AcquireLock when another guard process already
// holds the lock for this session.
var ErrLockHeld = errors.New("guard lock held by another process")

// LockFilePath returns the PID/log lock file path for sessionID under the
// process-wide temp directory.
func LockFilePath(tempDir, sessionID string) string {
	return filepath.Join(tempDir, fmt.Sprintf("ctxguard-guard-%s.lock", sessionID))
}

// Lock is a held PID lock file. Release removes it; a process that dies
// without calling Release leaves a stale lock file behind, which
// AcquireLock detects by checking whether the recorded PID is still alive.
type Lock struct {
	path string
}

// AcquireLock creates path recording the current process's PID, failing
// with ErrLockHeld if a live process already holds it. A lock file whose
// PID is no longer running is treated as stale and silently reclaimed.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil { //nolint:gosec // caller-controlled lock path
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(existing))); perr == nil && processAlive(pid) {
			return nil, ErrLockHeld
		}
		// Stale lock: the recorded PID is gone. Fall through and reclaim it.
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call on an already-removed lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// IsLockStale reports whether the lock file at path records a PID that is
// no longer running (or is unreadable/malformed). Used by `doctor` to
// find abandoned guard lock files without trying to acquire them.
func IsLockStale(path string) bool {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from a directory scan of the lock directory
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return true
	}
	return !processAlive(pid)
}

// processAlive reports whether pid names a live process. Sending signal 0
// performs the existence check without actually delivering a signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}
