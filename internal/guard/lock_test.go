package guard

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireLock_RefusesWhileHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock.Release() })

	_, err = AcquireLock(path)
	require.ErrorIs(t, err, ErrLockHeld)
}

func TestAcquireLock_ReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.lock")

	// A PID essentially guaranteed not to be running.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(999999)), 0o600))

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	require.NotNil(t, lock)
}

func TestLock_ReleaseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	// Releasing twice is a no-op, not an error.
	require.NoError(t, lock.Release())
}

func TestLock_ReleaseNilIsNoOp(t *testing.T) {
	var lock *Lock
	require.NoError(t, lock.Release())
}

func TestIsLockStale(t *testing.T) {
	dir := t.TempDir()

	live := filepath.Join(dir, "live.lock")
	require.NoError(t, os.WriteFile(live, []byte(strconv.Itoa(os.Getpid())), 0o600))
	require.False(t, IsLockStale(live))

	stale := filepath.Join(dir, "stale.lock")
	require.NoError(t, os.WriteFile(stale, []byte(strconv.Itoa(999999)), 0o600))
	require.True(t, IsLockStale(stale))

	malformed := filepath.Join(dir, "malformed.lock")
	require.NoError(t, os.WriteFile(malformed, []byte("not-a-pid"), 0o600))
	require.True(t, IsLockStale(malformed))

	// A lock file that no longer exists reports not-stale: there is
	// nothing left to clean up.
	require.False(t, IsLockStale(filepath.Join(dir, "missing.lock")))
}
