// Package lockfile provides machine-local mutual exclusion for build runs.
//
// One lock file exists per branch under the build root. The lock is an OS
// advisory exclusive lock held for the lifetime of the owning process; the
// file's content is irrelevant, only its lock state matters. Acquisition is
// non-blocking: contention is a legitimate "someone else is already
// building" signal, not an error.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrBusy is returned by Acquire when another live process holds the lock.
// Callers normally treat this as a clean skip, not a failure.
var ErrBusy = errors.New("lock held by another run")

// Lock is an acquired exclusive lock on a branch. At most one live Lock
// exists per (machine, branch) at any instant.
type Lock struct {
	path string
	file *os.File

	mu       sync.Mutex
	released bool
}

// Acquire opens (creating if needed) the lock file at path and takes an
// exclusive non-blocking flock on it. Returns ErrBusy when the lock is
// already held elsewhere.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. Releasing an already-released lock is a no-op,
// not an error: cleanup runs on every exit path and must be idempotent.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true

	// Closing the descriptor drops the flock; unlock first anyway so the
	// lock is observably free even if the close fails.
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close lock file %s: %w", l.path, err)
	}
	return nil
}
