package lockfile_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/vbwagner/client-code/internal/lockfile"
)

func TestAcquire_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bfrun.lock")
	lock, err := lockfile.Acquire(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer lock.Release()

	if lock.Path() != path {
		t.Errorf("Path() = %q, want %q", lock.Path(), path)
	}
}

func TestAcquire_SecondHolderGetsErrBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bfrun.lock")
	first, err := lockfile.Acquire(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer first.Release()

	// flock is per open file description, so a second Acquire in the same
	// process contends the same way a second process would.
	if _, err := lockfile.Acquire(path); !errors.Is(err, lockfile.ErrBusy) {
		t.Fatalf("second Acquire error = %v, want ErrBusy", err)
	}
}

func TestRelease_FreesLockForNextHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bfrun.lock")
	first, err := lockfile.Acquire(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := lockfile.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	defer second.Release()
}

func TestRelease_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bfrun.lock")
	lock, err := lockfile.Acquire(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second release should be a no-op, got %v", err)
	}
}
