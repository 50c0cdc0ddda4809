// Package snapshot decides whether a rebuild is warranted and persists the
// timestamp facts the decision is based on.
//
// Three facts are kept per branch, one small file each: "status" (start
// time of the last attempted run), "run.snap" (source snapshot at the last
// attempted run), and "success.snap" (source snapshot at the last fully
// successful run). All writes are atomic: data goes to a .tmp file in the
// same directory, then os.Rename replaces the target in a single kernel
// call, so a crash never leaves a half-written fact.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vbwagner/client-code/internal/types"
)

// Store persists the per-branch snapshot facts under a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Read returns the persisted fact of the given kind. The second return is
// false when the fact has never been recorded.
func (s *Store) Read(kind types.SnapshotKind) (time.Time, bool, error) {
	data, err := os.ReadFile(s.path(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read %s: %w", kind, err)
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", kind, err)
	}
	return time.Unix(sec, 0), true, nil
}

// Record atomically overwrites the fact of the given kind with t.
func (s *Store) Record(kind types.SnapshotKind, t time.Time) error {
	data := []byte(strconv.FormatInt(t.Unix(), 10) + "\n")
	return atomicWrite(s.path(kind), data)
}

// Remove deletes the fact of the given kind. Removing an absent fact is a
// no-op.
func (s *Store) Remove(kind types.SnapshotKind) error {
	err := os.Remove(s.path(kind))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", kind, err)
	}
	return nil
}

// RollbackState captures the pre-run values of the facts a run advances,
// so a failed report delivery can restore them exactly.
type RollbackState struct {
	Status     time.Time
	RunSnap    time.Time
	HadStatus  bool
	HadRunSnap bool
}

// Capture reads the current status and run.snap facts into a RollbackState.
func (s *Store) Capture() (RollbackState, error) {
	var rb RollbackState
	var err error
	rb.Status, rb.HadStatus, err = s.Read(types.SnapStatus)
	if err != nil {
		return rb, err
	}
	rb.RunSnap, rb.HadRunSnap, err = s.Read(types.SnapLastRun)
	return rb, err
}

// Restore writes the captured pre-run values back, removing facts that did
// not exist before the run. Restore is idempotent: applying the same state
// repeatedly leaves the store unchanged, so N consecutive delivery
// failures cause no drift.
func (s *Store) Restore(rb RollbackState) error {
	if rb.HadStatus {
		if err := s.Record(types.SnapStatus, rb.Status); err != nil {
			return err
		}
	} else if err := s.Remove(types.SnapStatus); err != nil {
		return err
	}
	if rb.HadRunSnap {
		return s.Record(types.SnapLastRun, rb.RunSnap)
	}
	return s.Remove(types.SnapLastRun)
}

// Dir returns the directory the facts live in.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(kind types.SnapshotKind) string {
	return filepath.Join(s.dir, string(kind))
}

// atomicWrite writes data to path by first writing to path+".tmp", then
// calling os.Rename to replace the final target atomically.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup on rename failure
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
