package modules

import (
	"errors"
	"fmt"
	"os"
)

// ForceFile demands a run whenever a trigger file exists. Dropping the
// file (e.g. by an operator or a post-receive hook) forces the next
// invocation to build even when nothing changed; the file is consumed
// during cleanup so one file forces exactly one run.
type ForceFile struct {
	path     string
	observed bool
}

// NewForceFile returns a ForceFile watching path.
func NewForceFile(path string) *ForceFile {
	return &ForceFile{path: path}
}

// Name implements Module.
func (f *ForceFile) Name() string {
	return "force-file"
}

// NeedsRun reports whether the trigger file is present.
func (f *ForceFile) NeedsRun() (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		f.observed = true
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat force file %s: %w", f.path, err)
}

// Cleanup consumes the trigger file if this run observed it. A file
// dropped after the check survives for the next invocation.
func (f *ForceFile) Cleanup() error {
	if !f.observed {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove force file %s: %w", f.path, err)
	}
	return nil
}
