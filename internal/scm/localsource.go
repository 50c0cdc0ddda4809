package scm

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// LocalSource is an SCM over a fixed local directory, used in explicit
// source mode. There is no checkout; change detection walks file
// modification times. Runs in this mode bypass the snapshot short-circuit
// entirely, but the interface is still honoured so reporting sees a
// consistent picture.
type LocalSource struct {
	srcDir   string
	buildDir string
}

// NewLocalSource returns an SCM reading from srcDir and building in
// buildDir.
func NewLocalSource(srcDir, buildDir string) *LocalSource {
	return &LocalSource{srcDir: srcDir, buildDir: buildDir}
}

// Checkout verifies the source directory exists; nothing is fetched.
func (l *LocalSource) Checkout(_ context.Context, _ string) (string, error) {
	info, err := os.Stat(l.srcDir)
	if err != nil {
		return "", fmt.Errorf("source directory %s: %w", l.srcDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source path %s is not a directory", l.srcDir)
	}
	return "using existing source tree " + l.srcDir, nil
}

// FindChanged walks the tree: the snapshot is the newest file modification
// time, and a file counts as changed when its mtime is after the given
// boundary (zero boundary matches everything).
func (l *LocalSource) FindChanged(sinceRun, sinceSuccess time.Time) (time.Time, []string, []string, error) {
	var snap time.Time
	var changed, changedSuccess []string

	err := filepath.WalkDir(l.srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.srcDir, path)
		if err != nil {
			return err
		}
		mtime := info.ModTime()
		if mtime.After(snap) {
			snap = mtime
		}
		if sinceRun.IsZero() || mtime.After(sinceRun) {
			changed = append(changed, rel)
		}
		if sinceSuccess.IsZero() || mtime.After(sinceSuccess) {
			changedSuccess = append(changedSuccess, rel)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("walk %s: %w", l.srcDir, err)
	}

	sort.Strings(changed)
	sort.Strings(changedSuccess)
	return snap, changed, changedSuccess, nil
}

// CopySourceRequired is always true: the fixed source tree must never be
// mutated by a build.
func (l *LocalSource) CopySourceRequired() bool {
	return true
}

// CopySource copies the source tree into the build directory.
func (l *LocalSource) CopySource() error {
	return copyTree(l.srcDir, l.buildDir)
}

// GetVersions reports each file's mtime as its version identifier.
func (l *LocalSource) GetVersions(files []string) (map[string]string, error) {
	versions := make(map[string]string, len(files))
	for _, f := range files {
		info, err := os.Stat(filepath.Join(l.srcDir, f))
		if err != nil {
			continue // deleted since the walk; not an error
		}
		versions[f] = strconv.FormatInt(info.ModTime().Unix(), 10)
	}
	return versions, nil
}

// Cleanup is a no-op: the source tree is not ours to touch.
func (l *LocalSource) Cleanup() error {
	return nil
}
