// Package scm isolates the source-control collaborator behind the narrow
// interface the build core needs. Two implementations exist: a git-backed
// one that maintains a checkout per branch, and an explicit-source one
// that builds from a fixed local directory, bypassing change detection.
package scm

import (
	"context"
	"time"
)

// SCM is the source-control surface the run controller depends on. The
// core treats everything behind it as an external collaborator.
type SCM interface {
	// Checkout brings the branch's source tree up to date and returns
	// the checkout transcript. It must respect ctx: a wedged network
	// operation is bounded by the SCM watchdog's deadline.
	Checkout(ctx context.Context, branch string) (string, error)

	// FindChanged returns the current source snapshot time, the files
	// changed since sinceRun, and the files changed since sinceSuccess.
	// A zero since time means "everything": both sets contain all
	// tracked files.
	FindChanged(sinceRun, sinceSuccess time.Time) (time.Time, []string, []string, error)

	// CopySource copies the pristine tree aside so the build never
	// dirties the checkout.
	CopySource() error

	// CopySourceRequired reports whether the pristine tree must be
	// copied aside before building.
	CopySourceRequired() bool

	// GetVersions returns a per-file version identifier for the given
	// paths, for inclusion in failure reports.
	GetVersions(files []string) (map[string]string, error)

	// Cleanup releases any SCM-held resources at the end of the run.
	Cleanup() error
}
