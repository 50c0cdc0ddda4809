package scm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vbwagner/client-code/internal/watchdog"
)

// Git is an SCM backed by a git checkout kept under sourceDir. The network
// operations (clone, fetch) run under the caller's context so the SCM
// watchdog can bound them; local history queries run unbounded.
type Git struct {
	repoURL   string
	sourceDir string
	buildDir  string
}

// NewGit returns a Git SCM that keeps its checkout in sourceDir and copies
// it to buildDir before each build.
func NewGit(repoURL, sourceDir, buildDir string) *Git {
	return &Git{repoURL: repoURL, sourceDir: sourceDir, buildDir: buildDir}
}

// Checkout clones the repository on first use, then fetches and checks out
// branch, returning the combined transcript of the git commands run.
func (g *Git) Checkout(ctx context.Context, branch string) (string, error) {
	var transcript []string

	if _, err := os.Stat(filepath.Join(g.sourceDir, ".git")); errors.Is(err, os.ErrNotExist) {
		res, err := watchdog.Run(ctx, filepath.Dir(g.sourceDir), nil,
			"git", "clone", "--branch", branch, g.repoURL, g.sourceDir)
		transcript = append(transcript, res.Log...)
		if err != nil || res.Status != 0 {
			return strings.Join(transcript, "\n"), checkoutError("clone", branch, res, err)
		}
		return strings.Join(transcript, "\n"), nil
	}

	res, err := watchdog.Run(ctx, g.sourceDir, nil, "git", "fetch", "origin")
	transcript = append(transcript, res.Log...)
	if err != nil || res.Status != 0 {
		return strings.Join(transcript, "\n"), checkoutError("fetch", branch, res, err)
	}

	res, err = watchdog.Run(ctx, g.sourceDir, nil,
		"git", "checkout", "--force", branch)
	transcript = append(transcript, res.Log...)
	if err != nil || res.Status != 0 {
		return strings.Join(transcript, "\n"), checkoutError("checkout", branch, res, err)
	}

	res, err = watchdog.Run(ctx, g.sourceDir, nil,
		"git", "reset", "--hard", "origin/"+branch)
	transcript = append(transcript, res.Log...)
	if err != nil || res.Status != 0 {
		return strings.Join(transcript, "\n"), checkoutError("reset", branch, res, err)
	}

	return strings.Join(transcript, "\n"), nil
}

func checkoutError(op, branch string, res watchdog.Result, err error) error {
	if res.TimedOut {
		return fmt.Errorf("git %s %q timed out", op, branch)
	}
	if err != nil {
		return fmt.Errorf("git %s %q: %w", op, branch, err)
	}
	return fmt.Errorf("git %s %q exited with status %d", op, branch, res.Status)
}

// FindChanged reports the commit time of HEAD as the current snapshot and
// the files touched by commits after sinceRun and sinceSuccess. A zero
// since time yields every tracked file.
func (g *Git) FindChanged(sinceRun, sinceSuccess time.Time) (time.Time, []string, []string, error) {
	out, err := g.git("log", "-1", "--format=%ct")
	if err != nil {
		return time.Time{}, nil, nil, err
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("parse HEAD commit time: %w", err)
	}
	snap := time.Unix(sec, 0)

	changed, err := g.filesSince(sinceRun)
	if err != nil {
		return time.Time{}, nil, nil, err
	}
	changedSuccess, err := g.filesSince(sinceSuccess)
	if err != nil {
		return time.Time{}, nil, nil, err
	}
	return snap, changed, changedSuccess, nil
}

// filesSince returns the sorted, deduplicated set of files touched by
// commits after t. A zero t returns every tracked file.
func (g *Git) filesSince(t time.Time) ([]string, error) {
	var out string
	var err error
	if t.IsZero() {
		out, err = g.git("ls-files")
	} else {
		out, err = g.git("log", "--name-only", "--format=",
			"--since="+strconv.FormatInt(t.Unix(), 10))
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		files = append(files, line)
	}
	sort.Strings(files)
	return files, nil
}

// CopySourceRequired is always true for git: the pristine checkout is kept
// and the build mutates a copy.
func (g *Git) CopySourceRequired() bool {
	return true
}

// CopySource copies the checkout (minus .git) into the build directory.
func (g *Git) CopySource() error {
	return copyTree(g.sourceDir, g.buildDir, ".git")
}

// GetVersions returns the HEAD commit hash for each file, for inclusion in
// failure reports. Files unknown to git are omitted.
func (g *Git) GetVersions(files []string) (map[string]string, error) {
	versions := make(map[string]string, len(files))
	for _, f := range files {
		out, err := g.git("log", "-1", "--format=%H", "--", f)
		if err != nil {
			return nil, err
		}
		hash := strings.TrimSpace(out)
		if hash != "" {
			versions[f] = hash
		}
	}
	return versions, nil
}

// Cleanup prunes stale git state left by an interrupted fetch.
func (g *Git) Cleanup() error {
	if _, err := os.Stat(filepath.Join(g.sourceDir, ".git")); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	_, err := g.git("gc", "--auto")
	return err
}

// git runs a git subcommand in the source directory and returns stdout.
func (g *Git) git(args ...string) (string, error) {
	res, err := watchdog.Run(context.Background(), g.sourceDir, nil, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	if res.Status != 0 {
		return "", fmt.Errorf("git %s exited with status %d:\n%s",
			args[0], res.Status, strings.Join(res.Log, "\n"))
	}
	return strings.Join(res.Log, "\n"), nil
}
