package runner

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vbwagner/client-code/internal/config"
	"github.com/vbwagner/client-code/internal/lockfile"
	"github.com/vbwagner/client-code/internal/log"
	"github.com/vbwagner/client-code/internal/modules"
	"github.com/vbwagner/client-code/internal/pipeline"
	"github.com/vbwagner/client-code/internal/scm"
)

// cleanup implements the run's exit contract. It executes on every exit
// path (normal completion, failure, signal) exactly once, and only in
// the process that acquired the lock. The ordering is load-bearing: the
// lock is released last, after shared directories are back in a safe
// state, so a concurrent run cannot start against half-cleaned trees.
type cleanup struct {
	cfg      *config.BuildConfig
	layout   Layout
	env      *pipeline.Env
	registry *modules.Registry
	scm      scm.SCM
	lock     *lockfile.Lock

	// proceeded is set once the pipeline started mutating work trees;
	// failed once a step failed. A skipped run leaves both false and
	// touches nothing.
	proceeded bool
	failed    bool

	once sync.Once
}

// run performs the cleanup sequence. Idempotent: later calls are no-ops.
func (c *cleanup) run() {
	c.once.Do(c.doRun)
}

func (c *cleanup) doRun() {
	// Watchdogs are disarmed by their own defers before this runs; the
	// remaining contract is resource teardown in dependency order.

	// Started database instances first: they hold the work trees open.
	c.env.StopAllDBs()

	c.applyRetention()

	if err := c.registry.Cleanup(); err != nil {
		log.Warning(fmt.Sprintf("module cleanup: %v", err))
	}
	if err := c.scm.Cleanup(); err != nil {
		log.Warning(fmt.Sprintf("scm cleanup: %v", err))
	}

	// Lock release is last, and only here: every earlier action touches
	// state a concurrent run would otherwise race on.
	if err := c.lock.Release(); err != nil {
		log.Warning(fmt.Sprintf("lock release: %v", err))
	}
}

// applyRetention disposes of the run's work trees according to the
// configured retention policy. A run that never proceeded leaves the
// previous trees untouched.
func (c *cleanup) applyRetention() {
	if !c.proceeded || c.cfg.KeepAll {
		return
	}

	if c.failed && c.cfg.KeepOnError {
		// Move aside, not delete: failed trees are kept for post-mortem
		// under a timestamp suffix.
		suffix := ".failed-" + time.Now().Format("20060102T150405")
		for _, dir := range []string{c.layout.BuildDir, c.layout.InstallDir} {
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if err := os.Rename(dir, dir+suffix); err != nil {
				log.Warning(fmt.Sprintf("keep-on-error move %s: %v", dir, err))
			}
		}
		return
	}

	for _, dir := range []string{c.layout.BuildDir, c.layout.InstallDir} {
		if err := os.RemoveAll(dir); err != nil {
			log.Warning(fmt.Sprintf("remove %s: %v", dir, err))
		}
	}
}
