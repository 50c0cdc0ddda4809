// Package runner wires the build driver together: lock acquisition, the
// rebuild decision, pipeline execution under the watchdogs, result
// reporting, and the cleanup-on-exit contract.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vbwagner/client-code/internal/config"
	"github.com/vbwagner/client-code/internal/lockfile"
	"github.com/vbwagner/client-code/internal/log"
	"github.com/vbwagner/client-code/internal/metrics"
	"github.com/vbwagner/client-code/internal/modules"
	"github.com/vbwagner/client-code/internal/pipeline"
	"github.com/vbwagner/client-code/internal/report"
	"github.com/vbwagner/client-code/internal/scm"
	"github.com/vbwagner/client-code/internal/snapshot"
	"github.com/vbwagner/client-code/internal/types"
	"github.com/vbwagner/client-code/internal/watchdog"
)

// sigExitCode is returned after a signal-triggered interruption once
// cleanup has completed.
const sigExitCode = 130

// Controller drives one build run for one branch. Zero-value collaborator
// fields are constructed from the configuration; tests inject fakes.
type Controller struct {
	Cfg       *config.BuildConfig
	SCM       scm.SCM
	Transport report.Transport
	Registry  *modules.Registry
	Steps     []pipeline.Step
}

// Layout is the per-branch directory layout under the build root.
type Layout struct {
	BranchDir  string
	SourceDir  string
	BuildDir   string
	InstallDir string
	LogDir     string
}

// NewLayout computes the layout for branch under root.
func NewLayout(root, branch string) Layout {
	branchDir := filepath.Join(root, branch)
	return Layout{
		BranchDir:  branchDir,
		SourceDir:  filepath.Join(branchDir, "source"),
		BuildDir:   filepath.Join(branchDir, "build"),
		InstallDir: filepath.Join(branchDir, "inst"),
		LogDir:     filepath.Join(branchDir, "logs"),
	}
}

// Run executes one build cycle and returns the process exit code.
// Configuration problems are fatal and returned as errors before any lock
// is acquired or any destructive action taken; every other outcome is an
// exit code.
func (c *Controller) Run(ctx context.Context) (int, error) {
	cfg := c.Cfg
	if err := config.Validate(cfg); err != nil {
		return 1, fmt.Errorf("configuration: %w", err)
	}
	filters, err := pipeline.NewFilters(cfg.SkipSteps, cfg.OnlySteps)
	if err != nil {
		return 1, fmt.Errorf("configuration: %w", err)
	}
	log.SetVerbosity(cfg.Verbose)

	layout := NewLayout(cfg.BuildRoot, cfg.Branch)
	for _, dir := range []string{layout.BranchDir, layout.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 1, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if c.Registry == nil {
		c.Registry = modules.NewRegistry(
			modules.NewForceFile(filepath.Join(layout.BranchDir, "force-run")),
		)
	}
	if c.SCM == nil {
		if cfg.ExplicitSource() {
			c.SCM = scm.NewLocalSource(cfg.FromSource, layout.BuildDir)
		} else {
			c.SCM = scm.NewGit(cfg.RepoURL, layout.SourceDir, layout.BuildDir)
		}
	}
	if c.Transport == nil && !cfg.NoSend {
		c.Transport = report.NewHTTPTransport(cfg.Collector)
	}

	store, err := snapshot.NewStore(filepath.Join(layout.BranchDir, "snapshots"))
	if err != nil {
		return 1, err
	}
	spool, err := report.NewSpool(layout.BranchDir)
	if err != nil {
		return 1, err
	}
	rollback, err := store.Capture()
	if err != nil {
		return 1, err
	}

	reporter := &report.Reporter{
		Cfg:       cfg,
		Store:     store,
		Spool:     spool,
		Transport: c.Transport,
		Rollback:  rollback,
		LogRoots:  []string{layout.BuildDir, layout.LogDir},
	}

	// A spooled report from an earlier crashed or undeliverable run is
	// retried before anything else. A transport that is still failing
	// must not stop the build itself: the rolled-back change window is
	// re-evaluated below, and the new run's report supersedes the
	// spooled one.
	if !cfg.NoSend {
		if code := reporter.ResendPending(ctx); code != 0 {
			log.Warning(fmt.Sprintf("pending report still undeliverable (code %d), continuing with the run", code))
		}
	}

	// Signals funnel into context cancellation so an interrupted
	// subprocess fails its step and the normal cleanup contract runs.
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := &types.BuildRun{
		Branch:    cfg.Branch,
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}

	// Lock acquisition: contention is a legitimate "someone else is
	// building" signal and a clean success exit, except in explicit
	// source mode, where an ambiguous result would be worse than none.
	lock, err := lockfile.Acquire(filepath.Join(layout.BranchDir, "bfrun.lock"))
	if err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			if cfg.ExplicitSource() {
				return 1, fmt.Errorf("another run holds the %s lock; explicit source mode cannot proceed", cfg.Branch)
			}
			log.Info(fmt.Sprintf("branch %s: another run in progress, nothing to do", cfg.Branch))
			return 0, nil
		}
		return reporter.Report(ctx, run, types.StageLockFail, 1, []string{err.Error()}), nil
	}
	run.LockHeld = true

	env := &pipeline.Env{
		Ctx:        sigCtx,
		Cfg:        cfg,
		SCM:        c.SCM,
		SourceDir:  layout.SourceDir,
		BuildDir:   layout.BuildDir,
		InstallDir: layout.InstallDir,
		LogDir:     layout.LogDir,
		Registry:   c.Registry,
		Metrics:    &metrics.Recorder{},
	}

	cl := &cleanup{
		cfg:      cfg,
		layout:   layout,
		env:      env,
		registry: c.Registry,
		scm:      c.SCM,
		lock:     lock,
	}
	defer cl.run()

	code := c.execute(sigCtx, env, run, store, reporter, filters, cl)

	// cleanup runs via defer before the code is returned to the caller;
	// a signal observed here still exits non-zero after cleanup.
	if code == 0 && sigCtx.Err() != nil && ctx.Err() == nil {
		return sigExitCode, nil
	}
	return code, nil
}

// execute performs the post-lock phases and returns the exit code.
func (c *Controller) execute(
	ctx context.Context,
	env *pipeline.Env,
	run *types.BuildRun,
	store *snapshot.Store,
	reporter *report.Reporter,
	filters pipeline.Filters,
	cl *cleanup,
) int {
	cfg := c.Cfg

	// Overall watchdog bounds everything from here to the report.
	wd := watchdog.Arm(ctx, "overall",
		time.Duration(cfg.WaitTimeout)*time.Minute,
		func(name string) {
			log.Warning(fmt.Sprintf("%s watchdog fired after %dm, cancelling run", name, cfg.WaitTimeout))
		})
	defer wd.Disarm()
	env.Ctx = wd.Context()

	// Checkout precedes the rebuild decision: change detection must see
	// fresh upstream state. It honours skip/only filtering under its
	// own stage name.
	if filters.Allows(types.StageCheckout) {
		start := time.Now()
		res := pipeline.Checkout(env)
		res.Stage = types.StageCheckout
		env.Metrics.Record(types.StageCheckout, res.Status, time.Since(start))
		if !res.OK() {
			return reporter.Report(ctx, run, types.StageSCMFail, res.Status, res.Log)
		}
		run.CompletedSteps = append(run.CompletedSteps, types.StageCheckout)
	}

	// Read the three historical facts and ask the SCM what changed.
	lastStatus, _, err := store.Read(types.SnapStatus)
	if err != nil {
		return reporter.Report(ctx, run, types.StageSCMFail, 1, []string{err.Error()})
	}
	lastRun, haveLastRun, err := store.Read(types.SnapLastRun)
	if err != nil {
		return reporter.Report(ctx, run, types.StageSCMFail, 1, []string{err.Error()})
	}
	lastSuccess, _, err := store.Read(types.SnapLastSuccess)
	if err != nil {
		return reporter.Report(ctx, run, types.StageSCMFail, 1, []string{err.Error()})
	}

	snapTime, changed, changedSuccess, err := c.SCM.FindChanged(lastRun, lastSuccess)
	if err != nil {
		return reporter.Report(ctx, run, types.StageSCMFail, 1, []string{err.Error()})
	}

	run.SnapshotCurrent = snapTime
	run.SnapshotLastRun = lastRun
	run.SnapshotLastSuccess = lastSuccess
	// Trigger filtering narrows only the rebuild decision; the
	// since-success list is reported unfiltered.
	run.ChangedFiles = cfg.FilterChanged(changed)
	run.ChangedSinceSuccess = changedSuccess

	if vers, err := c.SCM.GetVersions(run.ChangedFiles); err != nil {
		log.Warning(fmt.Sprintf("file version lookup: %v", err))
	} else {
		run.FileVersions = vers
	}

	moduleDemand, err := c.Registry.AnyNeedsRun()
	if err != nil {
		log.Warning(fmt.Sprintf("module need-run check: %v", err))
	}

	decision := snapshot.NeedsRun(snapshot.Input{
		LastStatus:   lastStatus,
		HaveLastRun:  haveLastRun,
		ForceEvery:   cfg.ForceEvery,
		Force:        cfg.Force || cfg.ExplicitSource(),
		ChangedFiles: run.ChangedFiles,
		ModuleDemand: moduleDemand,
		Now:          run.StartTime,
	})
	if !decision.Proceed {
		log.Info(fmt.Sprintf("branch %s: no build required (%s)", cfg.Branch, decision.Reason))
		return 0
	}
	log.Info(fmt.Sprintf("branch %s: build required (%s)", cfg.Branch, decision.Reason))
	if decision.FromScratch {
		// The change lists stay as queried: the report describes the
		// boundary the detection actually ran against.
		log.Verbose("prior snapshot history absent or stale, building regardless of change set")
	}

	cl.proceeded = true

	// Advance the attempted-run markers before any step executes, so a
	// mid-pipeline failure does not loop forever retrying the same
	// snapshot. success.snap advances only on full success.
	if err := store.Record(types.SnapStatus, run.StartTime); err != nil {
		return reporter.Report(ctx, run, types.StageSCMFail, 1, []string{err.Error()})
	}
	if err := store.Record(types.SnapLastRun, run.SnapshotCurrent); err != nil {
		return reporter.Report(ctx, run, types.StageSCMFail, 1, []string{err.Error()})
	}

	steps := c.Steps
	if steps == nil {
		steps = pipeline.DefaultSteps()
	}
	outcome := pipeline.Run(env, steps, filters)
	run.CompletedSteps = append(run.CompletedSteps, outcome.Completed...)

	if cfg.Verbose > 0 || cfg.NoSend {
		env.Metrics.PrintSummary()
	}

	if !outcome.OK() {
		cl.failed = true
		failed := outcome.Failed
		return reporter.Report(ctx, run, failed.Stage, failed.Status, failed.Log)
	}
	return reporter.Report(ctx, run, types.StageOK, 0, nil)
}
