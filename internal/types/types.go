// Package types defines the shared structs and typed constants used by the
// bfrun build driver: the stage vocabulary, step results, and the per-run
// record threaded through every component.
package types

import "time"

// ---------------------------------------------------------------------------
// Typed constants
// ---------------------------------------------------------------------------

// Stage names one unit of the build pipeline, or one of the synthetic
// stages used only in reports. The pipeline stage set is fixed; unknown
// names supplied to skip/only filters are accepted but match nothing.
type Stage string

const (
	// Pipeline stages, in execution order.
	StageCheckout     Stage = "checkout"
	StageCopySource   Stage = "copy-source"
	StageConfigure    Stage = "configure"
	StageBuild        Stage = "build"
	StageBuildDocs    Stage = "build-docs"
	StageTest         Stage = "test"
	StageModuleTest   Stage = "module-test"
	StageInstall      Stage = "install"
	StageInstallTest  Stage = "install-test"
	StageLocaleTest   Stage = "locale-test"
	StageIsolation    Stage = "isolation-test"
	StagePLTest       Stage = "pl-test"
	StageECPGTest     Stage = "ecpg-test"
	StageTAPTest      Stage = "tap-test"
	StageFindTypedefs Stage = "find-typedefs"

	// Synthetic stages. StageOK marks a fully successful run; the
	// exclusion stages mark failures before the pipeline ever started
	// and produce no log archive.
	StageOK       Stage = "OK"
	StageLockFail Stage = "lock-fail"
	StageSCMFail  Stage = "scm-fail"
)

// PipelineStages lists the pipeline stage vocabulary in execution order.
// Skip/only filtering and report consumers rely on this ordering.
var PipelineStages = []Stage{
	StageCheckout,
	StageCopySource,
	StageConfigure,
	StageBuild,
	StageBuildDocs,
	StageTest,
	StageModuleTest,
	StageInstall,
	StageInstallTest,
	StageLocaleTest,
	StageIsolation,
	StagePLTest,
	StageECPGTest,
	StageTAPTest,
	StageFindTypedefs,
}

// IsExclusion reports whether s is an early exclusion stage: a failure in
// the lock or SCM layer before the pipeline started. Exclusion stages
// never carry a log archive.
func (s Stage) IsExclusion() bool {
	return s == StageLockFail || s == StageSCMFail
}

// SnapshotKind names one of the three persisted timestamp facts kept per
// branch.
type SnapshotKind string

const (
	// SnapStatus is the start time of the last attempted run.
	SnapStatus SnapshotKind = "status"
	// SnapLastRun is the source snapshot at the last attempted run.
	SnapLastRun SnapshotKind = "run.snap"
	// SnapLastSuccess is the source snapshot at the last fully
	// successful run.
	SnapLastSuccess SnapshotKind = "success.snap"
)

// ---------------------------------------------------------------------------
// Run records
// ---------------------------------------------------------------------------

// StepResult is the outcome of one executed pipeline step: the subprocess
// exit status and the whole captured output. It is consumed exactly once
// by the reporter and discarded after reporting.
type StepResult struct {
	Stage  Stage
	Status int
	Log    []string
}

// OK reports whether the step succeeded.
func (r StepResult) OK() bool {
	return r.Status == 0
}

// BuildRun records the identity and progress of a single process
// invocation. It is owned exclusively by the run controller and lives for
// one invocation only.
type BuildRun struct {
	Branch    string
	RunID     string
	StartTime time.Time
	LockHeld  bool

	// CompletedSteps holds, in order, every stage that both executed and
	// succeeded. A failing stage is never appended.
	CompletedSteps []Stage

	// SnapshotCurrent is the source snapshot observed for this run.
	// SnapshotLastRun and SnapshotLastSuccess are the historical values
	// read before the run advanced anything; zero when absent.
	SnapshotCurrent     time.Time
	SnapshotLastRun     time.Time
	SnapshotLastSuccess time.Time

	// ChangedFiles are the files changed since the last attempted run,
	// after trigger filtering. ChangedSinceSuccess is the unfiltered set
	// since the last successful run, kept for reporting.
	ChangedFiles        []string
	ChangedSinceSuccess []string

	// FileVersions maps each changed file to its version identifier as
	// reported by the SCM, for the failure report.
	FileVersions map[string]string
}
