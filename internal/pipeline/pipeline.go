// Package pipeline executes the ordered sequence of build steps for one
// run.
//
// The step set is fixed by DefaultSteps; membership is filtered by the
// configured skip/only sets and per-step predicates, never reordered. The
// scheduler is fail-fast: the first non-zero step status stops the
// pipeline and is handed to the reporter. Each step's output is captured
// whole and attached to the step's name; a step joins the completed
// sequence only after it both executed and succeeded.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/vbwagner/client-code/internal/config"
	"github.com/vbwagner/client-code/internal/log"
	"github.com/vbwagner/client-code/internal/metrics"
	"github.com/vbwagner/client-code/internal/modules"
	"github.com/vbwagner/client-code/internal/scm"
	"github.com/vbwagner/client-code/internal/types"
)

// StartedDB records a database service started for a locale, so cleanup
// can stop every started instance from its own data directory.
type StartedDB struct {
	Locale  string
	DataDir string
}

// Env is the run-scoped execution context threaded through every step.
// It replaces ambient process state: environment overlays and directory
// layout live here and die with the run.
type Env struct {
	Ctx context.Context
	Cfg *config.BuildConfig
	SCM scm.SCM

	// Directory layout, all under the build root's branch directory.
	SourceDir  string
	BuildDir   string
	InstallDir string
	LogDir     string

	Registry *modules.Registry
	Metrics  *metrics.Recorder

	// ExtraEnv entries (NAME=value) are applied to every step
	// subprocess; they are run-scoped overlays, never exported to the
	// parent environment.
	ExtraEnv []string

	// StartedDBs tracks database instances started during locale
	// testing that have not been stopped yet.
	StartedDBs []StartedDB
}

// Step is one named, independently skippable unit of the pipeline. When
// is evaluated after the skip/only filters; a nil When always executes.
type Step struct {
	Name   types.Stage
	When   func(*Env) bool
	Action func(*Env) types.StepResult
}

// Outcome is the result of running the pipeline.
type Outcome struct {
	// Failed is the first failing step result, nil when every executed
	// step succeeded.
	Failed *types.StepResult

	// Completed lists, in order, every step that executed and
	// succeeded.
	Completed []types.Stage
}

// OK reports whether the pipeline ran to completion without failure.
func (o Outcome) OK() bool {
	return o.Failed == nil
}

// Run executes steps strictly in order under the filters. A step executes
// only if the filters allow it and its predicate holds; the first failure
// aborts the remaining steps.
func Run(env *Env, steps []Step, filters Filters) Outcome {
	var out Outcome
	for _, step := range steps {
		if !filters.Allows(step.Name) {
			log.Verbose(fmt.Sprintf("step %s filtered out", step.Name))
			continue
		}
		if step.When != nil && !step.When(env) {
			log.Verbose(fmt.Sprintf("step %s not applicable", step.Name))
			continue
		}

		log.Section(fmt.Sprintf("STEP %s", step.Name))
		start := time.Now()
		res := step.Action(env)
		res.Stage = step.Name
		if env.Metrics != nil {
			env.Metrics.Record(step.Name, res.Status, time.Since(start))
		}

		if !res.OK() {
			log.Error(fmt.Sprintf("step %s failed with status %d", step.Name, res.Status))
			out.Failed = &res
			return out
		}

		log.Success(fmt.Sprintf("step %s ok", step.Name))
		out.Completed = append(out.Completed, step.Name)
	}
	return out
}
