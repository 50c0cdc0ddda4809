package snapshot

import (
	"fmt"
	"time"
)

// Input carries everything the rebuild decision depends on. ChangedFiles
// must already have trigger filtering applied; the unfiltered since-success
// set is not part of the decision, only of reporting.
type Input struct {
	// LastStatus is the start time of the last attempted run; zero when
	// no run has been recorded.
	LastStatus time.Time

	// HaveLastRun reports whether a run.snap fact exists. A missing fact
	// forces a from-scratch run.
	HaveLastRun bool

	// ForceEvery is the heartbeat interval in hours; zero disables the
	// heartbeat.
	ForceEvery int

	// Force is the explicit force flag.
	Force bool

	// ChangedFiles is the trigger-filtered set of files changed since
	// the last attempted run.
	ChangedFiles []string

	// ModuleDemand reports whether any registered module independently
	// signalled that it needs a run.
	ModuleDemand bool

	Now time.Time
}

// Decision is the outcome of the rebuild check.
type Decision struct {
	// Proceed is true when the run should go ahead.
	Proceed bool

	// Forced is true when the "nothing changed" short-circuit was
	// bypassed.
	Forced bool

	// FromScratch is true when the last status time must be treated as
	// zero: either no prior run snapshot exists or the heartbeat
	// interval elapsed. Callers must discard their lastStatus value in
	// this case.
	FromScratch bool

	// Reason is a human-readable explanation for the decision.
	Reason string
}

// NeedsRun applies the rebuild-trigger algorithm. A run is forced when no
// prior run snapshot exists, when the heartbeat interval has elapsed since
// the last status, when the explicit force flag is set, or when a module
// demands a run. If not forced and the filtered change set is empty and no
// module demands a run, the run is skipped and callers must treat the skip
// as success, not failure.
func NeedsRun(in Input) Decision {
	switch {
	case !in.HaveLastRun:
		return Decision{
			Proceed:     true,
			Forced:      true,
			FromScratch: true,
			Reason:      "no prior run snapshot",
		}
	case in.ForceEvery > 0 && in.LastStatus.Before(in.Now.Add(-time.Duration(in.ForceEvery)*time.Hour)):
		return Decision{
			Proceed:     true,
			Forced:      true,
			FromScratch: true,
			Reason:      fmt.Sprintf("heartbeat: last run older than %dh", in.ForceEvery),
		}
	case in.Force:
		return Decision{Proceed: true, Forced: true, Reason: "forced by flag"}
	case in.ModuleDemand:
		return Decision{Proceed: true, Forced: true, Reason: "module demands a run"}
	case len(in.ChangedFiles) > 0:
		return Decision{
			Proceed: true,
			Reason:  fmt.Sprintf("%d changed file(s)", len(in.ChangedFiles)),
		}
	default:
		return Decision{Reason: "nothing changed"}
	}
}
