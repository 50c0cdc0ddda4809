package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/vbwagner/client-code/internal/config"
	"github.com/vbwagner/client-code/internal/log"
	"github.com/vbwagner/client-code/internal/snapshot"
	"github.com/vbwagner/client-code/internal/types"
)

// Reporter owns the result-reporting transaction for one run: assembling
// the payload, spooling it, delivering it, and rolling the snapshot facts
// back when delivery fails.
type Reporter struct {
	Cfg       *config.BuildConfig
	Store     *snapshot.Store
	Spool     *Spool
	Transport Transport

	// Rollback holds the pre-run snapshot facts, captured by the run
	// controller before it advanced anything.
	Rollback snapshot.RollbackState

	// LogRoots are the work areas scanned for the log archive.
	LogRoots []string
}

// Report finishes the run with the given stage outcome and returns the
// process exit code. It is the single funnel for every terminal path:
//
//   - stage OK: success.snap advances, exit 0;
//   - step failure: payload assembled, spooled, and sent; exit 1;
//   - no-send mode: human-readable summary only, exit 0/1, no remote call;
//   - delivery failure: status/run.snap restored to their pre-run values
//     so the same change window is retried next invocation, and the exit
//     code is the transport's own failure code.
func (r *Reporter) Report(ctx context.Context, run *types.BuildRun, stage types.Stage, status int, logLines []string) int {
	if stage == types.StageOK {
		if err := r.Store.Record(types.SnapLastSuccess, run.SnapshotCurrent); err != nil {
			log.Warning(fmt.Sprintf("could not advance success snapshot: %v", err))
		}
		// A stale spooled failure describes a change window this run
		// has since rebuilt; the success supersedes it.
		if err := r.Spool.Clear(); err != nil {
			log.Warning(err.Error())
		}
		log.Success(fmt.Sprintf("branch %s: run %s completed OK", run.Branch, run.RunID))
		return 0
	}

	if r.Cfg.NoSend {
		r.printLocalSummary(run, stage, status, logLines)
		return 1
	}

	payload, err := r.assemble(run, stage, status, logLines)
	if err != nil {
		log.Error(fmt.Sprintf("could not assemble report: %v", err))
		return 1
	}

	// Persist before transmitting: a crash from here on is recoverable
	// by resending the spool on the next invocation.
	if err := r.Spool.Save(payload); err != nil {
		log.Warning(fmt.Sprintf("could not spool report: %v", err))
	}

	data, err := payload.Marshal()
	if err != nil {
		log.Error(err.Error())
		return 1
	}

	if err := r.Transport.Send(ctx, data); err != nil {
		return r.deliveryFailed(err)
	}

	if err := r.Spool.Clear(); err != nil {
		log.Warning(err.Error())
	}
	log.Info(fmt.Sprintf("failure at stage %s reported to %s", stage, r.Cfg.Collector))
	return 1
}

// ResendPending retries a spooled report left over from an earlier
// invocation. Returns 0 when nothing is pending or delivery succeeds;
// otherwise the transport's failure code. Snapshot facts are not touched:
// they were already rolled back (or never advanced) when the report was
// spooled.
func (r *Reporter) ResendPending(ctx context.Context) int {
	payload, err := r.Spool.Pending()
	if err != nil {
		log.Warning(fmt.Sprintf("unreadable pending report, discarding: %v", err))
		_ = r.Spool.Clear()
		return 0
	}
	if payload == nil {
		return 0
	}

	log.Info(fmt.Sprintf("resending pending report for stage %s (run %s)", payload.Stage, payload.RunID))
	data, err := payload.Marshal()
	if err != nil {
		log.Error(err.Error())
		return 1
	}
	if err := r.Transport.Send(ctx, data); err != nil {
		var sendErr *SendError
		if errors.As(err, &sendErr) {
			log.Error(sendErr.Error())
			return sendErr.Code
		}
		log.Error(err.Error())
		return 1
	}
	if err := r.Spool.Clear(); err != nil {
		log.Warning(err.Error())
	}
	log.Success("pending report delivered")
	return 0
}

// assemble builds the signed payload for a failure at stage.
func (r *Reporter) assemble(run *types.BuildRun, stage types.Stage, status int, logLines []string) (*Payload, error) {
	p := &Payload{
		SchemaVersion:       SchemaVersion,
		RunID:               run.RunID,
		Animal:              r.Cfg.Animal,
		Branch:              run.Branch,
		Stage:               string(stage),
		Status:              status,
		Timestamp:           run.StartTime.Unix(),
		Log:                 strings.Join(logLines, "\n"),
		ChangedThisRun:      JoinFiles(run.ChangedFiles),
		ChangedSinceSuccess: JoinFiles(run.ChangedSinceSuccess),
		ChangedVersions:     run.FileVersions,
		WindowStart:         windowStart(run),
		ConfigSummary:       r.configSummary(),
	}
	for _, s := range run.CompletedSteps {
		p.CompletedSteps = append(p.CompletedSteps, string(s))
	}

	// Early exclusion stages failed before the pipeline started; there
	// are no work areas worth archiving.
	if !stage.IsExclusion() {
		archive, err := BuildArchive(r.LogRoots...)
		if err != nil {
			log.Warning(fmt.Sprintf("could not build log archive: %v", err))
		} else {
			p.Archive = archive
		}
	}

	if err := p.Sign(r.Cfg.Secret); err != nil {
		return nil, err
	}
	return p, nil
}

// windowStart renders the prior-run boundary for the payload.
func windowStart(run *types.BuildRun) int64 {
	if run.SnapshotLastRun.IsZero() {
		return 0
	}
	return run.SnapshotLastRun.Unix()
}

// configSummary describes the build environment for the collector's
// display pages.
func (r *Reporter) configSummary() map[string]string {
	summary := map[string]string{
		"os":                runtime.GOOS,
		"arch":              runtime.GOARCH,
		"configure_command": r.Cfg.ConfigureCommand,
		"configure_opts":    r.Cfg.ConfigureOpts,
		"make_command":      r.Cfg.MakeCommand,
		"make_opts":         r.Cfg.MakeOpts,
		"locales":           strings.Join(r.Cfg.Locales, ","),
	}
	if host, err := os.Hostname(); err == nil {
		summary["host"] = host
	}
	return summary
}

// deliveryFailed applies the rollback-on-failure guarantee and maps the
// error to an exit code.
func (r *Reporter) deliveryFailed(err error) int {
	log.Error(fmt.Sprintf("report delivery failed: %v", err))
	if rbErr := r.Store.Restore(r.Rollback); rbErr != nil {
		log.Error(fmt.Sprintf("snapshot rollback failed: %v", rbErr))
	} else {
		log.Info("snapshot facts rolled back; this change window will be retried")
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Code
	}
	return 1
}

// printLocalSummary renders the failure for no-send (local) mode.
func (r *Reporter) printLocalSummary(run *types.BuildRun, stage types.Stage, status int, logLines []string) {
	log.Section(fmt.Sprintf("FAILURE at stage %s (status %d)", stage, status))
	tail := logLines
	if len(tail) > 50 {
		tail = tail[len(tail)-50:]
	}
	for _, line := range tail {
		fmt.Println(line)
	}
	log.Info(fmt.Sprintf("completed steps: %s", joinStages(run.CompletedSteps)))
	log.Info("no-send mode: nothing transmitted")
}

func joinStages(stages []types.Stage) string {
	if len(stages) == 0 {
		return "(none)"
	}
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
