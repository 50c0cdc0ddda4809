package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vbwagner/client-code/internal/log"
	"github.com/vbwagner/client-code/internal/modules"
	"github.com/vbwagner/client-code/internal/types"
	"github.com/vbwagner/client-code/internal/watchdog"
)

// stepLocaleTest runs the install checks once per configured locale: init
// a database instance under that locale, start it, run installcheck, run
// per-locale module hooks, stop it. The iteration is itself a nested
// application of the predicate-then-execute contract: a failing locale
// fails the stage, and every started instance is stopped either here or
// by the run's cleanup contract.
func stepLocaleTest(env *Env) types.StepResult {
	var combined types.StepResult
	for _, locale := range env.Cfg.Locales {
		combined.Log = append(combined.Log, "=== locale "+locale+" ===")
		r := localeCheck(env, locale)
		combined.Log = append(combined.Log, r.Log...)

		for _, m := range env.Registry.Modules() {
			if h, ok := m.(modules.LocaleEndHook); ok {
				if err := h.LocaleEnd(locale); err != nil {
					log.Warning(fmt.Sprintf("module %s locale-end: %v", m.Name(), err))
				}
			}
		}

		if !r.OK() {
			combined.Status = r.Status
			return combined
		}
	}
	return combined
}

// localeCheck runs the full check sequence for a single locale.
func localeCheck(env *Env, locale string) types.StepResult {
	dataDir := filepath.Join(env.BuildDir, "data-"+locale)
	bin := filepath.Join(env.InstallDir, "bin")

	res := run(env, env.BuildDir, filepath.Join(bin, "initdb"),
		"-D", dataDir, "--locale="+locale, "-A", "trust")
	if !res.OK() {
		appendSideFile(env, &res, "initdb.log")
		return res
	}

	dbLog := filepath.Join(env.LogDir, "db-"+locale+".log")
	startRes := run(env, env.BuildDir, filepath.Join(bin, "pg_ctl"),
		"-D", dataDir, "-l", dbLog, "-w", "start")
	res.Log = append(res.Log, startRes.Log...)
	if !startRes.OK() {
		res.Status = startRes.Status
		appendSideFile(env, &res, dbLog)
		return res
	}
	env.StartedDBs = append(env.StartedDBs, StartedDB{Locale: locale, DataDir: dataDir})

	checkRes := runMake(env, env.BuildDir, "installcheck")
	res.Log = append(res.Log, checkRes.Log...)
	if !checkRes.OK() {
		res.Status = checkRes.Status
		appendRegressionArtifacts(env, &res)
		return res
	}

	for _, m := range env.Registry.Modules() {
		if h, ok := m.(modules.InstallCheckHook); ok {
			hr := h.InstallCheck(env.InstallDir, locale)
			res.Log = append(res.Log, hr.Log...)
			if !hr.OK() {
				res.Status = hr.Status
				return res
			}
		}
	}

	if err := env.StopDB(StartedDB{Locale: locale, DataDir: dataDir}); err != nil {
		res.Status = 1
		res.Log = append(res.Log, fmt.Sprintf("*** stop database (%s): %v", locale, err))
	}
	return res
}

// StopDB stops the database instance for db from its own data directory
// and drops it from the started list. Stopping an already-stopped
// instance is a no-op.
func (e *Env) StopDB(db StartedDB) error {
	idx := -1
	for i, d := range e.StartedDBs {
		if d.DataDir == db.DataDir {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	// Run under a private deadline, not env.Ctx: instances must be
	// stoppable from the cleanup path even after the overall watchdog
	// has fired.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	res, err := watchdog.Run(ctx, db.DataDir, e.ExtraEnv,
		filepath.Join(e.InstallDir, "bin", "pg_ctl"),
		"-D", db.DataDir, "-m", "fast", "-w", "stop")
	e.StartedDBs = append(e.StartedDBs[:idx], e.StartedDBs[idx+1:]...)
	if err != nil {
		return fmt.Errorf("pg_ctl stop: %w", err)
	}
	if res.Status != 0 {
		return fmt.Errorf("pg_ctl stop exited with status %d", res.Status)
	}
	return nil
}

// StopAllDBs stops every database instance still recorded as started,
// each from its matching data directory. Used by the cleanup contract.
func (e *Env) StopAllDBs() {
	for len(e.StartedDBs) > 0 {
		db := e.StartedDBs[0]
		if err := e.StopDB(db); err != nil {
			log.Warning(fmt.Sprintf("cleanup: stop database for locale %s: %v", db.Locale, err))
		}
	}
}
