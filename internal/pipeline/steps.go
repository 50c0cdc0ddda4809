package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vbwagner/client-code/internal/config"
	"github.com/vbwagner/client-code/internal/log"
	"github.com/vbwagner/client-code/internal/modules"
	"github.com/vbwagner/client-code/internal/types"
	"github.com/vbwagner/client-code/internal/watchdog"
)

// DefaultSteps returns the fixed pipeline in execution order. The set is
// static; runtime conditions only filter membership, never reorder.
func DefaultSteps() []Step {
	return []Step{
		{Name: types.StageCopySource, When: whenCopySource, Action: stepCopySource},
		{Name: types.StageConfigure, Action: stepConfigure},
		{Name: types.StageBuild, Action: stepBuild},
		{Name: types.StageBuildDocs, When: whenBuildDocs, Action: stepBuildDocs},
		{Name: types.StageTest, Action: stepTest},
		{Name: types.StageModuleTest, When: whenModuleTest, Action: stepModuleTest},
		{Name: types.StageInstall, Action: stepInstall},
		{Name: types.StageInstallTest, Action: stepInstallTest},
		{Name: types.StageLocaleTest, When: whenLocaleTest, Action: stepLocaleTest},
		{Name: types.StageIsolation, When: whenDirExists("src/test/isolation"), Action: stepIsolation},
		{Name: types.StagePLTest, When: whenDirExists("src/pl"), Action: stepPLTest},
		{Name: types.StageECPGTest, When: whenDirExists("src/interfaces/ecpg"), Action: stepECPGTest},
		{Name: types.StageTAPTest, When: whenTAPTest, Action: stepTAPTest},
		{Name: types.StageFindTypedefs, When: whenFindTypedefs, Action: stepFindTypedefs},
	}
}

// ---------------------------------------------------------------------------
// Subprocess helpers
// ---------------------------------------------------------------------------

// run executes a subprocess for a step, translating invocation errors into
// a failed StepResult so the scheduler's fail-fast path handles them
// uniformly.
func run(env *Env, dir, name string, args ...string) types.StepResult {
	res, err := watchdog.Run(env.Ctx, dir, env.ExtraEnv, name, args...)
	sr := types.StepResult{Status: res.Status, Log: res.Log}
	if res.TimedOut {
		sr.Log = append(sr.Log, fmt.Sprintf("*** %s terminated: run deadline exceeded", name))
		if sr.Status == 0 {
			sr.Status = -1
		}
	}
	if err != nil {
		sr.Log = append(sr.Log, fmt.Sprintf("*** %s: %v", name, err))
		if sr.Status == 0 {
			sr.Status = -1
		}
	}
	return sr
}

// runMake executes the configured make command with the configured extra
// options plus args, in dir.
func runMake(env *Env, dir string, args ...string) types.StepResult {
	argv, err := makeArgv(env.Cfg, args...)
	if err != nil {
		return types.StepResult{Status: -1, Log: []string{err.Error()}}
	}
	return run(env, dir, argv[0], argv[1:]...)
}

func makeArgv(cfg *config.BuildConfig, args ...string) ([]string, error) {
	argv, err := config.SplitShellArgs(cfg.MakeCommand)
	if err != nil {
		return nil, fmt.Errorf("make_command: %v", err)
	}
	opts, err := config.SplitShellArgs(cfg.MakeOpts)
	if err != nil {
		return nil, fmt.Errorf("make_opts: %v", err)
	}
	argv = append(argv, opts...)
	return append(argv, args...), nil
}

// hookFailure converts a lifecycle hook error into a failed StepResult.
func hookFailure(module string, err error) types.StepResult {
	return types.StepResult{
		Status: 1,
		Log:    []string{fmt.Sprintf("module %s: %v", module, err)},
	}
}

// ---------------------------------------------------------------------------
// Step predicates
// ---------------------------------------------------------------------------

func whenCopySource(env *Env) bool {
	return env.SCM.CopySourceRequired()
}

func whenBuildDocs(env *Env) bool {
	return env.Cfg.BuildDocs
}

func whenModuleTest(env *Env) bool {
	for _, m := range env.Registry.Modules() {
		if _, ok := m.(modules.CheckHook); ok {
			return true
		}
	}
	return false
}

func whenLocaleTest(env *Env) bool {
	return len(env.Cfg.Locales) > 0
}

func whenDirExists(rel string) func(*Env) bool {
	return func(env *Env) bool {
		info, err := os.Stat(filepath.Join(env.BuildDir, rel))
		return err == nil && info.IsDir()
	}
}

func whenTAPTest(env *Env) bool {
	return whenDirExists("src/bin")(env)
}

func whenFindTypedefs(env *Env) bool {
	return env.Cfg.FindTypedefs
}

// ---------------------------------------------------------------------------
// Step actions
// ---------------------------------------------------------------------------

// Checkout brings the source tree up to date. It runs before the rebuild
// decision (change detection needs fresh upstream state) and only this
// phase runs under the SCM watchdog: a wedged network fetch must not hang
// the run, while the overall deadline still bounds everything else.
// Although not part of DefaultSteps, it honours the same skip/only
// filtering under its stage name.
func Checkout(env *Env) types.StepResult {
	wd := watchdog.Arm(env.Ctx, "scm",
		time.Duration(env.Cfg.SCMTimeout)*time.Minute,
		func(name string) {
			log.Warning(fmt.Sprintf("%s watchdog fired: checkout exceeded %dm", name, env.Cfg.SCMTimeout))
		})
	transcript, err := env.SCM.Checkout(wd.Context(), env.Cfg.Branch)
	wd.Disarm()

	res := types.StepResult{Log: splitTranscript(transcript)}
	if err != nil {
		res.Status = 1
		res.Log = append(res.Log, fmt.Sprintf("*** checkout: %v", err))
		return res
	}

	for _, m := range env.Registry.Modules() {
		if h, ok := m.(modules.CheckoutHook); ok {
			if err := h.AfterCheckout(env.SourceDir); err != nil {
				return hookFailure(m.Name(), err)
			}
		}
	}
	return res
}

func stepCopySource(env *Env) types.StepResult {
	if err := env.SCM.CopySource(); err != nil {
		return types.StepResult{Status: 1, Log: []string{fmt.Sprintf("*** copy source: %v", err)}}
	}
	return types.StepResult{Log: []string{"source tree copied to " + env.BuildDir}}
}

func stepConfigure(env *Env) types.StepResult {
	argv, err := config.SplitShellArgs(env.Cfg.ConfigureCommand)
	if err != nil {
		return types.StepResult{Status: -1, Log: []string{"configure_command: " + err.Error()}}
	}
	opts, err := config.SplitShellArgs(env.Cfg.ConfigureOpts)
	if err != nil {
		return types.StepResult{Status: -1, Log: []string{"configure_opts: " + err.Error()}}
	}
	argv = append(argv, opts...)
	argv = append(argv, "--prefix="+env.InstallDir)

	res := run(env, env.BuildDir, argv[0], argv[1:]...)
	if !res.OK() {
		appendSideFile(env, &res, "config.log")
		return res
	}

	for _, m := range env.Registry.Modules() {
		if h, ok := m.(modules.ConfigureHook); ok {
			if err := h.AfterConfigure(env.BuildDir); err != nil {
				return hookFailure(m.Name(), err)
			}
		}
	}
	return res
}

func stepBuild(env *Env) types.StepResult {
	res := runMake(env, env.BuildDir)
	if !res.OK() {
		return res
	}
	for _, m := range env.Registry.Modules() {
		if h, ok := m.(modules.BuildHook); ok {
			if err := h.AfterBuild(env.BuildDir); err != nil {
				return hookFailure(m.Name(), err)
			}
		}
	}
	return res
}

func stepBuildDocs(env *Env) types.StepResult {
	return runMake(env, env.BuildDir, "docs")
}

func stepTest(env *Env) types.StepResult {
	res := runMake(env, env.BuildDir, "check")
	if !res.OK() {
		appendRegressionArtifacts(env, &res)
	}
	return res
}

func stepModuleTest(env *Env) types.StepResult {
	var combined types.StepResult
	for _, m := range env.Registry.Modules() {
		h, ok := m.(modules.CheckHook)
		if !ok {
			continue
		}
		r := h.Check(env.BuildDir)
		combined.Log = append(combined.Log, "=== module "+m.Name()+" ===")
		combined.Log = append(combined.Log, r.Log...)
		if !r.OK() {
			combined.Status = r.Status
			return combined
		}
	}
	return combined
}

func stepInstall(env *Env) types.StepResult {
	res := runMake(env, env.BuildDir, "install")
	if !res.OK() {
		return res
	}
	for _, m := range env.Registry.Modules() {
		if h, ok := m.(modules.InstallHook); ok {
			if err := h.AfterInstall(env.InstallDir); err != nil {
				return hookFailure(m.Name(), err)
			}
		}
	}
	return res
}

func stepInstallTest(env *Env) types.StepResult {
	res := runMake(env, env.BuildDir, "installcheck")
	if !res.OK() {
		appendRegressionArtifacts(env, &res)
	}
	return res
}

func stepIsolation(env *Env) types.StepResult {
	res := runMake(env, env.BuildDir, "-C", "src/test/isolation", "check")
	if !res.OK() {
		appendRegressionArtifacts(env, &res)
	}
	return res
}

func stepPLTest(env *Env) types.StepResult {
	res := runMake(env, env.BuildDir, "-C", "src/pl", "installcheck")
	if !res.OK() {
		appendRegressionArtifacts(env, &res)
	}
	return res
}

func stepECPGTest(env *Env) types.StepResult {
	res := runMake(env, env.BuildDir, "-C", "src/interfaces/ecpg", "check")
	if !res.OK() {
		appendRegressionArtifacts(env, &res)
	}
	return res
}

func stepTAPTest(env *Env) types.StepResult {
	res := runMake(env, env.BuildDir, "-C", "src/bin", "check")
	if !res.OK() {
		appendRegressionArtifacts(env, &res)
	}
	return res
}

// splitTranscript splits a checkout transcript into lines for the step
// log; empty transcripts yield no lines.
func splitTranscript(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
