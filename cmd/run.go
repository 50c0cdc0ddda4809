package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vbwagner/client-code/internal/config"
	"github.com/vbwagner/client-code/internal/log"
	"github.com/vbwagner/client-code/internal/runner"
)

// runFlags holds CLI flag values that override bfrun.yaml config settings.
// Only flags explicitly changed by the user are applied (checked via
// cmd.Flags().Changed).
var runFlags struct {
	configPath  string
	branch      string
	force       bool
	skip        []string
	only        []string
	verbose     int
	noSend      bool
	fromSource  string
	keepOnError bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one build cycle for a branch",
	Long: "Execute one build cycle: decide whether a rebuild is warranted, " +
		"serialize against concurrent runs, run the build/test pipeline, and " +
		"report the outcome.",
	RunE: runBuild,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.configPath, "config", "bfrun.yaml", "configuration file")
	runCmd.Flags().StringVar(&runFlags.branch, "branch", "", "override branch from bfrun.yaml")
	runCmd.Flags().BoolVar(&runFlags.force, "force", false, "bypass the no-change short-circuit")
	runCmd.Flags().StringSliceVar(&runFlags.skip, "skip", nil, "step names to skip")
	runCmd.Flags().StringSliceVar(&runFlags.only, "only", nil, "run only these step names")
	runCmd.Flags().CountVarP(&runFlags.verbose, "verbose", "v", "increase output verbosity")
	runCmd.Flags().BoolVar(&runFlags.noSend, "no-send", false, "local mode: print the outcome, contact no collector")
	runCmd.Flags().StringVar(&runFlags.fromSource, "from-source", "", "build from this source directory, bypassing change detection")
	runCmd.Flags().BoolVar(&runFlags.keepOnError, "keep-on-error", false, "move failed work trees aside instead of removing them")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Apply CLI flag overrides, but only when the user explicitly set the flag.
	if cmd.Flags().Changed("branch") {
		cfg.Branch = runFlags.branch
	}
	if cmd.Flags().Changed("force") {
		cfg.Force = runFlags.force
	}
	if cmd.Flags().Changed("skip") {
		cfg.SkipSteps = runFlags.skip
	}
	if cmd.Flags().Changed("only") {
		cfg.OnlySteps = runFlags.only
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runFlags.verbose
	}
	if cmd.Flags().Changed("no-send") {
		cfg.NoSend = runFlags.noSend
	}
	if cmd.Flags().Changed("from-source") {
		cfg.FromSource = runFlags.fromSource
	}
	if cmd.Flags().Changed("keep-on-error") {
		cfg.KeepOnError = runFlags.keepOnError
	}

	ctrl := &runner.Controller{Cfg: cfg}
	code, err := ctrl.Run(context.Background())
	if err != nil {
		return err // configuration-fatal; cobra exits 1
	}
	if code != 0 {
		log.OsExit(code)
	}
	return nil
}
