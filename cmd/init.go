package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vbwagner/client-code/internal/log"
)

var initFlags struct {
	force bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a bfrun.yaml configuration file",
	Long:  "Write a commented bfrun.yaml starter configuration into the current directory.",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.force, "force", false, "Overwrite an existing bfrun.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	return initWorkspace(dir, initFlags.force)
}

// initWorkspace is the testable core of the init command. It writes a starter
// bfrun.yaml into dir, refusing to clobber an existing one unless force is set.
func initWorkspace(dir string, force bool) error {
	path := filepath.Join(dir, "bfrun.yaml")
	if !force {
		if _, statErr := os.Stat(path); statErr == nil {
			return fmt.Errorf("bfrun.yaml already exists; use --force to overwrite")
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig()), 0o644); err != nil {
		return fmt.Errorf("write bfrun.yaml: %w", err)
	}
	log.Success("created " + path)
	log.Info("edit bfrun.yaml (animal, secret, collector_url), then run: bfrun run")
	return nil
}

// sampleConfig returns the bfrun.yaml starter content with inline YAML comments.
func sampleConfig() string {
	return `# bfrun.yaml -- continuous-build client configuration

# Identity. The animal name and shared secret are issued by the collector
# server when the machine is registered.
animal: "CHANGEME"
secret: "CHANGEME"
collector_url: "https://buildfarm.example.org/cgi-bin/pgstatus.pl"

# What to build.
branch: "master"
repo_url: "https://git.postgresql.org/git/postgresql.git"

# Where to build. Must be an absolute path; one subdirectory per branch
# is created underneath it.
build_root: "/var/lib/bfrun"

# Build commands.
configure_command: "./configure"
configure_opts: "--enable-cassert --enable-debug"
make_command: "make"
make_opts: "-j4"

# Testing.
locales:
  - "C"
build_docs: true

# Scheduling. force_every is a duration; a run is forced when the last
# run is older than this even if nothing changed.
force_every: "168h"

# Timeouts.
scm_timeout: "30m"
wait_timeout: "240m"

# Step filtering. skip_steps and only_steps are mutually exclusive.
# skip_steps: ["tap-test"]
# only_steps: []

# Retention. keep_on_error moves failed work trees aside instead of
# removing them; keep_all disables retention entirely.
keep_on_error: false
keep_all: false
`
}
