package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vbwagner/client-code/internal/config"
	"github.com/vbwagner/client-code/internal/log"
	"github.com/vbwagner/client-code/internal/report"
	"github.com/vbwagner/client-code/internal/runner"
)

var resendFlags struct {
	configPath string
}

var resendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Retry delivery of a spooled report",
	Long: "Deliver a report left spooled by an earlier run whose transmission " +
		"failed, without starting a new build cycle.",
	RunE: runResend,
}

func init() {
	resendCmd.Flags().StringVar(&resendFlags.configPath, "config", "bfrun.yaml", "configuration file")
}

func runResend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resendFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	layout := runner.NewLayout(cfg.BuildRoot, cfg.Branch)
	spool, err := report.NewSpool(layout.BranchDir)
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}

	rep := &report.Reporter{
		Cfg:       cfg,
		Spool:     spool,
		Transport: report.NewHTTPTransport(cfg.Collector),
	}
	if code := rep.ResendPending(context.Background()); code != 0 {
		log.OsExit(code)
	}
	return nil
}
