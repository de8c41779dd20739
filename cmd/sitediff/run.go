package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("run finished with errors or incomplete sites")

var runCmd = &cobra.Command{
	Use:   "run [site...]",
	Short: "Run every check against every environment once",
	Long:  "Runs all checks for the named sites, or for all sites if none are given. Use --dry-run to validate notification targets without sending.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noHistory, _ := cmd.Flags().GetBool("no-history")
		logger := setupLogger()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		checks, err := buildChecks(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		req := runRequest{
			cfg:    cfg,
			checks: checks,
			sites:  args,
			dryRun: dryRun,
			logger: logger,
		}
		if !noHistory {
			hist, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer hist.Close()
			req.history = hist
		}

		summary, err := executeRun(ctx, req)
		if err != nil {
			return err
		}
		printSummary(os.Stdout, summary, dryRun)

		if summary.Failed() {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "validate notification targets without sending")
	runCmd.Flags().Bool("no-history", false, "do not record this run in the history database")
	rootCmd.AddCommand(runCmd)
}
