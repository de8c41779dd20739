package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sznuper/sitediff/internal/schedule"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run on the configured schedule until stopped",
	Long:  "Starts the daemon: a fresh run on every cron tick, interval, or change to the watched file. Stops on SIGINT or SIGTERM.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.HasSchedule() {
			return errors.New("config has no schedule (set schedule.cron, schedule.interval or schedule.watch)")
		}
		checks, err := buildChecks(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hist, err := openHistory(ctx, cfg)
		if err != nil {
			return err
		}
		defer hist.Close()

		job := func(ctx context.Context) {
			summary, err := executeRun(ctx, runRequest{
				cfg:     cfg,
				checks:  checks,
				history: hist,
				logger:  logger,
			})
			if err != nil {
				logger.Error("run failed", "error", err)
				return
			}
			logger.Info("run finished",
				"sites", len(summary.Sites),
				"incomplete", len(summary.Incomplete),
				"failed", summary.Failed(),
				"duration", summary.Duration,
			)
		}

		err = schedule.New(cfg.Trigger(), job, logger).Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
