package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sznuper/sitediff/internal/config"
	"github.com/sznuper/sitediff/internal/result"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Long:  "Lists recent runs from the history database. Use --run to show one run's sites.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		runID, _ := cmd.Flags().GetString("run")

		cfg, err := config.Resolve(cfgFile)
		if err != nil {
			return err
		}
		if err := applyOptionFlags(cmd, cfg); err != nil {
			return err
		}
		if _, err := os.Stat(cfg.HistoryPath()); err != nil {
			return fmt.Errorf("no history at %s", cfg.HistoryPath())
		}

		ctx := cmd.Context()
		hist, err := openHistory(ctx, cfg)
		if err != nil {
			return err
		}
		defer hist.Close()

		if runID != "" {
			sites, err := hist.SiteRuns(ctx, runID)
			if err != nil {
				return err
			}
			if len(sites) == 0 {
				return fmt.Errorf("run %s has no recorded sites", runID)
			}
			for _, s := range sites {
				mark := okStyle.Render("✓")
				if !s.Complete || s.Err != "" {
					mark = failStyle.Render("✗")
				}
				fmt.Printf("%s %-24s", mark, s.Site)
				for _, st := range result.Statuses {
					fmt.Printf("  %s %d", statusStyle(st).Render(string(st)), s.Counts[st])
				}
				fmt.Println()
				if len(s.Missing) > 0 {
					fmt.Printf("    missing: %s\n", joinKinds(s.Missing))
				}
				if s.Err != "" {
					fmt.Printf("    error: %s\n", s.Err)
				}
				if s.RunDir != "" {
					fmt.Printf("    %s\n", dimStyle.Render(s.RunDir))
				}
			}
			return nil
		}

		runs, err := hist.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}
		for _, r := range runs {
			state := okStyle.Render("ok")
			switch {
			case r.Finished.IsZero():
				state = warnStyle.Render("unfinished")
			case r.Failed:
				state = failStyle.Render("failed")
			}
			fmt.Printf("%s  %s  %-10s  %d sites, %d incomplete\n",
				dimStyle.Render(r.ID),
				r.Started.Local().Format("2006-01-02 15:04"),
				state,
				r.Sites,
				r.Incomplete,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyCmd.Flags().String("run", "", "show the sites of one run")
	rootCmd.AddCommand(historyCmd)
}
