package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the sitediff configuration",
	Long:  "Loads the config, checks every field, reads the sites file and resolves every check script without running anything.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		groups, err := cfg.Groups()
		if err != nil {
			return err
		}
		checks, err := buildChecks(cfg)
		if err != nil {
			return err
		}

		targets := 0
		for _, g := range groups {
			targets += len(g.Targets)
		}
		fmt.Printf("%s config ok\n", okStyle.Render("✓"))
		fmt.Printf("  %d sites, %d environments, %d checks\n", len(groups), targets, len(checks))
		if cfg.HasSchedule() {
			fmt.Printf("  schedule: %s\n", cfg.Trigger().Kind())
		}
		fmt.Printf("  results: %s\n", cfg.Options.ResultsDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
