package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/reflex-cli/internal/monitoring"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Transform then index",
	Long:  "Runs the transform stage for every configured year (minus --skip), then builds the index table from the yearly artifacts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx := cmd.Context()
		runs, closeRuns, err := openRunLog(ctx)
		if err != nil {
			return err
		}
		defer closeRuns()

		m := monitoring.New()
		defer flushMetrics(m)

		if err := runTransform(ctx, runs, m); err != nil {
			return err
		}
		load, _ := cmd.Flags().GetBool("load")
		return runIndex(ctx, runs, m, load)
	},
}

func init() {
	addYearsFlag(runCmd)
	addTransformFlags(runCmd)
	addIndexFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
