package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/batch"
	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/runlog"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Expand raw monthly panels into yearly county flow artifacts",
	Long: `Expand every month of each year into a county-level flow table, then merge
the months into {processed_root}/{YYYY}.csv.gz.

A failing month aborts its year before the merge and the command exits
non-zero naming the month. Use --skip to leave years untransformed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("transform"); err != nil {
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

		return runTransform(ctx, runs, m)
	},
}

func init() {
	addYearsFlag(transformCmd)
	addTransformFlags(transformCmd)
	rootCmd.AddCommand(transformCmd)
}

func runTransform(ctx context.Context, runs runlog.Recorder, m *monitoring.Metrics) error {
	years := cfg.Reflex.TransformYears()
	if len(years) == 0 {
		zap.L().Info("no years to transform")
		return nil
	}

	zap.L().Info("starting transform",
		zap.Ints("years", years),
		zap.Ints("skip", cfg.Reflex.SkipTransformYears),
		zap.Int("concurrency", cfg.Transform.Concurrency),
		zap.Bool("delete_intermediates", cfg.Reflex.DeleteIntermediates),
	)

	tr := batch.NewTransformer(batch.TransformOptions{
		RawRoot:             cfg.Reflex.RawRoot,
		ProcessedRoot:       cfg.Reflex.ProcessedRoot,
		Concurrency:         cfg.Transform.Concurrency,
		DeleteIntermediates: cfg.Reflex.DeleteIntermediates,
	}, runs, m)

	results, err := tr.Run(ctx, years)
	for _, r := range results {
		fmt.Printf("%d: %d months, %d rows -> %s\n", r.Year, len(r.Months), r.Rows, r.Path)
	}
	if err != nil {
		return eris.Wrap(err, "transform")
	}
	return nil
}
