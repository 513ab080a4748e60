package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reflex-cli/internal/batch"
	"github.com/sells-group/reflex-cli/internal/geo"
	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/runlog"
	"github.com/sells-group/reflex-cli/internal/warehouse"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Compute the REFLEX index from yearly flow artifacts",
	Long: `Read the yearly flow artifacts, restrict them to the configured geography,
and write one reflex{YY} column per year keyed by destination county.

Territories and Alaska/Hawaii are excluded unless --territories or
--noncontiguous is set. A year without qualifying flow yields an empty column.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("index"); err != nil {
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

		load, _ := cmd.Flags().GetBool("load")
		return runIndex(ctx, runs, m, load)
	},
}

func init() {
	addYearsFlag(indexCmd)
	addIndexFlags(indexCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context, runs runlog.Recorder, m *monitoring.Metrics, load bool) error {
	an := batch.NewAnalyzer(batch.AnalyzeOptions{
		ProcessedRoot: cfg.Reflex.ProcessedRoot,
		ReferencePath: cfg.Reflex.FIPSReferencePath,
		OutputPath:    cfg.Reflex.OutputPath,
		Years:         cfg.Reflex.Years,
		Geography: geo.Scope{
			IncludeTerritories:   cfg.Reflex.IncludeTerritories,
			IncludeNoncontiguous: cfg.Reflex.IncludeNoncontiguous,
		},
	}, runs, m)

	table, err := an.Run(ctx)
	if err != nil {
		return eris.Wrap(err, "index")
	}
	fmt.Printf("%d destinations, years %s -> %s\n",
		len(table.Destinations()), batch.YearsLabel(table.Years), cfg.Reflex.OutputPath)
	for _, y := range table.EmptyYears {
		fmt.Printf("warning: no qualifying flow in %d\n", y)
	}

	if !load {
		return nil
	}
	pool, err := warehousePool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := batch.NewLoader(pool, cfg.Warehouse.BatchSize, runs, m).LoadIndex(ctx, table); err != nil {
		return eris.Wrap(err, "index")
	}
	fmt.Println("Index loaded into", warehouse.IndexTable)
	return nil
}
