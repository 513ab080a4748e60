package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reflex-cli/internal/batch"
	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/reflex"
	"github.com/sells-group/reflex-cli/internal/warehouse"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load yearly flow artifacts into Postgres",
	Long: `Migrate the reflex schema and COPY yearly artifacts into reflex.flows.
Each loaded year replaces that year's existing rows in one transaction.
With --index the computed index file is loaded into reflex.diversity_index instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyFlags(cmd); err != nil {
			return err
		}
		if year, _ := cmd.Flags().GetInt("year"); year != 0 {
			cfg.Reflex.Years = []int{year}
		}
		if err := cfg.Validate("load"); err != nil {
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

		pool, err := warehousePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		loader := batch.NewLoader(pool, cfg.Warehouse.BatchSize, runs, m)
		if onlyIndex, _ := cmd.Flags().GetBool("index"); onlyIndex {
			t, err := reflex.Read(cfg.Reflex.OutputPath)
			if err != nil {
				return eris.Wrap(err, "load index")
			}
			results, err := loader.LoadIndex(ctx, t)
			if err != nil {
				return eris.Wrap(err, "load index")
			}
			for _, res := range results {
				fmt.Printf("%d: replaced %d rows with %d in %s\n", res.Year, res.Deleted, res.Inserted, warehouse.IndexTable)
			}
			return nil
		}

		for _, y := range cfg.Reflex.Years {
			res, err := loader.LoadYear(ctx, cfg.Reflex.ProcessedRoot, y)
			if err != nil {
				return eris.Wrap(err, "load")
			}
			fmt.Printf("%d: replaced %d rows with %d in %s\n", y, res.Deleted, res.Inserted, warehouse.FlowsTable)
		}
		return nil
	},
}

func init() {
	loadCmd.Flags().Int("year", 0, "single year to load")
	loadCmd.Flags().Bool("index", false, "load the index file at reflex.output_path instead of flows")
	loadCmd.Flags().String("output", "", "index file to load with --index (default from config)")
	addYearsFlag(loadCmd)
	rootCmd.AddCommand(loadCmd)
}
