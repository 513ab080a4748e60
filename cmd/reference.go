package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reflex-cli/internal/batch"
	"github.com/sells-group/reflex-cli/internal/fetcher"
	"github.com/sells-group/reflex-cli/internal/geo"
	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/warehouse"
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Manage the county reference table",
}

var referenceFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the county reference table",
	Long: `Download the county reference table (by default the Census TIGER county
shapefile of reference.year) and store it as a STATEFP,COUNTYFP,GEOID CSV at
reflex.fips_reference_path. HTTP(S) and FTP URLs are supported; ZIP archives
are unpacked. With --load the counties and their boundaries are also written
to reflex.counties.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyFlags(cmd); err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("url") {
			cfg.Reference.URL, _ = f.GetString("url")
		}
		if f.Changed("year") {
			cfg.Reference.Year, _ = f.GetInt("year")
		}
		if err := cfg.Validate("reference"); err != nil {
			return err
		}
		load, _ := f.GetBool("load")
		if load {
			if err := cfg.Validate("load"); err != nil {
				return err
			}
		}

		src := cfg.Reference.URL
		if src == "" {
			src = geo.TIGERCountyURL(cfg.Reference.Year)
		}
		fetch, err := fetcher.ForURL(src, fetcher.HTTPOptions{
			Timeout:      time.Duration(cfg.Reference.TimeoutSecs) * time.Second,
			MaxRetries:   cfg.Reference.MaxRetries,
			RateLimiters: fetcher.DefaultRateLimiters(),
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		res, err := geo.FetchReference(ctx, fetch, src, cfg.Reflex.FIPSReferencePath, load)
		if err != nil {
			return eris.Wrap(err, "reference fetch")
		}
		fmt.Printf("stored %s counties in %s\n", printer.Sprintf("%d", len(res.Counties)), cfg.Reflex.FIPSReferencePath)
		if !load {
			return nil
		}

		shapes := res.Shapes
		if len(shapes) == 0 {
			shapes = make([]geo.Shape, len(res.Counties))
			for i, c := range res.Counties {
				shapes[i] = geo.Shape{County: c}
			}
		}

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

		out, err := batch.NewLoader(pool, cfg.Warehouse.BatchSize, runs, m).LoadCounties(ctx, cfg.Reference.Year, shapes)
		if err != nil {
			return eris.Wrap(err, "reference load")
		}
		fmt.Printf("%d: replaced %d rows with %d in %s\n", out.Year, out.Deleted, out.Inserted, warehouse.CountiesTable)
		return nil
	},
}

func init() {
	f := referenceFetchCmd.Flags()
	f.String("url", "", "reference source URL (default: TIGER county shapefile of --year)")
	f.Int("year", 0, "TIGER vintage (default from config)")
	f.String("reference", "", "where to store the table (default from config)")
	f.Bool("load", false, "also load counties and boundaries into the warehouse")
	referenceCmd.AddCommand(referenceFetchCmd)
	rootCmd.AddCommand(referenceCmd)
}
