package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/runlog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pipeline run log",
	Long:  "Displays the history of month, year, index and load units with their row counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		ctx := cmd.Context()

		l, err := openRunLogDB(ctx)
		if err != nil {
			return err
		}
		defer l.Close() //nolint:errcheck

		entries, err := l.ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(entries) == 0 {
			zap.L().Info("no runs recorded, run 'reflex transform' to start")
			return nil
		}

		lookback, _ := cmd.Flags().GetInt("lookback")
		snap, err := monitoring.NewCollector(l).Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "table":
			formatEntries(os.Stdout, entries)
			formatSummary(os.Stdout, snap)
			return nil
		case "yaml":
			return writeYAML(os.Stdout, entries, snap)
		default:
			return eris.Errorf("status: unknown format %q (want table or yaml)", format)
		}
	},
}

func init() {
	statusCmd.Flags().String("format", "table", "output format: table or yaml")
	statusCmd.Flags().Int("lookback", 0, "summarize only the last N hours (0 = all)")
	rootCmd.AddCommand(statusCmd)
}

var printer = message.NewPrinter(language.English)

// formatEntries writes a tabular representation of run-log entries to out.
func formatEntries(out io.Writer, entries []runlog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tUNIT\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "----\t----\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			d := e.CompletedAt.Sub(e.StartedAt).Round(time.Second)
			dur = d.String()
		}

		errMsg := ""
		if e.Error != "" {
			errMsg = truncate(e.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Kind,
			e.Unit,
			e.Status,
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			dur,
			printer.Sprintf("%d", e.Rows),
			errMsg,
		)
	}
	_ = w.Flush()
}

// formatSummary writes per-kind totals below the entry table.
func formatSummary(out io.Writer, snap *monitoring.Snapshot) {
	kinds := make([]string, 0, len(snap.Kinds))
	for k := range snap.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tTOTAL\tCOMPLETE\tFAILED\tRUNNING\tROWS")
	for _, k := range kinds {
		s := snap.Kinds[k]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			k, s.Total, s.Complete, s.Failed, s.Running, printer.Sprintf("%d", s.Rows))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "fail rate: %.1f%%\n", snap.FailRate*100)
}

type statusReport struct {
	Summary *monitoring.Snapshot `yaml:"summary"`
	Runs    []runlog.Entry       `yaml:"runs"`
}

func writeYAML(out io.Writer, entries []runlog.Entry, snap *monitoring.Snapshot) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(statusReport{Summary: snap, Runs: entries}); err != nil {
		return eris.Wrap(err, "status: encode yaml")
	}
	return enc.Close()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
