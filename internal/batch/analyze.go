package batch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/flowfile"
	"github.com/sells-group/reflex-cli/internal/geo"
	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/reflex"
	"github.com/sells-group/reflex-cli/internal/runlog"
)

// AnalyzeOptions configures the index stage.
type AnalyzeOptions struct {
	ProcessedRoot string
	ReferencePath string
	OutputPath    string // empty skips writing
	Years         []int
	Geography     geo.Scope
}

// Analyzer builds the index table from yearly artifacts.
type Analyzer struct {
	opts AnalyzeOptions
	tracker
}

// NewAnalyzer creates an Analyzer. runs and m may be nil.
func NewAnalyzer(opts AnalyzeOptions, runs runlog.Recorder, m *monitoring.Metrics) *Analyzer {
	return &Analyzer{opts: opts, tracker: newTracker(runs, m)}
}

// YearsLabel names a set of years in logs and the run log, e.g. "2018-2023".
func YearsLabel(years []int) string {
	switch len(years) {
	case 0:
		return ""
	case 1:
		return strconv.Itoa(years[0])
	}
	return fmt.Sprintf("%d-%d", years[0], years[len(years)-1])
}

// Run reads every requested yearly artifact, filters it to the configured
// geography, computes the index, and writes the output table.
func (a *Analyzer) Run(ctx context.Context) (*reflex.Table, error) {
	log := zap.L().With(zap.String("component", "batch.analyze"))
	if len(a.opts.Years) == 0 {
		return nil, eris.New("batch: no years requested")
	}

	var table *reflex.Table
	err := a.track(ctx, log, runlog.KindIndex, YearsLabel(a.opts.Years), func() (*runlog.Result, error) {
		recs, err := flowfile.ReadYears(a.opts.ProcessedRoot, a.opts.Years)
		if err != nil {
			return nil, err
		}

		reference, err := geo.LoadReference(ctx, a.opts.ReferencePath)
		if err != nil {
			return nil, err
		}
		allowed := geo.ComputeAllowed(reference, a.opts.Geography)
		filtered := geo.Filter(recs, allowed)
		log.Info("filtered flows",
			zap.Int("records", len(recs)),
			zap.Int("kept", len(filtered)),
			zap.Int("allowed_counties", len(allowed)),
		)
		a.metrics.AddRecords("filtered", len(filtered))

		table = reflex.CalcIndexYears(filtered, a.opts.Years)
		for _, y := range table.Years {
			a.metrics.SetDestinations(strconv.Itoa(y), len(table.Columns[y]))
		}

		if a.opts.OutputPath != "" {
			if err := reflex.Write(a.opts.OutputPath, table); err != nil {
				return nil, err
			}
			log.Info("index written", zap.String("path", a.opts.OutputPath))
		}

		return &runlog.Result{
			Rows: int64(len(table.Destinations())),
			Metadata: map[string]any{
				"output":      a.opts.OutputPath,
				"empty_years": table.EmptyYears,
			},
		}, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "batch: index")
	}
	return table, nil
}
