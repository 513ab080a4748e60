package batch

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reflex-cli/internal/flow"
	"github.com/sells-group/reflex-cli/internal/flowfile"
	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/panel"
	"github.com/sells-group/reflex-cli/internal/runlog"
)

// TransformOptions configures the transform stage.
type TransformOptions struct {
	RawRoot             string // month folders of raw panel files
	ProcessedRoot       string // monthly and yearly artifacts
	Concurrency         int    // months expanded in parallel (default 1)
	DeleteIntermediates bool   // remove monthly artifacts after a successful merge
}

// YearResult summarizes one transformed year.
type YearResult struct {
	Year   int
	Months []string
	Rows   int
	Path   string
}

// Transformer turns raw monthly panel files into yearly flow artifacts.
type Transformer struct {
	opts TransformOptions
	tracker
}

// NewTransformer creates a Transformer. runs and m may be nil.
func NewTransformer(opts TransformOptions, runs runlog.Recorder, m *monitoring.Metrics) *Transformer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Transformer{opts: opts, tracker: newTracker(runs, m)}
}

// Run transforms each year in order and stops at the first failing year.
func (t *Transformer) Run(ctx context.Context, years []int) ([]YearResult, error) {
	results := make([]YearResult, 0, len(years))
	for _, y := range years {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := t.TransformYear(ctx, y)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// TransformYear expands every month of year, then merges the monthly
// artifacts into the yearly one. No merge happens unless every month
// succeeded.
func (t *Transformer) TransformYear(ctx context.Context, year int) (*YearResult, error) {
	log := zap.L().With(zap.String("component", "batch.transform"), zap.Int("year", year))

	months, err := panel.Months(t.opts.RawRoot, year)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return nil, flow.NewIOError(strconv.Itoa(year), eris.Errorf("batch: no month folders for %d under %s", year, t.opts.RawRoot))
	}
	log.Info("transforming year", zap.Strings("months", months), zap.Int("concurrency", t.opts.Concurrency))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Concurrency)
	for _, m := range months {
		m := m
		g.Go(func() error {
			return t.TransformMonth(gCtx, m)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "batch: year %d", year)
	}

	res := &YearResult{Year: year, Months: months, Path: flowfile.YearPath(t.opts.ProcessedRoot, year)}
	err = t.track(ctx, log, runlog.KindYear, strconv.Itoa(year), func() (*runlog.Result, error) {
		n, err := t.mergeYear(months, res.Path)
		if err != nil {
			return nil, err
		}
		res.Rows = n
		return &runlog.Result{Rows: int64(n), Metadata: map[string]any{"months": len(months), "path": res.Path}}, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "batch: merge year %d", year)
	}

	if t.opts.DeleteIntermediates {
		for _, m := range months {
			if err := flowfile.Remove(flowfile.MonthPath(t.opts.ProcessedRoot, m)); err != nil {
				log.Warn("failed to remove intermediate", zap.String("month", m), zap.Error(err))
			}
		}
	}
	return res, nil
}

// TransformMonth expands one month of raw files into its monthly artifact.
func (t *Transformer) TransformMonth(ctx context.Context, month string) error {
	log := zap.L().With(zap.String("component", "batch.transform"), zap.String("month", month))

	return t.track(ctx, log, runlog.KindMonth, month, func() (*runlog.Result, error) {
		raw, err := panel.ReadMonth(ctx, t.opts.RawRoot, month)
		if err != nil {
			return nil, err
		}
		t.metrics.AddRecords("raw", len(raw))

		recs, err := flow.TransformMonth(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: month %s", month)
		}
		t.metrics.AddRecords("expanded", len(recs))

		if err := flowfile.WriteMonth(flowfile.MonthPath(t.opts.ProcessedRoot, month), recs); err != nil {
			return nil, err
		}
		return &runlog.Result{Rows: int64(len(recs)), Metadata: map[string]any{"raw_records": len(raw)}}, nil
	})
}

func (t *Transformer) mergeYear(months []string, path string) (int, error) {
	tables := make([][]flow.Record, len(months))
	for i, m := range months {
		recs, err := flowfile.ReadMonth(flowfile.MonthPath(t.opts.ProcessedRoot, m))
		if err != nil {
			return 0, err
		}
		tables[i] = recs
	}

	merged, err := flow.MergeMonths(tables, months)
	if err != nil {
		return 0, err
	}
	if err := flowfile.WriteYear(path, merged); err != nil {
		return 0, err
	}
	t.metrics.AddRecords("merged", len(merged))
	return len(merged), nil
}
