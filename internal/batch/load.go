package batch

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/db"
	"github.com/sells-group/reflex-cli/internal/flowfile"
	"github.com/sells-group/reflex-cli/internal/geo"
	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/reflex"
	"github.com/sells-group/reflex-cli/internal/resilience"
	"github.com/sells-group/reflex-cli/internal/runlog"
	"github.com/sells-group/reflex-cli/internal/warehouse"
)

// Loader copies artifacts into the warehouse. Each replacement runs in one
// transaction, so a transient failure is retried as a whole.
type Loader struct {
	pool      db.Pool
	batchSize int
	retry     resilience.Policy
	tracker
}

// NewLoader creates a Loader. The schema must already be migrated.
func NewLoader(pool db.Pool, batchSize int, runs runlog.Recorder, m *monitoring.Metrics) *Loader {
	return &Loader{
		pool:      pool,
		batchSize: batchSize,
		retry:     resilience.WarehousePolicy(),
		tracker:   newTracker(runs, m),
	}
}

func (l *Loader) retryFor(unit string) resilience.Policy {
	return l.retry.Logged("warehouse load", unit)
}

// LoadYear replaces the year's rows in the warehouse with its yearly artifact.
func (l *Loader) LoadYear(ctx context.Context, processedRoot string, year int) (*warehouse.LoadResult, error) {
	log := zap.L().With(zap.String("component", "batch.load"), zap.Int("year", year))

	var res *warehouse.LoadResult
	unit := "flows/" + strconv.Itoa(year)
	err := l.track(ctx, log, runlog.KindLoad, unit, func() (*runlog.Result, error) {
		path := flowfile.YearPath(processedRoot, year)
		recs, err := flowfile.ReadYear(path)
		if err != nil {
			return nil, err
		}
		res, err = resilience.RunVal(ctx, l.retryFor(unit), func(ctx context.Context) (*warehouse.LoadResult, error) {
			return warehouse.LoadFlows(ctx, l.pool, year, recs, l.batchSize)
		})
		if err != nil {
			return nil, err
		}
		return &runlog.Result{Rows: res.Inserted, Metadata: map[string]any{"deleted": res.Deleted, "path": path}}, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "batch: load year %d", year)
	}
	return res, nil
}

// LoadIndex replaces the index rows of every year in t.
func (l *Loader) LoadIndex(ctx context.Context, t *reflex.Table) ([]warehouse.LoadResult, error) {
	log := zap.L().With(zap.String("component", "batch.load"))

	var results []warehouse.LoadResult
	unit := "index/" + YearsLabel(t.Years)
	err := l.track(ctx, log, runlog.KindLoad, unit, func() (*runlog.Result, error) {
		var err error
		results, err = resilience.RunVal(ctx, l.retryFor(unit), func(ctx context.Context) ([]warehouse.LoadResult, error) {
			return warehouse.LoadIndex(ctx, l.pool, t, l.batchSize)
		})
		if err != nil {
			return nil, err
		}
		var rows int64
		for _, r := range results {
			rows += r.Inserted
		}
		return &runlog.Result{Rows: rows}, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "batch: load index")
	}
	return results, nil
}

// LoadCounties replaces the vintage's county reference rows.
func (l *Loader) LoadCounties(ctx context.Context, vintage int, shapes []geo.Shape) (*warehouse.LoadResult, error) {
	log := zap.L().With(zap.String("component", "batch.load"), zap.Int("vintage", vintage))

	var res *warehouse.LoadResult
	unit := "counties/" + strconv.Itoa(vintage)
	err := l.track(ctx, log, runlog.KindLoad, unit, func() (*runlog.Result, error) {
		var err error
		res, err = resilience.RunVal(ctx, l.retryFor(unit), func(ctx context.Context) (*warehouse.LoadResult, error) {
			return warehouse.LoadCounties(ctx, l.pool, vintage, shapes, l.batchSize)
		})
		if err != nil {
			return nil, err
		}
		return &runlog.Result{Rows: res.Inserted, Metadata: map[string]any{"deleted": res.Deleted}}, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "batch: load counties %d", vintage)
	}
	return res, nil
}
