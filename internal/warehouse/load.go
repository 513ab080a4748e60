package warehouse

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/db"
	"github.com/sells-group/reflex-cli/internal/flow"
	"github.com/sells-group/reflex-cli/internal/geo"
	"github.com/sells-group/reflex-cli/internal/reflex"
)

// Tables written by the loader.
const (
	FlowsTable    = "reflex.flows"
	IndexTable    = "reflex.diversity_index"
	CountiesTable = "reflex.counties"
)

var (
	flowColumns   = []string{"year", "date", "dst", "org", "home", "homewrk", "flow"}
	indexColumns  = []string{"year", "dst", "value"}
	countyColumns = []string{"vintage", "geoid", "statefp", "name", "geom"}
)

// LoadResult summarizes one replaced partition.
type LoadResult struct {
	Year     int
	Deleted  int64
	Inserted int64
}

// LoadFlows replaces the year's rows in reflex.flows with recs. Records
// dated in any other year are rejected.
func LoadFlows(ctx context.Context, pool db.Pool, year int, recs []flow.Record, batchSize int) (*LoadResult, error) {
	log := zap.L().With(zap.String("component", "warehouse.load"), zap.Int("year", year))

	rows := make([][]any, 0, len(recs))
	for i, r := range recs {
		if r.Year() != year {
			return nil, flow.NewSchemaError(FlowsTable, eris.Errorf("warehouse: row %d dated %q outside %d", i, r.Date, year))
		}
		date, _ := time.Parse(time.DateOnly, r.Date)
		rows = append(rows, []any{year, date, r.Dst, r.Org, r.Home, r.HomeWork, r.Flow})
	}

	deleted, inserted, err := db.ReplacePartition(ctx, pool, db.ReplaceConfig{
		Table:        FlowsTable,
		Columns:      flowColumns,
		PartitionCol: "year",
		BatchSize:    batchSize,
	}, year, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "warehouse: load flows %d", year)
	}

	log.Info("flows loaded", zap.Int64("deleted", deleted), zap.Int64("inserted", inserted))
	return &LoadResult{Year: year, Deleted: deleted, Inserted: inserted}, nil
}

// LoadIndex replaces each year's rows in reflex.diversity_index with the
// table's values. Absent values are not written.
func LoadIndex(ctx context.Context, pool db.Pool, t *reflex.Table, batchSize int) ([]LoadResult, error) {
	results := make([]LoadResult, 0, len(t.Years))
	for _, y := range t.Years {
		idx := t.Columns[y]
		rows := make([][]any, 0, len(idx))
		for _, dst := range t.Destinations() {
			if v, ok := t.Value(dst, y); ok {
				rows = append(rows, []any{y, dst, v})
			}
		}

		deleted, inserted, err := db.ReplacePartition(ctx, pool, db.ReplaceConfig{
			Table:        IndexTable,
			Columns:      indexColumns,
			PartitionCol: "year",
			BatchSize:    batchSize,
		}, y, rows)
		if err != nil {
			return results, eris.Wrapf(err, "warehouse: load index %d", y)
		}
		results = append(results, LoadResult{Year: y, Deleted: deleted, Inserted: inserted})
	}
	return results, nil
}

// LoadCounties replaces the vintage's rows in reflex.counties. Empty names
// and missing boundaries are stored as NULL.
func LoadCounties(ctx context.Context, pool db.Pool, vintage int, shapes []geo.Shape, batchSize int) (*LoadResult, error) {
	rows := make([][]any, len(shapes))
	for i, s := range shapes {
		var name any
		if s.Name != "" {
			name = s.Name
		}
		var g any
		if len(s.Geometry) > 0 {
			g = s.Geometry
		}
		rows[i] = []any{vintage, s.GEOID, s.State, name, g}
	}

	deleted, inserted, err := db.ReplacePartition(ctx, pool, db.ReplaceConfig{
		Table:        CountiesTable,
		Columns:      countyColumns,
		PartitionCol: "vintage",
		BatchSize:    batchSize,
	}, vintage, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "warehouse: load counties %d", vintage)
	}
	return &LoadResult{Year: vintage, Deleted: deleted, Inserted: inserted}, nil
}
