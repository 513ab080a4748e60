// Package reflex computes the REFLEX mobility-diversity index: the Shannon
// entropy of each destination county's inbound non-routine flow across
// origin counties, per year.
package reflex

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/flow"
)

// Index maps a destination county to its entropy, in nats.
type Index map[int]float64

// Distribution maps a destination county to the share of its inbound flow
// contributed by each origin county.
type Distribution map[int]map[int]float64

// Proportions aggregates positive flow in year by (destination, origin) and
// normalizes by each destination's total. Records with flow <= 0 are dropped
// before aggregation, so every destination present has a positive total.
func Proportions(records []flow.Record, year int) Distribution {
	entrant := make(map[int]map[int]int64)
	total := make(map[int]int64)
	for _, r := range records {
		if r.Flow <= 0 || r.Year() != year {
			continue
		}
		orgs, ok := entrant[r.Dst]
		if !ok {
			orgs = make(map[int]int64)
			entrant[r.Dst] = orgs
		}
		orgs[r.Org] += r.Flow
		total[r.Dst] += r.Flow
	}

	dist := make(Distribution, len(entrant))
	for dst, orgs := range entrant {
		t := float64(total[dst])
		shares := make(map[int]float64, len(orgs))
		for org, f := range orgs {
			shares[org] = float64(f) / t
		}
		dist[dst] = shares
	}
	return dist
}

// Surprise returns -ln(p)*p, defined as 0 at p == 0.
func Surprise(p float64) float64 {
	if p <= 0 {
		return 0
	}
	return -math.Log(p) * p
}

// CalcIndex computes the index of every destination with qualifying inbound
// flow in year. A year without qualifying records yields an empty Index.
func CalcIndex(records []flow.Record, year int) Index {
	dist := Proportions(records, year)
	idx := make(Index, len(dist))
	for dst, shares := range dist {
		var h float64
		for _, p := range shares {
			h += Surprise(p)
		}
		idx[dst] = h
	}
	return idx
}

// Table is the wide result: one column per year, outer-joined on destination.
type Table struct {
	Years      []int
	Columns    map[int]Index
	EmptyYears []int // years without any qualifying record
}

// CalcIndexYears runs CalcIndex for each year and joins the results.
func CalcIndexYears(records []flow.Record, years []int) *Table {
	log := zap.L().With(zap.String("component", "reflex.index"))

	t := &Table{Years: append([]int(nil), years...), Columns: make(map[int]Index, len(years))}
	for _, y := range years {
		log.Info("calculating index", zap.Int("year", y))
		idx := CalcIndex(records, y)
		if len(idx) == 0 {
			log.Warn("no qualifying flow for year", zap.Int("year", y))
			t.EmptyYears = append(t.EmptyYears, y)
		}
		t.Columns[y] = idx
	}
	return t
}

// Destinations returns every destination present in any year, ascending.
func (t *Table) Destinations() []int {
	seen := make(map[int]struct{})
	for _, idx := range t.Columns {
		for dst := range idx {
			seen[dst] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for dst := range seen {
		out = append(out, dst)
	}
	sort.Ints(out)
	return out
}

// Value returns the index of dst in year. ok is false when the destination
// had no qualifying inbound flow that year.
func (t *Table) Value(dst, year int) (v float64, ok bool) {
	v, ok = t.Columns[year][dst]
	return v, ok
}

// ColumnName returns the output column name for a year, e.g. "reflex21".
func ColumnName(year int) string {
	return fmt.Sprintf("reflex%02d", year-2000)
}
