package flow

import (
	"sort"

	"github.com/rotisserie/eris"
)

type cbgPair struct {
	dst, org int64
}

type countyPair struct {
	dst, org int
}

// Expand converts wide records into long rows for one visit category. A
// record with K domestic origins yields K rows. Foreign origins and origins
// without a count are dropped.
func Expand(records []RawVisitRecord, category string) ([]VisitRow, error) {
	visitsOf, err := visitsFor(category)
	if err != nil {
		return nil, err
	}

	var rows []VisitRow
	for i, rec := range records {
		visits := visitsOf(rec)
		if len(visits) == 0 {
			continue
		}

		dst, err := ParseCBG(rec.DestinationCBG)
		if err != nil {
			return nil, NewParseError("", eris.Wrapf(err, "record %d destination", i))
		}

		origins := make([]string, 0, len(visits))
		for org := range visits {
			origins = append(origins, org)
		}
		sort.Strings(origins)

		for _, org := range origins {
			count := visits[org]
			if count == nil || IsForeignOrigin(org) {
				continue
			}
			orgCBG, err := ParseCBG(org)
			if err != nil {
				return nil, NewParseError("", eris.Wrapf(err, "record %d (%s) origin", i, rec.DestinationCBG))
			}
			rows = append(rows, VisitRow{DstCBG: dst, OrgCBG: orgCBG, Count: *count})
		}
	}
	return rows, nil
}

// visitsFor returns the selector for a visit category's mapping.
func visitsFor(category string) (func(RawVisitRecord) VisitMap, error) {
	switch category {
	case CategoryHome:
		return func(r RawVisitRecord) VisitMap { return r.Home }, nil
	case CategoryHomeWork:
		return func(r RawVisitRecord) VisitMap { return r.HomeWork }, nil
	}
	return nil, eris.Errorf("flow: unknown visit category %q", category)
}

// MergeCategories left-joins homework rows onto home rows by block group
// pair. Rows sharing a pair are summed within each category first. Pairs
// without homework visits get HomeWork 0; pairs with only homework visits are
// dropped. Flow is Home - HomeWork and may be negative.
func MergeCategories(home, homework []VisitRow) []PairRow {
	wrk := make(map[cbgPair]int64, len(homework))
	for _, r := range homework {
		wrk[cbgPair{r.DstCBG, r.OrgCBG}] += r.Count
	}

	idx := make(map[cbgPair]int, len(home))
	var out []PairRow
	for _, r := range home {
		k := cbgPair{r.DstCBG, r.OrgCBG}
		if i, ok := idx[k]; ok {
			out[i].Home += r.Count
			continue
		}
		idx[k] = len(out)
		out = append(out, PairRow{DstCBG: r.DstCBG, OrgCBG: r.OrgCBG, Home: r.Count})
	}

	for i := range out {
		out[i].HomeWork = wrk[cbgPair{out[i].DstCBG, out[i].OrgCBG}]
		out[i].Flow = out[i].Home - out[i].HomeWork
	}
	return out
}

// AggregateToCounty sums block group pairs into one record per
// (destination county, origin county). Output is sorted by dst, then org.
func AggregateToCounty(rows []PairRow) []Record {
	acc := make(map[countyPair]*Record)
	for _, r := range rows {
		k := countyPair{CBGToCounty(r.DstCBG), CBGToCounty(r.OrgCBG)}
		rec, ok := acc[k]
		if !ok {
			rec = &Record{Dst: k.dst, Org: k.org}
			acc[k] = rec
		}
		rec.Home += r.Home
		rec.HomeWork += r.HomeWork
		rec.Flow += r.Flow
	}

	out := make([]Record, 0, len(acc))
	for _, rec := range acc {
		out = append(out, *rec)
	}
	SortRecords(out)
	return out
}

// TransformMonth runs the full expansion for one month of raw records and
// returns the county-level flow table.
func TransformMonth(records []RawVisitRecord) ([]Record, error) {
	home, err := Expand(records, CategoryHome)
	if err != nil {
		return nil, err
	}
	homework, err := Expand(records, CategoryHomeWork)
	if err != nil {
		return nil, err
	}
	return AggregateToCounty(MergeCategories(home, homework)), nil
}

// MergeMonths concatenates monthly tables, tagging each row with the first
// day of its month. Rows are not deduplicated across months.
func MergeMonths(tables [][]Record, months []string) ([]Record, error) {
	if len(tables) != len(months) {
		return nil, eris.Errorf("flow: %d tables for %d months", len(tables), len(months))
	}

	var n int
	for _, t := range tables {
		n += len(t)
	}

	out := make([]Record, 0, n)
	for i, t := range tables {
		date := MonthDate(months[i])
		for _, r := range t {
			r.Date = date
			out = append(out, r)
		}
	}
	return out, nil
}

// SortRecords orders records by date, destination, then origin.
func SortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Dst != b.Dst {
			return a.Dst < b.Dst
		}
		return a.Org < b.Org
	})
}
