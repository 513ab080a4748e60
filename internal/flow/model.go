// Package flow reshapes raw device-panel visit records into county-level
// origin-destination flow tables.
package flow

import "time"

// Visit categories as they appear in the flow tables.
const (
	CategoryHome     = "home"
	CategoryHomeWork = "homewrk"
)

// cbgDigits is the width of a census block group identifier.
const cbgDigits = 12

// cbgPerCounty strips the tract and block-group digits from a CBG code.
const cbgPerCounty = 10_000_000

// VisitMap maps an origin block group identifier to a visit count. A nil
// count means the source reported the origin without a value.
type VisitMap map[string]*int64

// RawVisitRecord is one row of a monthly source file.
type RawVisitRecord struct {
	DestinationCBG string
	RawDeviceCount int64
	Home           VisitMap
	HomeWork       VisitMap
}

// VisitRow is a single long-format (destination, origin, count) row at block
// group granularity.
type VisitRow struct {
	DstCBG int64
	OrgCBG int64
	Count  int64
}

// PairRow is a block-group pair after the home/homewrk merge.
type PairRow struct {
	DstCBG   int64
	OrgCBG   int64
	Home     int64
	HomeWork int64
	Flow     int64
}

// Record is a county-level flow between an origin and a destination. Date is
// the first day of the month the flow was observed in, formatted YYYY-MM-DD;
// it is empty in per-month tables.
type Record struct {
	Dst      int    `csv:"dst"`
	Org      int    `csv:"org"`
	Home     int64  `csv:"home"`
	HomeWork int64  `csv:"homewrk"`
	Flow     int64  `csv:"flow"`
	Date     string `csv:"date"`
}

// Year returns the calendar year of the record's date, or 0 when the date is
// missing or malformed.
func (r Record) Year() int {
	if len(r.Date) != len(time.DateOnly) || r.Date[4] != '-' {
		return 0
	}
	var y int
	for _, c := range r.Date[:4] {
		if c < '0' || c > '9' {
			return 0
		}
		y = y*10 + int(c-'0')
	}
	return y
}

// MonthDate returns the first-of-month date string for a month label such as
// "2021-03".
func MonthDate(month string) string {
	return month + "-01"
}

// CBGToCounty truncates a 12-digit block group code to its 5-digit county.
func CBGToCounty(cbg int64) int {
	return int(cbg / cbgPerCounty)
}
