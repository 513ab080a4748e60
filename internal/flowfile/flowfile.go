// Package flowfile persists county flow tables: one plain CSV per month and
// one gzip-compressed CSV per year.
package flowfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reflex-cli/internal/fetcher"
	"github.com/sells-group/reflex-cli/internal/flow"
)

// Required columns per artifact.
var (
	MonthColumns = []string{"dst", "org", "home", "homewrk", "flow"}
	YearColumns  = []string{"dst", "org", "flow", "date"}
)

// monthRow is the per-month schema; the date is attached at merge time.
type monthRow struct {
	Dst      int   `csv:"dst"`
	Org      int   `csv:"org"`
	Home     int64 `csv:"home"`
	HomeWork int64 `csv:"homewrk"`
	Flow     int64 `csv:"flow"`
}

// MonthPath returns the intermediate artifact path for a month.
func MonthPath(root, month string) string {
	return filepath.Join(root, month+".csv")
}

// YearPath returns the merged artifact path for a year.
func YearPath(root string, year int) string {
	return filepath.Join(root, fmt.Sprintf("%d.csv.gz", year))
}

// WriteMonth writes a month's county flow table.
func WriteMonth(path string, recs []flow.Record) error {
	rows := make([]monthRow, len(recs))
	for i, r := range recs {
		rows[i] = monthRow{Dst: r.Dst, Org: r.Org, Home: r.Home, HomeWork: r.HomeWork, Flow: r.Flow}
	}
	return write(path, monthRow{}, rows)
}

// WriteYear writes a merged year table, including the date column.
func WriteYear(path string, recs []flow.Record) error {
	return write(path, flow.Record{}, recs)
}

func write[T any](path string, proto T, rows []T) error {
	af, err := fetcher.Create(path)
	if err != nil {
		return flow.NewIOError(path, err)
	}

	w := csv.NewWriter(af)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false

	if err := enc.EncodeHeader(proto); err != nil {
		af.Abort()
		return eris.Wrapf(err, "flowfile: encode header %s", path)
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			af.Abort()
			return flow.NewIOError(path, eris.Wrapf(err, "flowfile: encode row %d", i))
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		af.Abort()
		return flow.NewIOError(path, eris.Wrap(err, "flowfile: flush"))
	}
	if err := af.Commit(); err != nil {
		return flow.NewIOError(path, err)
	}
	return nil
}

// ReadMonth reads a per-month artifact.
func ReadMonth(path string) ([]flow.Record, error) {
	return read(path, MonthColumns)
}

// ReadYear reads a merged year artifact. Only dst, org, flow and date are
// required; home and homewrk are read when present.
func ReadYear(path string) ([]flow.Record, error) {
	return read(path, YearColumns)
}

// ReadYears reads and concatenates the merged artifacts of several years.
func ReadYears(root string, years []int) ([]flow.Record, error) {
	var all []flow.Record
	for _, y := range years {
		recs, err := ReadYear(YearPath(root, y))
		if err != nil {
			return nil, eris.Wrapf(err, "flowfile: year %d", y)
		}
		all = append(all, recs...)
	}
	return all, nil
}

func read(path string, required []string) ([]flow.Record, error) {
	rc, err := fetcher.Open(path)
	if err != nil {
		return nil, flow.NewIOError(path, err)
	}
	defer rc.Close() //nolint:errcheck

	dec, err := csvutil.NewDecoder(csv.NewReader(rc))
	if err != nil {
		if err == io.EOF {
			return nil, flow.NewSchemaError(path, eris.New("flowfile: empty file"))
		}
		return nil, flow.NewIOError(path, eris.Wrap(err, "flowfile: read header"))
	}
	dec.WithUnmarshalers(integralUnmarshalers)

	if _, missing := fetcher.IndexColumns(dec.Header(), required...); len(missing) > 0 {
		return nil, flow.NewSchemaError(path, eris.Errorf("flowfile: missing columns %v", missing))
	}

	var recs []flow.Record
	for {
		var r flow.Record
		err := dec.Decode(&r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, flow.NewParseError(path, eris.Wrap(err, "flowfile: decode row"))
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// integralUnmarshalers accept counts written as integral floats ("6.0"), the
// form tables produced by dataframe tooling use after a zero-fill.
var integralUnmarshalers = csvutil.NewUnmarshalers(
	csvutil.UnmarshalFunc(func(data []byte, v *int64) error {
		n, err := parseIntegral(data)
		*v = n
		return err
	}),
	csvutil.UnmarshalFunc(func(data []byte, v *int) error {
		n, err := parseIntegral(data)
		*v = int(n)
		return err
	}),
)

func parseIntegral(data []byte) (int64, error) {
	s := string(data)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, eris.Errorf("flowfile: %q is not an integer", s)
	}
	return int64(f), nil
}

// Remove deletes an intermediate artifact. Missing files are not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return flow.NewIOError(path, eris.Wrap(err, "flowfile: remove"))
	}
	return nil
}
