// Package geo restricts flow tables to a target geography using a county to
// state reference table.
package geo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/fetcher"
	"github.com/sells-group/reflex-cli/internal/fips"
	"github.com/sells-group/reflex-cli/internal/flow"
)

// Reference table columns (TIGER/Line attribute names).
const (
	ColGEOID    = "GEOID"
	ColStateFP  = "STATEFP"
	ColCountyFP = "COUNTYFP"
)

// County is one row of the reference table.
type County struct {
	GEOID int
	State int
}

// LoadReference reads the county reference table from a CSV file (optionally
// gzip-compressed), an XLSX workbook or a TIGER county shapefile. When GEOID
// is absent it is built from STATEFP and COUNTYFP.
func LoadReference(ctx context.Context, path string) ([]County, error) {
	var (
		counties []County
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		counties, err = loadShapefile(path)
	case ".xlsx":
		counties, err = loadXLSX(path)
	default:
		counties, err = loadCSV(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Debug("geo: loaded reference table",
		zap.String("path", path), zap.Int("counties", len(counties)))
	return counties, nil
}

func loadCSV(ctx context.Context, path string) ([]County, error) {
	rc, err := fetcher.Open(path)
	if err != nil {
		return nil, flow.NewIOError(path, err)
	}
	defer rc.Close() //nolint:errcheck

	tr, err := fetcher.NewTableReader(rc, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		if errors.Is(err, fetcher.ErrNoHeader) {
			return nil, flow.NewSchemaError(path, err)
		}
		return nil, flow.NewIOError(path, err)
	}
	cols, err := referenceColumns(tr.Header)
	if err != nil {
		return nil, flow.NewSchemaError(path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows, errs := tr.Stream(ctx)
	var counties []County
	for row := range rows {
		c, err := parseCounty(cols.Get(row.Fields, ColGEOID), cols.Get(row.Fields, ColStateFP), cols.Get(row.Fields, ColCountyFP))
		if err != nil {
			return nil, flow.NewParseError(fmt.Sprintf("%s:%d", path, row.Line), err)
		}
		counties = append(counties, c)
	}
	if err := <-errs; err != nil {
		return nil, flow.NewIOError(path, err)
	}
	if len(counties) == 0 {
		return nil, flow.NewSchemaError(path, eris.New("geo: reference table has no rows"))
	}
	return counties, nil
}

// loadXLSX reads the first sheet; the first row is the header.
func loadXLSX(path string) ([]County, error) {
	rows, err := fetcher.ReadSheet(path, "")
	if err != nil {
		return nil, flow.NewIOError(path, err)
	}
	if len(rows) < 2 {
		return nil, flow.NewSchemaError(path, eris.New("geo: reference table has no rows"))
	}
	cols, err := referenceColumns(rows[0])
	if err != nil {
		return nil, flow.NewSchemaError(path, err)
	}

	counties := make([]County, 0, len(rows)-1)
	for _, row := range rows[1:] {
		c, err := parseCounty(cols.Get(row, ColGEOID), cols.Get(row, ColStateFP), cols.Get(row, ColCountyFP))
		if err != nil {
			return nil, flow.NewParseError(path, err)
		}
		counties = append(counties, c)
	}
	return counties, nil
}

func loadShapefile(path string) ([]County, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, flow.NewIOError(path, eris.Wrapf(err, "geo: open shapefile %s", path))
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = strings.TrimRight(f.String(), "\x00")
	}
	cols, err := referenceColumns(header)
	if err != nil {
		return nil, flow.NewSchemaError(path, err)
	}

	attr := func(name string) string {
		idx, ok := cols[strings.ToLower(name)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var counties []County
	for reader.Next() {
		c, err := parseCounty(attr(ColGEOID), attr(ColStateFP), attr(ColCountyFP))
		if err != nil {
			return nil, flow.NewParseError(path, err)
		}
		counties = append(counties, c)
	}
	return counties, nil
}

func referenceColumns(header []string) (fetcher.Columns, error) {
	cols, missing := fetcher.IndexColumns(header, ColStateFP)
	if len(missing) > 0 {
		return nil, eris.Errorf("geo: missing columns %v", missing)
	}
	if !cols.Has(ColGEOID) && !cols.Has(ColCountyFP) {
		return nil, eris.Errorf("geo: need %s or %s", ColGEOID, ColCountyFP)
	}
	return cols, nil
}

func parseCounty(geoid, statefp, countyfp string) (County, error) {
	if geoid == "" {
		geoid = fips.Combine(statefp, countyfp)
	}
	id, err := fips.ParseCounty(geoid)
	if err != nil {
		return County{}, err
	}
	state, err := fips.ParseState(statefp)
	if err != nil {
		return County{}, err
	}
	return County{GEOID: id, State: state}, nil
}
