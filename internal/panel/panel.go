// Package panel reads the monthly device-panel visitation files that feed the
// flow transform.
package panel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/fetcher"
	"github.com/sells-group/reflex-cli/internal/flow"
)

// Source columns.
const (
	ColArea       = "AREA"
	ColRawDevices = "RAW_DEVICE_COUNTS"
	ColHome       = "DEVICE_HOME_AREAS"
	ColHomeWork   = "WORK_BEHAVIOR_DEVICE_HOME_AREAS"
)

// MonthLayout is the folder naming convention for a month of source data.
const MonthLayout = "2006-01"

var requiredColumns = []string{ColArea, ColRawDevices, ColHome, ColHomeWork}

// Months returns the month folders under root that belong to year, sorted
// chronologically. Entries that are not YYYY-MM directories are ignored.
func Months(root string, year int) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, flow.NewIOError(root, eris.Wrap(err, "panel: list months"))
	}

	prefix := strconv.Itoa(year) + "-"
	var months []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if _, err := time.Parse(MonthLayout, name); err != nil {
			zap.L().Warn("panel: ignoring folder with unexpected name",
				zap.String("root", root), zap.String("folder", name))
			continue
		}
		months = append(months, name)
	}
	sort.Strings(months)
	return months, nil
}

// Files lists the source files of one month, sorted by name. Hidden files
// are skipped.
func Files(root, month string) ([]string, error) {
	dir := filepath.Join(root, month)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, flow.NewIOError(month, eris.Wrap(err, "panel: list files"))
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ReadMonth reads and concatenates every file of a month. The first failing
// file aborts the month and is named in the returned error.
func ReadMonth(ctx context.Context, root, month string) ([]flow.RawVisitRecord, error) {
	files, err := Files(root, month)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, flow.NewIOError(month, eris.New("panel: no source files"))
	}

	var all []flow.RawVisitRecord
	for _, f := range files {
		recs, err := ReadFile(ctx, f)
		if err != nil {
			return nil, eris.Wrapf(err, "panel: month %s", month)
		}
		all = append(all, recs...)
	}
	return all, nil
}

// ReadFile parses one source file, gzip-compressed or plain.
func ReadFile(ctx context.Context, path string) ([]flow.RawVisitRecord, error) {
	rc, err := fetcher.Open(path)
	if err != nil {
		return nil, flow.NewIOError(path, err)
	}
	defer rc.Close() //nolint:errcheck

	tr, err := fetcher.NewTableReader(rc, fetcher.CSVOptions{}, requiredColumns...)
	if err != nil {
		return nil, headerError(path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows, errs := tr.Stream(ctx)
	var records []flow.RawVisitRecord
	for row := range rows {
		rec, err := parseRecord(tr.Columns, row.Fields)
		if err != nil {
			return nil, flow.NewParseError(fmt.Sprintf("%s:%d", path, row.Line), err)
		}
		records = append(records, rec)
	}
	if err := <-errs; err != nil {
		return nil, flow.NewIOError(path, err)
	}
	return records, nil
}

// headerError classifies a failure to open a table: a missing or incomplete
// header is a schema problem, anything else is I/O.
func headerError(path string, err error) error {
	var missing *fetcher.MissingColumnsError
	if errors.Is(err, fetcher.ErrNoHeader) || errors.As(err, &missing) {
		return flow.NewSchemaError(path, eris.Wrap(err, "panel"))
	}
	return flow.NewIOError(path, err)
}

func parseRecord(cols fetcher.Columns, row []string) (flow.RawVisitRecord, error) {
	rec := flow.RawVisitRecord{DestinationCBG: strings.TrimSpace(cols.Get(row, ColArea))}

	devices, err := parseCount(cols.Get(row, ColRawDevices))
	if err != nil {
		return rec, err
	}
	rec.RawDeviceCount = devices

	if rec.Home, err = flow.ParseVisitMap(cols.Get(row, ColHome)); err != nil {
		return rec, eris.Wrap(err, ColHome)
	}
	if rec.HomeWork, err = flow.ParseVisitMap(cols.Get(row, ColHomeWork)); err != nil {
		return rec, eris.Wrap(err, ColHomeWork)
	}
	return rec, nil
}

// parseCount parses a device count; empty cells count as zero.
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, eris.Errorf("panel: invalid device count %q", s)
	}
	return int64(f), nil
}
