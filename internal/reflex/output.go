package reflex

import (
	"encoding/csv"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/reflex-cli/internal/fetcher"
	"github.com/sells-group/reflex-cli/internal/fips"
	"github.com/sells-group/reflex-cli/internal/flow"
)

// Write persists the table, choosing the format from the file extension:
// .xlsx writes a workbook, anything else CSV (gzip-compressed for .gz).
func Write(path string, t *Table) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteXLSX(path, t)
	}
	return WriteCSV(path, t)
}

func header(t *Table) []string {
	h := make([]string, 0, len(t.Years)+1)
	h = append(h, "dst")
	for _, y := range t.Years {
		h = append(h, ColumnName(y))
	}
	return h
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes one row per destination. Absent values are empty cells.
func WriteCSV(path string, t *Table) error {
	af, err := fetcher.Create(path)
	if err != nil {
		return flow.NewIOError(path, err)
	}

	w := csv.NewWriter(af)
	_ = w.Write(header(t))
	for _, dst := range t.Destinations() {
		row := make([]string, 0, len(t.Years)+1)
		row = append(row, fips.PadCounty(dst))
		for _, y := range t.Years {
			if v, ok := t.Value(dst, y); ok {
				row = append(row, formatValue(v))
			} else {
				row = append(row, "")
			}
		}
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		af.Abort()
		return flow.NewIOError(path, eris.Wrap(err, "reflex: write csv"))
	}
	if err := af.Commit(); err != nil {
		return flow.NewIOError(path, err)
	}
	return nil
}

// WriteXLSX writes the table to a single-sheet workbook.
func WriteXLSX(path string, t *Table) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("reflex")
	if err != nil {
		return eris.Wrap(err, "reflex: add sheet")
	}

	hrow := sheet.AddRow()
	for _, h := range header(t) {
		hrow.AddCell().SetString(h)
	}
	for _, dst := range t.Destinations() {
		row := sheet.AddRow()
		row.AddCell().SetString(fips.PadCounty(dst))
		for _, y := range t.Years {
			cell := row.AddCell()
			if v, ok := t.Value(dst, y); ok {
				cell.SetFloat(v)
			}
		}
	}

	af, err := fetcher.Create(path)
	if err != nil {
		return flow.NewIOError(path, err)
	}
	if err := file.Write(af); err != nil {
		af.Abort()
		return flow.NewIOError(path, eris.Wrap(err, "reflex: write xlsx"))
	}
	if err := af.Commit(); err != nil {
		return flow.NewIOError(path, err)
	}
	return nil
}
