package reflex

import (
	"encoding/csv"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reflex-cli/internal/fetcher"
	"github.com/sells-group/reflex-cli/internal/fips"
	"github.com/sells-group/reflex-cli/internal/flow"
)

// Read loads a table previously written by Write.
func Read(path string) (*Table, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = fetcher.ReadSheet(path, "")
	} else {
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, flow.NewIOError(path, err)
	}
	if len(rows) == 0 {
		return nil, flow.NewSchemaError(path, eris.New("reflex: empty table"))
	}

	years, err := parseHeader(rows[0])
	if err != nil {
		return nil, flow.NewSchemaError(path, err)
	}

	t := &Table{Years: years, Columns: make(map[int]Index, len(years))}
	for _, y := range years {
		t.Columns[y] = make(Index)
	}
	for i, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		dst, err := fips.ParseCounty(row[0])
		if err != nil {
			return nil, flow.NewParseError(path, eris.Wrapf(err, "reflex: row %d", i+2))
		}
		for j, y := range years {
			if j+1 >= len(row) || strings.TrimSpace(row[j+1]) == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j+1]), 64)
			if err != nil {
				return nil, flow.NewParseError(path, eris.Wrapf(err, "reflex: row %d column %s", i+2, ColumnName(y)))
			}
			t.Columns[y][dst] = v
		}
	}
	for _, y := range years {
		if len(t.Columns[y]) == 0 {
			t.EmptyYears = append(t.EmptyYears, y)
		}
	}
	return t, nil
}

func readCSV(path string) ([][]string, error) {
	rc, err := fetcher.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "reflex: read csv")
	}
	return rows, nil
}

// parseHeader maps "reflexYY" columns back to years.
func parseHeader(h []string) ([]int, error) {
	if len(h) == 0 || !strings.EqualFold(strings.TrimSpace(h[0]), "dst") {
		return nil, eris.New("reflex: first column must be dst")
	}
	years := make([]int, 0, len(h)-1)
	for _, col := range h[1:] {
		suffix, ok := strings.CutPrefix(strings.TrimSpace(col), "reflex")
		if !ok || len(suffix) != 2 {
			return nil, eris.Errorf("reflex: unexpected column %q", col)
		}
		yy, err := strconv.Atoi(suffix)
		if err != nil {
			return nil, eris.Errorf("reflex: unexpected column %q", col)
		}
		years = append(years, 2000+yy)
	}
	return years, nil
}
