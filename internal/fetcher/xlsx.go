package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadSheet returns the rows of one worksheet as trimmed strings. An empty
// sheet name selects the first sheet. Rows whose cells are all blank are
// dropped and trailing blank cells are cut, so workbooks edited by hand read
// the same as the ones Write produces.
func ReadSheet(path, sheet string) ([][]string, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	var ws *xlsx.Sheet
	switch {
	case sheet != "":
		var ok bool
		if ws, ok = wb.Sheet[sheet]; !ok {
			return nil, eris.Errorf("xlsx: %s has no sheet %q", path, sheet)
		}
	case len(wb.Sheets) == 0:
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	default:
		ws = wb.Sheets[0]
	}

	rows := make([][]string, 0, len(ws.Rows))
	for _, r := range ws.Rows {
		if r == nil {
			continue
		}
		cells := make([]string, len(r.Cells))
		last := -1
		for i, c := range r.Cells {
			cells[i] = strings.TrimSpace(c.String())
			if cells[i] != "" {
				last = i
			}
		}
		if last < 0 {
			continue
		}
		rows = append(rows, cells[:last+1])
	}
	return rows, nil
}
