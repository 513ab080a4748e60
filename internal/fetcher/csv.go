// Package fetcher reads and writes the local tabular files the pipeline
// exchanges: streamed CSV rows, gzip framing, and atomically replaced outputs.
// It also downloads remote reference files over HTTP(S) and FTP.
package fetcher

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoHeader is returned for a CSV without even a header line.
var ErrNoHeader = eris.New("csv: no header row")

// MissingColumnsError lists required columns absent from a header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("csv: missing columns %v", e.Columns)
}

// CSVOptions configures a TableReader.
type CSVOptions struct {
	Comma     rune // default ','
	TrimSpace bool
}

// Record is one data row and the line it starts on.
type Record struct {
	Line   int
	Fields []string
}

// TableReader streams the data rows of a CSV whose first line is a header.
type TableReader struct {
	Header  []string
	Columns Columns

	r    *csv.Reader
	trim bool
}

// NewTableReader reads the header of r and checks it for the required
// columns. Rows may have varying field counts; Columns.Get tolerates short
// rows.
func NewTableReader(r io.Reader, opts CSVOptions, required ...string) (*TableReader, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	cols, missing := IndexColumns(header, required...)
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	return &TableReader{Header: header, Columns: cols, r: cr, trim: opts.TrimSpace}, nil
}

// Stream sends the remaining rows on the first channel. At most one error is
// sent on the second. Both channels are closed once reading stops, and the
// caller must drain the rows or cancel ctx.
func (t *TableReader) Stream(ctx context.Context) (<-chan Record, <-chan error) {
	rows := make(chan Record, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(rows)

		for {
			fields, err := t.r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- eris.Wrap(err, "csv: read row")
				return
			}
			line, _ := t.r.FieldPos(0)
			if t.trim {
				for i := range fields {
					fields[i] = strings.TrimSpace(fields[i])
				}
			}

			select {
			case rows <- Record{Line: line, Fields: fields}:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "csv: stream cancelled")
				return
			}
		}
	}()
	return rows, errs
}

// Columns maps header names to their positions, case-insensitively.
type Columns map[string]int

// IndexColumns builds a case-insensitive column index from a header row and
// reports which of the required columns are missing. The first of duplicate
// names wins.
func IndexColumns(header []string, required ...string) (Columns, []string) {
	cols := make(Columns, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}

	var missing []string
	for _, name := range required {
		if !cols.Has(name) {
			missing = append(missing, name)
		}
	}
	return cols, missing
}

// Has reports whether the named column is present.
func (c Columns) Has(name string) bool {
	_, ok := c[strings.ToLower(name)]
	return ok
}

// Get returns the named field of record, or "" when the column is absent or
// the record is short.
func (c Columns) Get(record []string, name string) string {
	idx, ok := c[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}
