package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
// A schema-qualified name such as "reflex.flows" is split into its parts.
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := c.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// CopyBatches copies rows in chunks of at most batchSize rows and returns the
// total copied. A batchSize below 1 copies everything at once.
func CopyBatches(ctx context.Context, c Copier, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if batchSize < 1 {
		batchSize = len(rows)
	}

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		n, err := CopyFrom(ctx, c, table, columns, rows[start:end])
		if err != nil {
			return total, eris.Wrapf(err, "db: batch at row %d", start)
		}
		total += n
	}
	return total, nil
}

// Identifier splits a possibly schema-qualified table name.
func Identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}
