package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig defines a partition replacement.
type ReplaceConfig struct {
	Table        string   // target table (e.g., "reflex.flows")
	Columns      []string // columns being copied
	PartitionCol string   // rows matching the partition key are deleted first
	BatchSize    int      // rows per COPY; < 1 copies in one batch
}

// ReplacePartition swaps out every row whose PartitionCol equals key for rows,
// inside a single transaction:
// 1. DELETE FROM table WHERE partition_col = key
// 2. COPY rows in batches
// 3. Commit
func ReplacePartition(ctx context.Context, pool Pool, cfg ReplaceConfig, key any, rows [][]any) (deleted, inserted int64, err error) {
	if len(cfg.Columns) == 0 {
		return 0, 0, eris.New("db: replace: no columns specified")
	}
	if cfg.PartitionCol == "" {
		return 0, 0, eris.New("db: replace: no partition column specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	deleteSQL := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1",
		Identifier(cfg.Table).Sanitize(),
		pgx.Identifier{cfg.PartitionCol}.Sanitize(),
	)
	tag, err := tx.Exec(ctx, deleteSQL, key)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "db: replace: delete partition of %s", cfg.Table)
	}

	inserted, err = CopyBatches(ctx, tx, cfg.Table, cfg.Columns, rows, cfg.BatchSize)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "db: replace: copy into %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, eris.Wrap(err, "db: replace: commit tx")
	}

	return tag.RowsAffected(), inserted, nil
}
