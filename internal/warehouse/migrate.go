// Package warehouse loads pipeline artifacts into Postgres for ad hoc
// analysis. It owns the reflex schema.
package warehouse

import (
	"context"
	"embed"
	"io/fs"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Key of the session advisory lock serializing concurrent migrators.
const migrationLockID = 7339021

const bootstrapSQL = `
CREATE SCHEMA IF NOT EXISTS reflex;
CREATE TABLE IF NOT EXISTS reflex.schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// migrationNames lists the embedded migrations in apply order. File names
// carry a zero-padded sequence prefix.
func migrationNames() ([]string, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: list migrations")
	}
	for i, n := range names {
		names[i] = n[len("migrations/"):]
	}
	slices.Sort(names)
	return names, nil
}

// Pending returns the embedded migrations not yet recorded as applied.
func Pending(ctx context.Context, pool db.Pool) ([]string, error) {
	names, err := migrationNames()
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(names, func(n string) bool { return applied[n] }), nil
}

// Migrate brings the reflex schema up to date. Each pending migration runs
// in its own transaction together with its bookkeeping row, so a failed
// migration leaves nothing half-applied.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "warehouse.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "warehouse: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("release migration lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, bootstrapSQL); err != nil {
		return eris.Wrap(err, "warehouse: bootstrap schema")
	}

	pending, err := Pending(ctx, pool)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Debug("schema up to date")
		return nil
	}

	for _, name := range pending {
		if err := applyMigration(ctx, pool, name); err != nil {
			return err
		}
		log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

func applyMigration(ctx context.Context, pool db.Pool, name string) error {
	body, err := migrationFS.ReadFile("migrations/" + name)
	if err != nil {
		return eris.Wrapf(err, "warehouse: read migration %s", name)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "warehouse: begin migration %s", name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, string(body)); err != nil {
		return eris.Wrapf(err, "warehouse: apply migration %s", name)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO reflex.schema_migrations (filename) VALUES ($1)", name); err != nil {
		return eris.Wrapf(err, "warehouse: record migration %s", name)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "warehouse: commit migration %s", name)
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool db.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM reflex.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "warehouse: read applied migrations")
}
