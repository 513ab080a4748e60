// Package runlog records the status of every pipeline unit (month, year,
// index build, warehouse load) in a local SQLite database.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Unit kinds.
const (
	KindMonth = "month"
	KindYear  = "year"
	KindIndex = "index"
	KindLoad  = "load"
)

// Statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry represents a row in the runs table.
type Entry struct {
	ID          string         `json:"id" yaml:"id"`
	Kind        string         `json:"kind" yaml:"kind"`
	Unit        string         `json:"unit" yaml:"unit"`
	Status      string         `json:"status" yaml:"status"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Rows        int64          `json:"rows" yaml:"rows"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Result holds the outcome of a unit, passed to Complete.
type Result struct {
	Rows     int64
	Metadata map[string]any
}

// Recorder is the write side of the run log.
type Recorder interface {
	Start(ctx context.Context, kind, unit string) (string, error)
	Complete(ctx context.Context, id string, result *Result) error
	Fail(ctx context.Context, id string, errMsg string) error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Start(context.Context, string, string) (string, error) { return "", nil }
func (Nop) Complete(context.Context, string, *Result) error       { return nil }
func (Nop) Fail(context.Context, string, string) error            { return nil }

// Log implements Recorder using modernc.org/sqlite.
type Log struct {
	db *sql.DB
}

// Open opens a SQLite database at the given path and configures WAL mode.
func Open(dsn string) (*Log, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	// Month workers write concurrently; serialize them on one connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	return &Log{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	unit         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	rows         INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_kind_unit ON runs(kind, unit);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the runs table if needed.
func (l *Log) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Start records the beginning of a unit and returns its ID.
func (l *Log) Start(ctx context.Context, kind, unit string) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, unit, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, kind, unit, StatusRunning, now(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start %s %s", kind, unit)
	}
	return id, nil
}

// Complete marks a unit as successfully completed.
func (l *Log) Complete(ctx context.Context, id string, result *Result) error {
	var rows int64
	var meta []byte
	if result != nil {
		rows = result.Rows
		if result.Metadata != nil {
			var err error
			meta, err = json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "runlog: marshal metadata")
			}
		}
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, rows = ?, metadata = ? WHERE id = ?`,
		StatusComplete, now(), rows, nullString(string(meta)), id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete %s", id)
	}
	return checkRowsAffected(res, id)
}

// Fail marks a unit as failed with an error message.
func (l *Log) Fail(ctx context.Context, id string, errMsg string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		StatusFailed, now(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail %s", id)
	}
	return checkRowsAffected(res, id)
}

// LastSuccess returns when the most recent successful run of a unit started.
// Returns nil if the unit has never completed.
func (l *Log) LastSuccess(ctx context.Context, kind, unit string) (*time.Time, error) {
	var started string
	err := l.db.QueryRowContext(ctx,
		`SELECT started_at FROM runs
		 WHERE kind = ? AND unit = ? AND status = ?
		 ORDER BY started_at DESC LIMIT 1`,
		kind, unit, StatusComplete,
	).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: last success for %s %s", kind, unit)
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: parse started_at")
	}
	return &t, nil
}

// ListAll returns all entries ordered by most recent first.
func (l *Log) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, kind, unit, status, started_at, completed_at, rows, error, metadata
		 FROM runs ORDER BY started_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list all")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started string
		var completed, errStr, meta sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Unit, &e.Status, &started, &completed, &e.Rows, &errStr, &meta); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if e.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, eris.Wrapf(err, "runlog: parse started_at of %s", e.ID)
		}
		if completed.Valid {
			t, err := time.Parse(time.RFC3339Nano, completed.String)
			if err != nil {
				return nil, eris.Wrapf(err, "runlog: parse completed_at of %s", e.ID)
			}
			e.CompletedAt = &t
		}
		e.Error = errStr.String
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "runlog: rows affected")
	}
	if n == 0 {
		return eris.Errorf("runlog: run %s not found", id)
	}
	return nil
}
