package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/resilience"
	"github.com/sells-group/reflex-cli/internal/runlog"
	"github.com/sells-group/reflex-cli/internal/warehouse"
)

// openRunLog opens the configured run log. With no path configured the
// returned recorder discards everything.
func openRunLog(ctx context.Context) (runlog.Recorder, func(), error) {
	if cfg.Runlog.Path == "" {
		return runlog.Nop{}, func() {}, nil
	}
	l, err := openRunLogDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Close() }, nil
}

func openRunLogDB(ctx context.Context) (*runlog.Log, error) {
	l, err := runlog.Open(cfg.Runlog.Path)
	if err != nil {
		return nil, err
	}
	if err := l.Migrate(ctx); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// flushMetrics writes the batch metrics textfile when one is configured.
func flushMetrics(m *monitoring.Metrics) {
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		zap.L().Warn("failed to write metrics textfile", zap.Error(err))
	}
}

// warehousePool connects to the warehouse and brings its schema up to date.
func warehousePool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Warehouse.DatabaseURL
	if dsn == "" {
		return nil, eris.New("warehouse: no database_url configured (set warehouse.database_url)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: create connection pool")
	}

	ping := resilience.WarehousePolicy().Logged("warehouse ping", "pool")
	if err := resilience.Run(ctx, ping, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "warehouse: ping database")
	}

	if err := warehouse.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
