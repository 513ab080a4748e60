// Package batch orchestrates the pipeline: per-month expansion, yearly
// merges, and the index build. Every unit is recorded in the run log and
// counted in the batch metrics.
package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/runlog"
)

// tracker records unit outcomes. Run-log failures are logged, never fatal,
// except when the unit cannot be started at all.
type tracker struct {
	runs    runlog.Recorder
	metrics *monitoring.Metrics
}

func newTracker(runs runlog.Recorder, m *monitoring.Metrics) tracker {
	if runs == nil {
		runs = runlog.Nop{}
	}
	return tracker{runs: runs, metrics: m}
}

// track runs fn as one unit of kind.
func (t tracker) track(ctx context.Context, log *zap.Logger, kind, unit string, fn func() (*runlog.Result, error)) error {
	id, err := t.runs.Start(ctx, kind, unit)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := fn()
	elapsed := time.Since(start)

	if err != nil {
		log.Error("unit failed", zap.String("kind", kind), zap.String("unit", unit),
			zap.Error(err), zap.Duration("elapsed", elapsed))
		if logErr := t.runs.Fail(ctx, id, err.Error()); logErr != nil {
			log.Error("failed to record unit failure", zap.Error(logErr))
		}
		t.metrics.ObserveUnit(kind, runlog.StatusFailed, elapsed)
		return err
	}

	if logErr := t.runs.Complete(ctx, id, result); logErr != nil {
		log.Error("failed to record unit completion", zap.Error(logErr))
	}
	t.metrics.ObserveUnit(kind, runlog.StatusComplete, elapsed)

	var rows int64
	if result != nil {
		rows = result.Rows
	}
	log.Info("unit complete", zap.String("kind", kind), zap.String("unit", unit),
		zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	return nil
}
