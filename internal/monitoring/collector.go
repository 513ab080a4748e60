package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reflex-cli/internal/runlog"
)

// KindSummary counts run-log entries of one unit kind.
type KindSummary struct {
	Total    int   `json:"total" yaml:"total"`
	Complete int   `json:"complete" yaml:"complete"`
	Failed   int   `json:"failed" yaml:"failed"`
	Running  int   `json:"running" yaml:"running"`
	Rows     int64 `json:"rows" yaml:"rows"`
}

// Snapshot holds a point-in-time view of the run log.
type Snapshot struct {
	Kinds         map[string]*KindSummary `json:"kinds" yaml:"kinds"`
	FailRate      float64                 `json:"fail_rate" yaml:"fail_rate"`
	LookbackHours int                     `json:"lookback_hours" yaml:"lookback_hours"`
	CollectedAt   time.Time               `json:"collected_at" yaml:"collected_at"`
}

// RunLogQuerier abstracts the run-log methods needed by the collector.
type RunLogQuerier interface {
	ListAll(ctx context.Context) ([]runlog.Entry, error)
}

// Collector summarizes the run log.
type Collector struct {
	runs RunLogQuerier
}

// NewCollector creates a new run-log collector.
func NewCollector(runs RunLogQuerier) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot over the given lookback window. A lookback of
// zero or less covers the whole log.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	snap := &Snapshot{
		Kinds:         make(map[string]*KindSummary),
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	entries, err := c.runs.ListAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	var complete, failed int
	for _, e := range entries {
		if e.StartedAt.Before(cutoff) {
			continue
		}
		k, ok := snap.Kinds[e.Kind]
		if !ok {
			k = &KindSummary{}
			snap.Kinds[e.Kind] = k
		}
		k.Total++
		switch e.Status {
		case runlog.StatusComplete:
			k.Complete++
			k.Rows += e.Rows
			complete++
		case runlog.StatusFailed:
			k.Failed++
			failed++
		case runlog.StatusRunning:
			k.Running++
		}
	}

	if finished := complete + failed; finished > 0 {
		snap.FailRate = float64(failed) / float64(finished)
	}
	return snap, nil
}
