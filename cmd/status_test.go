package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/runlog"
)

func TestFormatEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatEntries(&buf, nil)

	output := buf.String()
	// Should still have the header even if entries is nil.
	assert.Contains(t, output, "KIND")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "ROWS")
}

func TestFormatEntries(t *testing.T) {
	started := time.Date(2025, 1, 15, 10, 30, 0, 0, time.Local)
	completed := started.Add(5 * time.Minute)

	entries := []runlog.Entry{
		{
			Kind:        runlog.KindYear,
			Unit:        "2021",
			Status:      runlog.StatusComplete,
			StartedAt:   started,
			CompletedAt: &completed,
			Rows:        1234567,
		},
		{
			Kind:      runlog.KindMonth,
			Unit:      "2021-03",
			Status:    runlog.StatusFailed,
			StartedAt: started,
			Error:     "flow: parse error in /data/cbg/2021-03/part-0.csv.gz:17: malformed visit map",
		},
	}

	var buf bytes.Buffer
	formatEntries(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "2021-03")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "2025-01-15 10:30")
	assert.Contains(t, output, "5m0s")
	assert.Contains(t, output, "1,234,567")
	assert.Contains(t, output, "...")
}

func TestFormatSummary(t *testing.T) {
	snap := &monitoring.Snapshot{
		Kinds: map[string]*monitoring.KindSummary{
			runlog.KindMonth: {Total: 12, Complete: 11, Failed: 1, Rows: 45000},
			runlog.KindYear:  {Total: 1, Complete: 1, Rows: 45000},
		},
		FailRate: 1.0 / 13.0,
	}

	var buf bytes.Buffer
	formatSummary(&buf, snap)

	output := buf.String()
	assert.Contains(t, output, "COMPLETE")
	assert.Contains(t, output, "45,000")
	assert.Contains(t, output, "fail rate: 7.7%")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("month")), bytes.Index(buf.Bytes(), []byte("year")))
}

func TestWriteYAML(t *testing.T) {
	started := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	entries := []runlog.Entry{{ID: "abc", Kind: runlog.KindIndex, Unit: "2018-2023", Status: runlog.StatusComplete, StartedAt: started, Rows: 3108}}
	snap := &monitoring.Snapshot{Kinds: map[string]*monitoring.KindSummary{runlog.KindIndex: {Total: 1, Complete: 1, Rows: 3108}}}

	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, entries, snap))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Contains(t, got, "summary")
	runs, ok := got["runs"].([]any)
	require.True(t, ok)
	require.Len(t, runs, 1)
	run := runs[0].(map[string]any)
	assert.Equal(t, "2018-2023", run["unit"])
	assert.Equal(t, 3108, run["rows"])
}
