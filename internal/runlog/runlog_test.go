package runlog

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, l.Migrate(context.Background()))
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStartComplete(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	id, err := l.Start(ctx, KindMonth, "2021-01")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, l.Complete(ctx, id, &Result{Rows: 42, Metadata: map[string]any{"files": 3}}))

	entries, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, KindMonth, e.Kind)
	assert.Equal(t, "2021-01", e.Unit)
	assert.Equal(t, StatusComplete, e.Status)
	assert.Equal(t, int64(42), e.Rows)
	require.NotNil(t, e.CompletedAt)
	assert.False(t, e.CompletedAt.Before(e.StartedAt))
	assert.Equal(t, float64(3), e.Metadata["files"])
	assert.Empty(t, e.Error)
}

func TestFail(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	id, err := l.Start(ctx, KindYear, "2021")
	require.NoError(t, err)
	require.NoError(t, l.Fail(ctx, id, "month 2021-03: parse error"))

	entries, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, "month 2021-03: parse error", entries[0].Error)
	assert.Nil(t, entries[0].Metadata)
}

func TestCompleteUnknownID(t *testing.T) {
	l := newTestLog(t)
	err := l.Complete(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLastSuccess(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	got, err := l.LastSuccess(ctx, KindYear, "2021")
	require.NoError(t, err)
	assert.Nil(t, got)

	failed, err := l.Start(ctx, KindYear, "2021")
	require.NoError(t, err)
	require.NoError(t, l.Fail(ctx, failed, "boom"))

	got, err = l.LastSuccess(ctx, KindYear, "2021")
	require.NoError(t, err)
	assert.Nil(t, got, "failed runs don't count")

	ok, err := l.Start(ctx, KindYear, "2021")
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, ok, &Result{Rows: 1}))

	got, err = l.LastSuccess(ctx, KindYear, "2021")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := l.Start(ctx, KindMonth, "2021-0"+string(rune('1'+i)))
			assert.NoError(t, err)
			assert.NoError(t, l.Complete(ctx, id, &Result{Rows: int64(i)}))
		}()
	}
	wg.Wait()

	entries, err := l.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	id, err := r.Start(context.Background(), KindIndex, "2018-2023")
	require.NoError(t, err)
	assert.NoError(t, r.Complete(context.Background(), id, nil))
	assert.NoError(t, r.Fail(context.Background(), id, "x"))
}
