package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{Attempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond}
}

var serialization = &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

func TestRun_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy()
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	err := Run(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return eris.Wrap(serialization, "warehouse: replace year 2021")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRun_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return serialization
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, serialization)
}

func TestRun_NonTransientNotRetried(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Run(ctx, Policy{Attempts: 5, Base: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return serialization
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_CustomRetryable(t *testing.T) {
	calls := 0
	p := fastPolicy()
	p.Retryable = func(error) bool { return true }
	_ = Run(context.Background(), p, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 3, calls)
}

func TestRunVal(t *testing.T) {
	calls := 0
	v, err := RunVal(context.Background(), fastPolicy(), func(context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, serialization
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = RunVal(context.Background(), fastPolicy(), func(context.Context) (int64, error) {
		return 7, errors.New("permanent")
	})
	require.Error(t, err)
	assert.Zero(t, v)
}

func TestBackoff(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, time.Second, p.Backoff(10))
	assert.Equal(t, time.Second, p.Backoff(70), "shift overflow is capped")

	p.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := p.Backoff(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestLogged_KeepsPolicy(t *testing.T) {
	p := WarehousePolicy().Logged("warehouse load", "flows/2021")
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 500*time.Millisecond, p.Base)
	require.NotNil(t, p.OnRetry)
	p.OnRetry(1, time.Millisecond, serialization)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"serialization", serialization, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"connection class", &pgconn.PgError{Code: "08006"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped", fmt.Errorf("copy: %w", serialization), true},
		{"timeout", &netTimeout{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

type netTimeout struct{}

func (*netTimeout) Error() string   { return "i/o timeout" }
func (*netTimeout) Timeout() bool   { return true }
func (*netTimeout) Temporary() bool { return true }
