// Package resilience retries warehouse operations that fail for transient
// reasons: dropped connections, serialization conflicts and server restarts.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy describes how an operation is retried.
type Policy struct {
	Attempts int           // total tries including the first; default 3
	Base     time.Duration // delay before the first retry, doubled per retry; default 500ms
	Max      time.Duration // delay cap; default 30s
	Jitter   float64       // ± fraction of the delay, 0 disables

	// Retryable decides whether an error is worth another attempt.
	// Default IsTransient.
	Retryable func(error) bool

	// OnRetry runs before each pause; attempt is the 1-based try that failed.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// WarehousePolicy is the policy for warehouse writes. Each retry replays a
// whole partition transaction, so attempts stay few.
func WarehousePolicy() Policy {
	return Policy{Attempts: 3, Base: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.25}
}

// Logged returns a copy of p that logs each retry of unit at warn level.
func (p Policy) Logged(operation, unit string) Policy {
	log := zap.L().With(zap.String("component", "resilience"),
		zap.String("operation", operation), zap.String("unit", unit))
	p.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.Warn("transient failure, retrying",
			zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}
	return p
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Base <= 0 {
		p.Base = 500 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 30 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Backoff returns the pause before retry n (0-based).
func (p Policy) Backoff(n int) time.Duration {
	p = p.withDefaults()
	d := p.Base << n
	if d <= 0 || d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * p.Jitter * float64(d))
	}
	return max(d, 0)
}

// Run calls fn until it succeeds, returns an error Retryable rejects, the
// attempts are spent or ctx ends. The last error is returned as is.
func Run(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := RunVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RunVal is Run for functions producing a value. The zero value is returned
// with any error.
func RunVal[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.Attempts || ctx.Err() != nil || !p.Retryable(err) {
			return zero, err
		}

		wait := p.Backoff(attempt - 1)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}
