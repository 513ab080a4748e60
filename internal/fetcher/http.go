package fetcher

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Host the Census Bureau serves TIGER/Line archives from.
const CensusDownloadHost = "www2.census.gov"

// defaultRate applies to hosts without a configured limiter.
const defaultRate = rate.Limit(20)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration // first retry delay, doubled per attempt (default 1s)
	MaxBackoff  time.Duration // default 30s

	// RateLimiters pins a fixed limiter per host. Hosts in Adaptive use
	// the adaptive limiter instead.
	RateLimiters map[string]*rate.Limiter
	Adaptive     map[string]*AdaptiveLimiter
}

// DefaultRateLimiters returns fixed per-host limits for Census endpoints.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		CensusDownloadHost: rate.NewLimiter(5, 5),
		"api.census.gov":   rate.NewLimiter(5, 5),
	}
}

// DefaultAdaptiveLimiters returns adaptive limiters for hosts known to
// answer bulk downloads with 429.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		CensusDownloadHost: NewAdaptiveLimiter(5, 5),
	}
}

// pacer throttles requests to a single host.
type pacer interface {
	Wait(ctx context.Context) error
}

// AdaptiveLimiter is a rate limiter that speeds up by 20% per success, up to
// twice its initial rate, and halves on 429, down to a quarter of it.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	current rate.Limit
	floor   rate.Limit
	ceiling rate.Limit
}

// NewAdaptiveLimiter returns an AdaptiveLimiter starting at initial.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		current: initial,
		floor:   initial / 4,
		ceiling: initial * 2,
	}
}

// Wait blocks until the limiter admits a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate after a successful response.
func (a *AdaptiveLimiter) OnSuccess() { a.scale(1.2) }

// OnRateLimit lowers the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	next := a.scale(0.5)
	zap.L().Warn("fetcher: throttled, lowering request rate", zap.Float64("rate", float64(next)))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) scale(factor float64) rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = min(max(a.current*rate.Limit(factor), a.floor), a.ceiling)
	a.limiter.SetLimit(a.current)
	return a.current
}

// HTTPFetcher downloads over HTTP(S) with per-host pacing and retry of
// transport errors, 429 and 5xx responses.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	fixed  map[string]*rate.Limiter
	adapt  map[string]*AdaptiveLimiter
}

// NewHTTPFetcher returns an HTTPFetcher with defaults applied to opts.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "reflex-cli/1.0"
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	adapt := opts.Adaptive
	if adapt == nil {
		adapt = DefaultAdaptiveLimiters()
	}
	fixed := make(map[string]*rate.Limiter, len(opts.RateLimiters))
	for host, lim := range opts.RateLimiters {
		fixed[host] = lim
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:  opts,
		fixed: fixed,
		adapt: adapt,
	}
}

// pacerFor resolves the limiter for the host of rawURL. Adaptive limiters
// take precedence over fixed ones.
func (f *HTTPFetcher) pacerFor(rawURL string) pacer {
	u, err := url.Parse(rawURL)
	if err == nil {
		if a, ok := f.adapt[u.Host]; ok {
			return a
		}
		if lim, ok := f.fixed[u.Host]; ok {
			return lim
		}
	}
	return rate.NewLimiter(defaultRate, int(defaultRate))
}

// delay returns the pause before retry n (0-based) with up to 50% jitter.
func (f *HTTPFetcher) delay(n int) time.Duration {
	d := f.opts.BaseBackoff << n
	if d <= 0 || d > f.opts.MaxBackoff {
		d = f.opts.MaxBackoff
	}
	if half := int64(d / 2); half > 0 {
		d += time.Duration(rand.Int63n(half))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// get issues GET requests until one returns a non-retryable response.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	log := zap.L().With(zap.String("component", "fetcher.http"), zap.String("url", rawURL))
	p := f.pacerFor(rawURL)
	adaptive, _ := p.(*AdaptiveLimiter)

	var lastErr error
	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, f.delay(attempt-1)); err != nil {
				return nil, eris.Wrap(err, "fetcher: backoff")
			}
		}
		if err := p.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		switch {
		case err != nil:
			lastErr = err
			log.Warn("request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL)
			if adaptive != nil && resp.StatusCode == http.StatusTooManyRequests {
				adaptive.OnRateLimit()
			}
			log.Warn("retryable response", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
			continue
		}

		if adaptive != nil {
			adaptive.OnSuccess()
		}
		return resp, nil
	}
	return nil, eris.Wrap(lastErr, "fetcher: all retries exhausted")
}

// Download fetches rawURL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// DownloadToFile fetches rawURL into path atomically.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return copyToFile(path, body)
}
