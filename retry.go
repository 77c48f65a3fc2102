package copilot

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"time"
)

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 30 * time.Second

// RetryOption configures retry behavior for wrapped providers and for the
// per-candidate attempts inside FallbackGenerator.
type RetryOption func(*retryConfig)

type retryConfig struct {
	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	logger         *slog.Logger
}

func defaultRetryConfig() retryConfig {
	return retryConfig{maxAttempts: 3, baseDelay: time.Second, logger: nopLogger}
}

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) { c.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Each subsequent delay doubles: baseDelay, 2×baseDelay, …
// capped at 30s.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.baseDelay = d }
}

// RetryAttemptTimeout bounds each individual attempt with its own deadline.
// An attempt that exceeds it fails with context.DeadlineExceeded, which is
// transient, so the next attempt still runs. Zero (the default) means no
// per-attempt deadline beyond the caller's context.
func RetryAttemptTimeout(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.attemptTimeout = d }
}

// RetryLogger sets the structured logger for retry events. Retries log at
// WARN and final failures after exhausting attempts log at ERROR. If not
// set, a no-op logger is used.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(c *retryConfig) { c.logger = l }
}

// isTransient reports whether err is worth retrying: a rate-limit or
// unavailable HTTP status, a deadline/timeout, or a connection failure.
func isTransient(err error) bool {
	var he *ErrHTTP
	if errors.As(err, &he) {
		return he.Status == 429 || he.Status == 503
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// statusOf extracts the HTTP status code from an ErrHTTP, or 0.
func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryDelay computes the delay before retry attempt i: exponential backoff
// with jitter as a floor, the server's Retry-After value (if present) as a
// minimum, capped at maxRetryDelay.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	d := retryBackoff(base, i)
	var he *ErrHTTP
	if errors.As(err, &he) && he.RetryAfter > d {
		d = he.RetryAfter
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// retryBackoff returns the delay for retry i (0-indexed).
// Exponential: base * 2^i, plus up to 50% random jitter, capped at
// maxRetryDelay. Doubling stops at the cap so large attempt counts
// cannot overflow the duration.
func retryBackoff(base time.Duration, i int) time.Duration {
	if base <= 0 {
		return 0
	}
	exp := base
	for j := 0; j < i && exp < maxRetryDelay; j++ {
		exp *= 2
	}
	if exp > maxRetryDelay {
		exp = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	if d := exp + jitter; d < maxRetryDelay {
		return d
	}
	return maxRetryDelay
}

// retryCall calls fn up to maxAttempts times, sleeping between transient
// failures. Non-transient errors return immediately.
func retryCall[T any](ctx context.Context, cfg retryConfig, name string, fn func() (T, error)) (T, error) {
	var zero T
	var last error
	for i := 0; i < cfg.maxAttempts; i++ {
		result, err := fn()
		if err == nil || !isTransient(err) {
			return result, err
		}
		last = err
		cfg.logger.Warn("retrying transient error",
			"provider", name,
			"status", statusOf(err),
			"attempt", i+1,
			"max_attempts", cfg.maxAttempts)
		if i < cfg.maxAttempts-1 {
			timer := time.NewTimer(retryDelay(cfg.baseDelay, i, err))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	cfg.logger.Error("all retry attempts exhausted",
		"provider", name,
		"attempts", cfg.maxAttempts,
		"error", last)
	return zero, last
}

// retryEmbeddingProvider wraps an EmbeddingProvider and automatically
// retries transient failures with exponential backoff.
type retryEmbeddingProvider struct {
	inner EmbeddingProvider
	cfg   retryConfig
}

// WithEmbeddingRetry wraps p with automatic retry on transient failures
// (HTTP 429/503, timeouts, connection errors). Compose with any
// EmbeddingProvider:
//
//	emb = copilot.WithEmbeddingRetry(hf.NewEmbedding(key, model, dims))
//	emb = copilot.WithEmbeddingRetry(emb, copilot.RetryMaxAttempts(5))
func WithEmbeddingRetry(p EmbeddingProvider, opts ...RetryOption) EmbeddingProvider {
	cfg := defaultRetryConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &retryEmbeddingProvider{inner: p, cfg: cfg}
}

func (r *retryEmbeddingProvider) Name() string    { return r.inner.Name() }
func (r *retryEmbeddingProvider) Dimensions() int { return r.inner.Dimensions() }

func (r *retryEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return retryCall(ctx, r.cfg, r.inner.Name(), func() ([][]float32, error) {
		callCtx := ctx
		if r.cfg.attemptTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.attemptTimeout)
			defer cancel()
		}
		return r.inner.Embed(callCtx, texts)
	})
}

var _ EmbeddingProvider = (*retryEmbeddingProvider)(nil)
