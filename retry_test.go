package copilot

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &ErrHTTP{Status: 429}, true},
		{"unavailable", &ErrHTTP{Status: 503}, true},
		{"bad request", &ErrHTTP{Status: 400}, false},
		{"unauthorized", &ErrHTTP{Status: 401}, false},
		{"server error", &ErrHTTP{Status: 500}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"conn refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"plain error", errors.New("nope"), false},
	}
	for _, tc := range cases {
		if got := isTransient(tc.err); got != tc.want {
			t.Errorf("%s: isTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	err := &ErrHTTP{Status: 429, RetryAfter: 5 * time.Second}
	if d := retryDelay(time.Millisecond, 0, err); d < 5*time.Second {
		t.Errorf("delay %v below server Retry-After", d)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	err := &ErrHTTP{Status: 429, RetryAfter: 10 * time.Minute}
	if d := retryDelay(time.Second, 0, err); d > maxRetryDelay {
		t.Errorf("delay %v exceeds cap", d)
	}
	if d := retryDelay(time.Second, 20, errors.New("x")); d > maxRetryDelay {
		t.Errorf("backoff %v exceeds cap", d)
	}
}

// flakyEmbedding fails with a transient error a fixed number of times.
type flakyEmbedding struct {
	failures int
	calls    int
}

func (f *flakyEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &ErrHTTP{Status: 503}
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (f *flakyEmbedding) Dimensions() int { return 1 }
func (f *flakyEmbedding) Name() string    { return "flaky" }

func TestWithEmbeddingRetryRecovers(t *testing.T) {
	inner := &flakyEmbedding{failures: 2}
	p := WithEmbeddingRetry(inner,
		RetryMaxAttempts(3),
		RetryBaseDelay(time.Millisecond))

	out, err := p.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d embeddings, want 1", len(out))
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestWithEmbeddingRetryExhausts(t *testing.T) {
	inner := &flakyEmbedding{failures: 10}
	p := WithEmbeddingRetry(inner,
		RetryMaxAttempts(2),
		RetryBaseDelay(time.Millisecond))

	_, err := p.Embed(context.Background(), []string{"a"})
	var he *ErrHTTP
	if !errors.As(err, &he) || he.Status != 503 {
		t.Fatalf("got %v, want *ErrHTTP 503", err)
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestWithEmbeddingRetryNonTransientFailsFast(t *testing.T) {
	inner := &stubEmbedding{dims: 1, err: &ErrHTTP{Status: 401, Body: "bad key"}}
	p := WithEmbeddingRetry(inner, RetryMaxAttempts(5), RetryBaseDelay(time.Millisecond))

	_, err := p.Embed(context.Background(), []string{"a"})
	var he *ErrHTTP
	if !errors.As(err, &he) || he.Status != 401 {
		t.Fatalf("got %v, want *ErrHTTP 401", err)
	}
}

func TestRetryBackoffLargeAttempt(t *testing.T) {
	for _, i := range []int{0, 5, 34, 40, 63, 200} {
		d := retryBackoff(time.Second, i)
		if d <= 0 || d > maxRetryDelay {
			t.Errorf("attempt %d: backoff %v out of (0, %v]", i, d, maxRetryDelay)
		}
	}
	if d := retryBackoff(0, 3); d != 0 {
		t.Errorf("zero base: backoff %v, want 0", d)
	}
}

// stalledEmbedding blocks until its context is canceled on the first call,
// then answers immediately.
type stalledEmbedding struct {
	calls int
}

func (s *stalledEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.calls == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (s *stalledEmbedding) Dimensions() int { return 1 }
func (s *stalledEmbedding) Name() string    { return "stalled" }

func TestRetryAttemptTimeoutRecovers(t *testing.T) {
	inner := &stalledEmbedding{}
	p := WithEmbeddingRetry(inner,
		RetryMaxAttempts(2),
		RetryBaseDelay(time.Millisecond),
		RetryAttemptTimeout(20*time.Millisecond))

	out, err := p.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d vectors, want 1", len(out))
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}
