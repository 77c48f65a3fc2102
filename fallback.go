package copilot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// errEmptyResponse marks a candidate that answered with only whitespace.
// Not transient: the next candidate is tried immediately.
var errEmptyResponse = errors.New("empty response from model")

// Candidate is one backend model in the ordered fallback list.
type Candidate struct {
	Provider GenerationProvider
	// Timeout bounds each attempt against this candidate. Zero means no
	// per-attempt deadline beyond the caller's context.
	Timeout time.Duration
}

// attemptResult is the outcome of one candidate attempt. Failure is an
// expected, common event here, so it travels as a value through the loop
// rather than as control flow.
type attemptResult struct {
	text string
	err  error
}

// FallbackGenerator tries an ordered list of generation candidates until one
// produces a non-empty response. Transient failures of a candidate are
// retried with exponential backoff before moving on; only when every
// candidate has failed does Generate return *ErrExhausted.
type FallbackGenerator struct {
	candidates []Candidate
	retry      retryConfig
	logger     *slog.Logger
}

// FallbackOption configures a FallbackGenerator.
type FallbackOption func(*FallbackGenerator)

// WithFallbackLogger sets the structured logger for candidate failures and
// failovers. If not set, a no-op logger is used.
func WithFallbackLogger(l *slog.Logger) FallbackOption {
	return func(g *FallbackGenerator) { g.logger = l }
}

// WithFallbackRetry applies retry options (attempt count, base delay) to the
// per-candidate retry loop.
func WithFallbackRetry(opts ...RetryOption) FallbackOption {
	return func(g *FallbackGenerator) {
		for _, o := range opts {
			o(&g.retry)
		}
	}
}

// NewFallbackGenerator creates a generator over an ordered candidate list.
func NewFallbackGenerator(candidates []Candidate, opts ...FallbackOption) *FallbackGenerator {
	g := &FallbackGenerator{
		candidates: candidates,
		retry:      defaultRetryConfig(),
		logger:     nopLogger,
	}
	for _, o := range opts {
		o(g)
	}
	if g.retry.logger == nopLogger && g.logger != nopLogger {
		g.retry.logger = g.logger
	}
	return g
}

// Generate tries each candidate in order and returns the first non-empty
// trimmed response together with the candidate's Name(). An empty response
// counts as a failure. The error is *ErrExhausted only after every candidate
// failed; a canceled context propagates as-is.
func (g *FallbackGenerator) Generate(ctx context.Context, prompt string) (string, string, error) {
	var failures []CandidateFailure

	for _, cand := range g.candidates {
		name := cand.Provider.Name()
		res := g.attempt(ctx, cand, prompt)
		if res.err == nil {
			return res.text, name, nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		g.logger.Warn("generation candidate failed, trying next",
			"model", name, "error", res.err)
		failures = append(failures, CandidateFailure{Model: name, Err: res.err})
	}

	g.logger.Error("all generation candidates exhausted", "candidates", len(g.candidates))
	return "", "", &ErrExhausted{Failures: failures}
}

// attempt runs one candidate through the shared retry loop with its
// per-attempt timeout applied.
func (g *FallbackGenerator) attempt(ctx context.Context, cand Candidate, prompt string) attemptResult {
	name := cand.Provider.Name()
	text, err := retryCall(ctx, g.retry, name, func() (string, error) {
		callCtx := ctx
		if cand.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, cand.Timeout)
			defer cancel()
		}
		out, err := cand.Provider.Generate(callCtx, prompt)
		if err != nil {
			return "", err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return "", errEmptyResponse
		}
		return out, nil
	})
	return attemptResult{text: text, err: err}
}
