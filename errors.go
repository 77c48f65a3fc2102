package copilot

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrHTTP is a failed HTTP call to a backend API. RetryAfter carries the
// parsed Retry-After header when the server sent one (429/503 responses).
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses an HTTP Retry-After header value: either delay
// seconds ("120") or an HTTP date. Returns 0 when absent or unparseable.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ErrEmbedding is an embedding backend failure or a dimension mismatch after
// shape reduction. Fatal to the operation in progress, not to the process.
type ErrEmbedding struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ErrEmbedding) Error() string {
	return fmt.Sprintf("embedding %s: %s", e.Provider, e.Message)
}

func (e *ErrEmbedding) Unwrap() error { return e.Cause }

// ErrStore is a vector store failure: dimension mismatch on write or a
// backing-store I/O error.
type ErrStore struct {
	Op      string
	Message string
	Cause   error
}

func (e *ErrStore) Error() string {
	return fmt.Sprintf("store %s: %s", e.Op, e.Message)
}

func (e *ErrStore) Unwrap() error { return e.Cause }

// ErrExtraction is an unreadable or corrupt source document. The ingest that
// hit it aborts with no partial writes.
type ErrExtraction struct {
	Source  string
	Message string
	Cause   error
}

func (e *ErrExtraction) Error() string {
	return fmt.Sprintf("extract %s: %s", e.Source, e.Message)
}

func (e *ErrExtraction) Unwrap() error { return e.Cause }

// ErrValidation is a client error rejected at the operation boundary before
// any backend call.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string { return e.Message }

// CandidateFailure records one generation candidate's final error.
type CandidateFailure struct {
	Model string
	Err   error
}

// ErrExhausted means every generation candidate was tried and failed.
// Callers of Ask never see it: the pipeline converts it to the raw-context
// fallback answer.
type ErrExhausted struct {
	Failures []CandidateFailure
}

func (e *ErrExhausted) Error() string {
	var b strings.Builder
	b.WriteString("all generation candidates failed")
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.Model, f.Err)
	}
	return b.String()
}
