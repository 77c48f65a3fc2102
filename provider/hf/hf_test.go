package hf

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finsight/copilot"
)

func embedServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Options.WaitForModel {
			t.Error("wait_for_model not set")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedFlatVectors(t *testing.T) {
	srv := embedServer(t, `[[1.0, 2.0, 3.0], [4.0, 5.0, 6.0]]`)
	e := NewEmbedding("test-key", "some/model", 3, WithEmbeddingBaseURL(srv.URL))

	out, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d vectors, want 2", len(out))
	}
	if out[0][0] != 1 || out[1][2] != 6 {
		t.Errorf("vectors = %v", out)
	}
}

func TestEmbedSingleVector(t *testing.T) {
	srv := embedServer(t, `[0.1, 0.2, 0.3]`)
	e := NewEmbedding("test-key", "some/model", 3, WithEmbeddingBaseURL(srv.URL))

	out, err := e.Embed(context.Background(), []string{"only"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 1 || len(out[0]) != 3 {
		t.Fatalf("shape = %d x %d", len(out), len(out[0]))
	}
}

func TestEmbedTokenMatrixMeanPooled(t *testing.T) {
	// One input, three token vectors: mean pooling must average them.
	srv := embedServer(t, `[[1, 0], [0, 1], [2, 2]]`)
	e := NewEmbedding("test-key", "some/model", 2, WithEmbeddingBaseURL(srv.URL))

	out, err := e.Embed(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d vectors, want 1", len(out))
	}
	want := []float32{1, 1}
	for i := range want {
		if math.Abs(float64(out[0][i]-want[i])) > 1e-6 {
			t.Errorf("pooled[%d] = %v, want %v", i, out[0][i], want[i])
		}
	}
}

func TestEmbedRank3PerInputTokenMatrices(t *testing.T) {
	srv := embedServer(t, `[[[2, 0], [0, 2]], [[4, 4], [0, 0]]]`)
	e := NewEmbedding("test-key", "some/model", 2, WithEmbeddingBaseURL(srv.URL))

	out, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d vectors, want 2", len(out))
	}
	if out[0][0] != 1 || out[0][1] != 1 {
		t.Errorf("input 0 pooled = %v", out[0])
	}
	if out[1][0] != 2 || out[1][1] != 2 {
		t.Errorf("input 1 pooled = %v", out[1])
	}
}

func TestEmbedRank4SingletonBatch(t *testing.T) {
	srv := embedServer(t, `[[[[1, 1], [3, 3]], [[5, 5], [7, 7]]]]`)
	e := NewEmbedding("test-key", "some/model", 2, WithEmbeddingBaseURL(srv.URL))

	out, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if out[0][0] != 2 || out[1][0] != 6 {
		t.Errorf("pooled = %v", out)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := embedServer(t, `[[1.0, 2.0]]`)
	e := NewEmbedding("test-key", "some/model", 3, WithEmbeddingBaseURL(srv.URL))

	_, err := e.Embed(context.Background(), []string{"a"})
	var ee *copilot.ErrEmbedding
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want *ErrEmbedding", err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := embedServer(t, `[[1, 2, 3]]`)
	e := NewEmbedding("test-key", "some/model", 3, WithEmbeddingBaseURL(srv.URL))

	_, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	var ee *copilot.ErrEmbedding
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want *ErrEmbedding", err)
	}
}

func TestEmbedRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()
	e := NewEmbedding("test-key", "some/model", 3, WithEmbeddingBaseURL(srv.URL))

	_, err := e.Embed(context.Background(), []string{"a"})
	var he *copilot.ErrHTTP
	if !errors.As(err, &he) {
		t.Fatalf("got %v, want *ErrHTTP", err)
	}
	if he.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d", he.Status)
	}
	if he.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", he.RetryAfter)
	}
}

func TestEmbedNoTexts(t *testing.T) {
	e := NewEmbedding("test-key", "some/model", 3)
	out, err := e.Embed(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("Embed(nil) = %v, %v", out, err)
	}
}

func TestParseGenerated(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"tagged object", `{"generated_text": "hello"}`, "hello"},
		{"tagged array", `[{"generated_text": " hello "}]`, "hello"},
		{"summary", `[{"summary_text": "short"}]`, "short"},
		{"translation", `{"translation_text": "bonjour"}`, "bonjour"},
		{"bare string", `"plain"`, "plain"},
		{"string array", `["first", "second"]`, "first"},
	}
	for _, tc := range cases {
		got, err := ParseGenerated([]byte(tc.raw))
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestParseGeneratedNoText(t *testing.T) {
	for _, raw := range []string{`{}`, `[]`, `[{"other": "x"}]`, `""`} {
		if _, err := ParseGenerated([]byte(raw)); err == nil {
			t.Errorf("ParseGenerated(%s): expected error", raw)
		}
	}
}

func TestGenerationName(t *testing.T) {
	g := NewGeneration("k", "google/flan-t5-large")
	if g.Name() != "huggingface/google/flan-t5-large" {
		t.Errorf("Name = %q", g.Name())
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Inputs != "the prompt" {
			t.Errorf("inputs = %q", req.Inputs)
		}
		if req.Parameters.ReturnFullText {
			t.Error("return_full_text should be false")
		}
		w.Write([]byte(`[{"generated_text": "the answer"}]`))
	}))
	defer srv.Close()

	g := NewGeneration("k", "some/model", WithGenerationBaseURL(srv.URL))
	out, err := g.Generate(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "the answer" {
		t.Errorf("got %q", out)
	}
}
