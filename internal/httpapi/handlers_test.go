package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/finsight/copilot"
	"github.com/finsight/copilot/store/memory"
)

type fixedEmbedding struct{ dims int }

func (e fixedEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dims)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (e fixedEmbedding) Dimensions() int { return e.dims }
func (e fixedEmbedding) Name() string    { return "fixed" }

type fixedGen struct {
	text  string
	model string
	err   error
}

func (g fixedGen) Generate(_ context.Context, _ string) (string, string, error) {
	return g.text, g.model, g.err
}

func testServer(t *testing.T, gen copilot.Generator) *Server {
	t.Helper()
	store := memory.New(4)
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	p := copilot.NewPipeline(store, fixedEmbedding{dims: 4}, gen)
	return NewServer(p)
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUploadAndAsk(t *testing.T) {
	srv := testServer(t, fixedGen{text: "Costs fell 5%.", model: "test-model"})
	router := srv.Router()

	body, contentType := multipartBody(t, "file", "report.txt",
		"Operating costs fell five percent in the second quarter.")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	var stats copilot.IngestStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Source != "report.txt" || stats.ChunkCount != 1 {
		t.Errorf("stats = %+v", stats)
	}

	askBody := strings.NewReader(`{"question": "what happened to costs?"}`)
	req = httptest.NewRequest(http.MethodPost, "/ask", askBody)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body %s", rec.Code, rec.Body)
	}
	var ans copilot.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Costs fell 5%." || ans.Model != "test-model" {
		t.Errorf("answer = %+v", ans)
	}
	if len(ans.Chunks) != 1 {
		t.Errorf("chunks = %v", ans.Chunks)
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	srv := testServer(t, fixedGen{})
	body, contentType := multipartBody(t, "file", "binary.exe", "MZ...")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	srv := testServer(t, fixedGen{})
	body, contentType := multipartBody(t, "wrong", "a.txt", "text")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	srv := testServer(t, fixedGen{})
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question": "  "}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == "" {
		t.Error("empty error message")
	}
}

func TestAskBadJSON(t *testing.T) {
	srv := testServer(t, fixedGen{})
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAskNoContextSentinel(t *testing.T) {
	srv := testServer(t, fixedGen{text: "unused", model: "x"})
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question": "anything?"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ans copilot.Answer
	json.Unmarshal(rec.Body.Bytes(), &ans)
	if ans.Model != copilot.ModelNone {
		t.Errorf("Model = %q, want %q", ans.Model, copilot.ModelNone)
	}
	if ans.Answer != copilot.NoContextAnswer {
		t.Errorf("Answer = %q", ans.Answer)
	}
}

func TestFallbackHookFires(t *testing.T) {
	store := memory.New(4)
	store.Init(context.Background())
	p := copilot.NewPipeline(store, fixedEmbedding{dims: 4}, fixedGen{})

	var hookModel string
	srv := NewServer(p, WithFallbackHook(func(_ context.Context, model string) {
		hookModel = model
	}))

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question": "q?"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if hookModel != copilot.ModelNone {
		t.Errorf("hook model = %q, want %q", hookModel, copilot.ModelNone)
	}
}

func TestStatsAndClear(t *testing.T) {
	srv := testServer(t, fixedGen{})
	router := srv.Router()

	body, contentType := multipartBody(t, "file", "doc.txt", "Some indexed text about bonds.")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats copilot.StoreStats
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.Backend != "memory" || stats.Entries != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/documents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	var cr clearResponse
	json.Unmarshal(rec.Body.Bytes(), &cr)
	if cr.Removed != 1 || cr.Status != "cleared" {
		t.Errorf("clear = %+v", cr)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.Entries != 0 {
		t.Errorf("entries after clear = %d", stats.Entries)
	}
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, fixedGen{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %s", rec.Body)
	}
}
