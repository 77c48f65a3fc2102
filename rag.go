package copilot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/finsight/copilot/ingest"
)

// Sentinel values in Answer.Model and Answer.Answer.
const (
	// ModelNone marks an answer produced without any generation call
	// because nothing relevant was retrieved.
	ModelNone = "none"
	// ModelFallbackContext marks an answer assembled from the raw
	// retrieved context after every generation candidate failed.
	ModelFallbackContext = "fallback-context"

	// NoContextAnswer is returned verbatim when the store has nothing
	// relevant to the question.
	NoContextAnswer = "No relevant information was found in the indexed documents."

	fallbackAnswerPrefix = "Based on the indexed documents, here is relevant information:\n\n"
)

const promptTemplate = `You are a financial AI assistant.

Use ONLY the following context to answer:

%s

Question: %s

If the answer is not in the context, say:
"I don't have enough information in the provided documents."`

// Generator produces text for a prompt and reports which model produced it.
// FallbackGenerator is the standard implementation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text, model string, err error)
}

// Chunker splits extracted text into embeddable segments.
// ingest.RecursiveChunker is the standard implementation.
type Chunker interface {
	Chunk(text string) []string
}

// Pipeline composes chunking, embedding, vector storage, and generation into
// the two RAG operations: Ingest and Ask. All collaborators are injected at
// construction; the pipeline holds no other mutable state and is safe for
// concurrent use as long as its store is.
type Pipeline struct {
	store     VectorStore
	embedding EmbeddingProvider
	gen       Generator
	chunker   Chunker
	topK      int
	logger    *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTopK sets how many chunks are retrieved per question (default: 3).
func WithTopK(k int) PipelineOption {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithChunker replaces the default chunker (1000-char windows, 200-char
// overlap).
func WithChunker(c Chunker) PipelineOption {
	return func(p *Pipeline) { p.chunker = c }
}

// WithPipelineLogger sets the structured logger for ingest and ask events.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a Pipeline over the given store, embedding provider,
// and generator.
func NewPipeline(store VectorStore, emb EmbeddingProvider, gen Generator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:     store,
		embedding: emb,
		gen:       gen,
		chunker:   ingest.NewRecursiveChunker(),
		topK:      3,
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ingest reads the document at path, extracts its text, chunks it, embeds
// every chunk, and stores the result with positional metadata. Extraction,
// embedding, or store failure aborts the whole document; the store is left
// without a partial copy on transactional backends.
func (p *Pipeline) Ingest(ctx context.Context, path string, extra map[string]string) (IngestStats, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return IngestStats{}, &ErrExtraction{Source: path, Message: "read file", Cause: err}
	}
	return p.ingestBytes(ctx, content, filepath.Base(path), extra)
}

// IngestReader ingests document content from r, detecting the format from
// filename. Intended for upload handlers that stream request bodies.
func (p *Pipeline) IngestReader(ctx context.Context, r io.Reader, filename string, extra map[string]string) (IngestStats, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return IngestStats{}, &ErrExtraction{Source: filename, Message: "read content", Cause: err}
	}
	return p.ingestBytes(ctx, content, filepath.Base(filename), extra)
}

func (p *Pipeline) ingestBytes(ctx context.Context, content []byte, source string, extra map[string]string) (IngestStats, error) {
	text, err := ingest.ExtractFile(content, source)
	if err != nil {
		return IngestStats{}, &ErrExtraction{Source: source, Message: "extract text", Cause: err}
	}

	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		// Empty or whitespace-only document: a successful no-op ingest.
		p.logger.Info("ingest produced no chunks", "source", source)
		return IngestStats{Source: source, ChunkCount: 0}, nil
	}

	embeddings, err := p.embedding.Embed(ctx, chunks)
	if err != nil {
		return IngestStats{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return IngestStats{}, &ErrEmbedding{
			Provider: p.embedding.Name(),
			Message:  fmt.Sprintf("got %d embeddings for %d chunks", len(embeddings), len(chunks)),
		}
	}

	now := NowUnix()
	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = Entry{
			Embedding: embeddings[i],
			Text:      c,
			Meta: &EntryMeta{
				Source:      source,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				IngestedAt:  now,
				Extra:       extra,
			},
		}
	}

	if _, err := p.store.AddMany(ctx, entries); err != nil {
		return IngestStats{}, fmt.Errorf("store chunks: %w", err)
	}
	if err := p.store.Save(ctx); err != nil {
		return IngestStats{}, fmt.Errorf("persist store: %w", err)
	}

	p.logger.Info("document ingested", "source", source, "chunks", len(chunks))
	return IngestStats{Source: source, ChunkCount: len(chunks)}, nil
}

// Ask answers a question from the indexed documents. The returned Answer
// always has the full {Answer, Model, Chunks, Context} shape:
//
//   - nothing retrieved → the NoContextAnswer sentinel, Model "none";
//   - generation exhausted → the raw retrieved context as the answer,
//     Model "fallback-context";
//   - otherwise the generated text and the winning candidate's model name.
//
// An empty or whitespace-only question fails with *ErrValidation before any
// backend call. A query-embedding failure propagates: with no retrieval
// there is nothing to degrade to.
func (p *Pipeline) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, &ErrValidation{Message: "question must not be empty"}
	}

	embs, err := p.embedding.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}
	if len(embs) == 0 {
		return Answer{}, &ErrEmbedding{Provider: p.embedding.Name(), Message: "no embedding returned"}
	}

	results, err := p.store.Search(ctx, embs[0], p.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		p.logger.Info("no relevant chunks found", "question_len", len(question))
		return Answer{
			Answer:  NoContextAnswer,
			Model:   ModelNone,
			Chunks:  []string{},
			Context: "",
		}, nil
	}

	chunks := make([]string, len(results))
	for i, r := range results {
		chunks[i] = r.Text
	}
	contextBlock := strings.Join(chunks, "\n\n")

	prompt := fmt.Sprintf(promptTemplate, contextBlock, question)

	text, model, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		var exhausted *ErrExhausted
		if !errors.As(err, &exhausted) {
			return Answer{}, fmt.Errorf("generate: %w", err)
		}
		// Retrieval succeeded even though generation did not; the raw
		// context is strictly more useful to the caller than an error.
		p.logger.Warn("generation exhausted, returning raw context", "error", err)
		return Answer{
			Answer:  fallbackAnswerPrefix + contextBlock,
			Model:   ModelFallbackContext,
			Chunks:  chunks,
			Context: contextBlock,
		}, nil
	}

	return Answer{
		Answer:  text,
		Model:   model,
		Chunks:  chunks,
		Context: contextBlock,
	}, nil
}

// Stats reports the underlying store's state for diagnostics endpoints.
func (p *Pipeline) Stats(ctx context.Context) (StoreStats, error) {
	return p.store.Stats(ctx)
}

// Clear removes every indexed entry and returns the removed count.
func (p *Pipeline) Clear(ctx context.Context) (int, error) {
	n, err := p.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	if err := p.store.Save(ctx); err != nil {
		return n, err
	}
	return n, nil
}
