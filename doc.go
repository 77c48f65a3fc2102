// Package copilot is a retrieval-augmented generation (RAG) core for
// answering questions over ingested documents.
//
// It provides modular, interface-driven building blocks: text extraction and
// chunking, embedding providers, vector stores with similarity search, and
// text generation with an ordered multi-provider fallback chain.
//
// # Quick Start
//
// Wire a pipeline from a store, an embedding provider, and a generator:
//
//	embedding := hf.NewEmbedding(hfKey, "sentence-transformers/all-MiniLM-L6-v2", 384)
//	store := memory.New(384, memory.WithMaxEntries(10000))
//	gen := copilot.NewFallbackGenerator([]copilot.Candidate{
//		{Provider: groq.New(groqKey, "llama-3.1-8b-instant"), Timeout: 45 * time.Second},
//		{Provider: groq.New(groqKey, "mixtral-8x7b-32768"), Timeout: 45 * time.Second},
//	})
//
//	rag := copilot.NewPipeline(store, embedding, gen)
//	_, err := rag.Ingest(ctx, "report.pdf", nil)
//	answer, err := rag.Ask(ctx, "What was the quarterly revenue?")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [VectorStore] — (embedding, text, metadata) persistence with
//     nearest-neighbor search
//   - [GenerationProvider] — prompt-to-text generation
//
// # Included Implementations
//
// Embedding: provider/hf (Hugging Face Inference API).
// Generation: provider/groq (any OpenAI-compatible chat API), provider/hf.
// Storage: store/memory (bounded, snapshot-persisted), store/sqlite
// (durable local file), store/postgres (pgvector).
//
// See cmd/copilot for the complete HTTP service.
package copilot
