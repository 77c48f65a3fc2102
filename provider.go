package copilot

import "context"

// GenerationProvider abstracts one text-generation backend.
type GenerationProvider interface {
	// Generate sends a prompt and returns the generated text.
	Generate(ctx context.Context, prompt string) (string, error)
	// Name returns the candidate identifier reported in answers
	// (e.g. "llama-3.1-8b-instant").
	Name() string
}

// EmbeddingProvider abstracts text embedding.
type EmbeddingProvider interface {
	// Embed returns one embedding vector per input text. Every returned
	// vector has exactly Dimensions() entries; implementations fail with
	// *ErrEmbedding rather than return a wrong-dimension vector.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}
