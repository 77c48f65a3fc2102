package copilot

import "context"

// VectorStore abstracts persistence of (embedding, text, metadata) entries
// with nearest-neighbor search. All stored embeddings and all query
// embeddings must match the store's configured dimension; writes with a
// mismatched vector fail with *ErrStore.
//
// Implementations must be safe for concurrent use. A reader never observes
// a partially-written entry; no atomicity is promised across a whole
// AddMany batch from a concurrent reader's perspective unless the backing
// store is transactional.
type VectorStore interface {
	// Add stores one entry and returns its id.
	Add(ctx context.Context, embedding []float32, text string, meta *EntryMeta) (string, error)

	// AddMany stores a batch of pre-embedded entries. Transactional
	// backends apply the batch all-or-nothing; others report the first
	// failure after storing what preceded it.
	AddMany(ctx context.Context, entries []Entry) ([]string, error)

	// Search returns up to topK entries ranked by cosine similarity,
	// highest first. An empty store yields an empty slice, never an error.
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Clear removes all entries and returns how many were removed.
	Clear(ctx context.Context) (int, error)

	// Save flushes buffered state to durable storage. Write-through
	// stores document it as a no-op.
	Save(ctx context.Context) error

	// Stats describes the store for diagnostics.
	Stats(ctx context.Context) (StoreStats, error)

	// Lifecycle.
	Init(ctx context.Context) error
	Close() error
}
