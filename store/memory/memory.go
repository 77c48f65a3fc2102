// Package memory implements copilot.VectorStore with a bounded in-process
// index and brute-force cosine similarity search.
//
// The store is capacity-limited: once the configured maximum is reached,
// inserting evicts a batch of the oldest entries first. Eviction is lossy
// and logged at WARN — this is the deliberate trade-off for
// memory-constrained deployments; use store/sqlite or store/postgres when
// entries must never be dropped.
//
// Persistence is snapshot-based: nothing is written until Save, which dumps
// the whole index to the configured path; Init reloads it.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/finsight/copilot"
)

// Option configures a memory Store.
type Option func(*Store)

// WithMaxEntries caps the number of stored entries (default: 10000).
func WithMaxEntries(m int) Option {
	return func(s *Store) {
		if m > 0 {
			s.maxEntries = m
		}
	}
}

// WithEvictBatch sets how many of the oldest entries one eviction removes
// (default: maxEntries/5, at least 1). Evicting in batches keeps insert cost
// amortized instead of shifting the slice on every write at the bound.
func WithEvictBatch(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.evictBatch = n
		}
	}
}

// WithPath sets the snapshot file used by Save and Init. Without a path the
// store is purely in-memory and Save is a no-op.
func WithPath(path string) Option {
	return func(s *Store) { s.path = path }
}

// WithLogger sets a structured logger. Evictions log at WARN; every other
// operation logs at DEBUG. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

type record struct {
	ID        string             `json:"id"`
	Embedding []float32          `json:"embedding"`
	Text      string             `json:"text"`
	Meta      *copilot.EntryMeta `json:"meta,omitempty"`
}

type snapshot struct {
	Dimensions int      `json:"dimensions"`
	Records    []record `json:"records"`
}

// Store is a bounded in-memory vector store.
type Store struct {
	dims       int
	maxEntries int
	evictBatch int
	path       string
	logger     *slog.Logger

	mu      sync.RWMutex
	records []record // append-only between evictions; index 0 is oldest
}

var _ copilot.VectorStore = (*Store)(nil)

// New creates a memory Store for vectors of the given dimension.
func New(dims int, opts ...Option) *Store {
	s := &Store{
		dims:       dims,
		maxEntries: 10000,
		logger:     copilot.NopLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.evictBatch == 0 {
		s.evictBatch = s.maxEntries / 5
		if s.evictBatch == 0 {
			s.evictBatch = 1
		}
	}
	return s
}

// Init loads the snapshot file when one is configured and present. A missing
// file is a fresh store, not an error.
func (s *Store) Init(_ context.Context) error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &copilot.ErrStore{Op: "init", Message: "read snapshot", Cause: err}
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return &copilot.ErrStore{Op: "init", Message: "decode snapshot", Cause: err}
	}
	if snap.Dimensions != s.dims {
		return &copilot.ErrStore{
			Op:      "init",
			Message: fmt.Sprintf("snapshot dimension %d, store configured for %d", snap.Dimensions, s.dims),
		}
	}

	s.mu.Lock()
	s.records = snap.Records
	s.mu.Unlock()

	s.logger.Info("memory: snapshot loaded", "path", s.path, "entries", len(snap.Records))
	return nil
}

// Close releases nothing; the snapshot is only written by Save.
func (s *Store) Close() error { return nil }

// Add stores one entry, evicting the oldest batch first when the store is at
// capacity.
func (s *Store) Add(_ context.Context, embedding []float32, text string, meta *copilot.EntryMeta) (string, error) {
	if len(embedding) != s.dims {
		return "", &copilot.ErrStore{
			Op:      "add",
			Message: fmt.Sprintf("embedding dimension %d, store configured for %d", len(embedding), s.dims),
		}
	}

	rec := record{ID: copilot.NewID(), Embedding: embedding, Text: text, Meta: meta}

	s.mu.Lock()
	s.evictLocked(1)
	s.records = append(s.records, rec)
	n := len(s.records)
	s.mu.Unlock()

	s.logger.Debug("memory: entry added", "id", rec.ID, "entries", n)
	return rec.ID, nil
}

// AddMany stores a batch under one lock: every embedding is validated before
// anything is appended, so a dimension mismatch anywhere rejects the whole
// batch.
func (s *Store) AddMany(_ context.Context, entries []copilot.Entry) ([]string, error) {
	for i, e := range entries {
		if len(e.Embedding) != s.dims {
			return nil, &copilot.ErrStore{
				Op:      "add_many",
				Message: fmt.Sprintf("entry %d: embedding dimension %d, store configured for %d", i, len(e.Embedding), s.dims),
			}
		}
	}

	ids := make([]string, len(entries))
	recs := make([]record, len(entries))
	for i, e := range entries {
		ids[i] = copilot.NewID()
		recs[i] = record{ID: ids[i], Embedding: e.Embedding, Text: e.Text, Meta: e.Meta}
	}

	s.mu.Lock()
	s.evictLocked(len(recs))
	s.records = append(s.records, recs...)
	n := len(s.records)
	s.mu.Unlock()

	s.logger.Debug("memory: batch added", "count", len(recs), "entries", n)
	return ids, nil
}

// evictLocked makes room for incoming new entries. Removes the oldest
// entries in evictBatch-sized steps until count+incoming fits the bound.
// Caller holds s.mu.
func (s *Store) evictLocked(incoming int) {
	if len(s.records)+incoming <= s.maxEntries {
		return
	}
	drop := len(s.records) + incoming - s.maxEntries
	if drop < s.evictBatch {
		drop = s.evictBatch
	}
	if drop > len(s.records) {
		drop = len(s.records)
	}
	s.records = append(s.records[:0], s.records[drop:]...)
	s.logger.Warn("memory: capacity reached, evicted oldest entries",
		"evicted", drop, "max_entries", s.maxEntries, "remaining", len(s.records))
}

// Search returns up to topK entries ranked by cosine similarity, highest
// first. An empty store yields an empty result, never an error.
func (s *Store) Search(_ context.Context, embedding []float32, topK int) ([]copilot.SearchResult, error) {
	if len(embedding) != s.dims {
		return nil, &copilot.ErrStore{
			Op:      "search",
			Message: fmt.Sprintf("query dimension %d, store configured for %d", len(embedding), s.dims),
		}
	}

	s.mu.RLock()
	results := make([]copilot.SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		if len(rec.Embedding) != s.dims {
			// Defensively skip anything a bad snapshot smuggled in.
			continue
		}
		results = append(results, copilot.SearchResult{
			Text:  rec.Text,
			Meta:  rec.Meta,
			Score: cosineSimilarity(embedding, rec.Embedding),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear removes all entries and returns how many were removed. The snapshot
// file is rewritten on the next Save.
func (s *Store) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	n := len(s.records)
	s.records = nil
	s.mu.Unlock()
	s.logger.Info("memory: cleared", "removed", n)
	return n, nil
}

// Save writes the snapshot atomically (temp file + rename). A store without
// a configured path skips persistence.
func (s *Store) Save(_ context.Context) error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	snap := snapshot{Dimensions: s.dims, Records: s.records}
	data, err := json.Marshal(snap)
	s.mu.RUnlock()
	if err != nil {
		return &copilot.ErrStore{Op: "save", Message: "encode snapshot", Cause: err}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &copilot.ErrStore{Op: "save", Message: "write snapshot", Cause: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &copilot.ErrStore{Op: "save", Message: "replace snapshot", Cause: err}
	}

	s.logger.Debug("memory: snapshot saved", "path", s.path, "entries", len(snap.Records))
	return nil
}

// Stats describes the store.
func (s *Store) Stats(_ context.Context) (copilot.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copilot.StoreStats{Backend: "memory", Entries: len(s.records), Dimensions: s.dims}, nil
}

// cosineSimilarity computes the cosine similarity between two vectors of
// equal length.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
