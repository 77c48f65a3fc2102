// Package sqlite implements copilot.VectorStore using pure-Go SQLite with
// in-process brute-force cosine similarity search. Zero CGO required.
//
// The store is write-through: every Add and AddMany commits to the database
// file, so Save is a no-op. There is no capacity bound; durability and
// SQLite's own scalability replace eviction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/finsight/copilot"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a SQLite Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts.
// If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements copilot.VectorStore backed by a local SQLite file.
// Embeddings are stored as JSON text and similarity search is done
// in-process.
type Store struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger
}

var _ copilot.VectorStore = (*Store)(nil)

// New creates a Store for vectors of the given dimension using a local
// SQLite file at dbPath. It opens a single shared connection pool with
// SetMaxOpenConns(1) so that all goroutines serialize through one
// connection, eliminating SQLITE_BUSY errors from concurrent writers.
func New(dbPath string, dims int, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, dims: dims, logger: copilot.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath, "dimensions", dims)
	return s
}

// Init creates the entries table. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		embedding TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return &copilot.ErrStore{Op: "init", Message: "create table", Cause: err}
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at)`)
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Add stores one entry. The write commits immediately.
func (s *Store) Add(ctx context.Context, embedding []float32, text string, meta *copilot.EntryMeta) (string, error) {
	if len(embedding) != s.dims {
		return "", &copilot.ErrStore{
			Op:      "add",
			Message: fmt.Sprintf("embedding dimension %d, store configured for %d", len(embedding), s.dims),
		}
	}

	id := copilot.NewID()
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return "", &copilot.ErrStore{Op: "add", Message: "encode metadata", Cause: err}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, text, embedding, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, text, serializeEmbedding(embedding), metaJSON, copilot.NowUnix())
	if err != nil {
		return "", &copilot.ErrStore{Op: "add", Message: "insert entry", Cause: err}
	}

	s.logger.Debug("sqlite: entry added", "id", id)
	return id, nil
}

// AddMany stores a batch in a single transaction: the whole batch lands or
// none of it does.
func (s *Store) AddMany(ctx context.Context, entries []copilot.Entry) ([]string, error) {
	start := time.Now()
	for i, e := range entries {
		if len(e.Embedding) != s.dims {
			return nil, &copilot.ErrStore{
				Op:      "add_many",
				Message: fmt.Sprintf("entry %d: embedding dimension %d, store configured for %d", i, len(e.Embedding), s.dims),
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &copilot.ErrStore{Op: "add_many", Message: "begin tx", Cause: err}
	}
	defer tx.Rollback() //nolint:errcheck

	now := copilot.NowUnix()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = copilot.NewID()
		metaJSON, err := marshalMeta(e.Meta)
		if err != nil {
			return nil, &copilot.ErrStore{Op: "add_many", Message: "encode metadata", Cause: err}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entries (id, text, embedding, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
			ids[i], e.Text, serializeEmbedding(e.Embedding), metaJSON, now)
		if err != nil {
			return nil, &copilot.ErrStore{Op: "add_many", Message: "insert entry", Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &copilot.ErrStore{Op: "add_many", Message: "commit tx", Cause: err}
	}

	s.logger.Debug("sqlite: batch added", "count", len(entries), "duration", time.Since(start))
	return ids, nil
}

// Search performs brute-force cosine similarity over all entries. Rows whose
// stored embedding fails to decode or has the wrong length are skipped, not
// fatal.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]copilot.SearchResult, error) {
	if len(embedding) != s.dims {
		return nil, &copilot.ErrStore{
			Op:      "search",
			Message: fmt.Sprintf("query dimension %d, store configured for %d", len(embedding), s.dims),
		}
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT text, embedding, metadata FROM entries`)
	if err != nil {
		return nil, &copilot.ErrStore{Op: "search", Message: "query entries", Cause: err}
	}
	defer rows.Close()

	var results []copilot.SearchResult
	scanned := 0
	for rows.Next() {
		var text, embJSON string
		var metaJSON sql.NullString
		if err := rows.Scan(&text, &embJSON, &metaJSON); err != nil {
			return nil, &copilot.ErrStore{Op: "search", Message: "scan entry", Cause: err}
		}
		scanned++
		stored, err := deserializeEmbedding(embJSON)
		if err != nil || len(stored) != s.dims {
			continue
		}
		var meta *copilot.EntryMeta
		if metaJSON.Valid {
			meta = &copilot.EntryMeta{}
			_ = json.Unmarshal([]byte(metaJSON.String), meta)
		}
		results = append(results, copilot.SearchResult{
			Text:  text,
			Meta:  meta,
			Score: cosineSimilarity(embedding, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &copilot.ErrStore{Op: "search", Message: "iterate entries", Cause: err}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug("sqlite: search completed", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, &copilot.ErrStore{Op: "count", Message: "count entries", Cause: err}
	}
	return n, nil
}

// Clear removes all entries and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, &copilot.ErrStore{Op: "clear", Message: "delete entries", Cause: err}
	}
	n, _ := res.RowsAffected()
	s.logger.Info("sqlite: cleared", "removed", n)
	return int(n), nil
}

// Save is a no-op: every write commits to the database file immediately.
func (s *Store) Save(_ context.Context) error { return nil }

// Stats describes the store.
func (s *Store) Stats(ctx context.Context) (copilot.StoreStats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return copilot.StoreStats{}, err
	}
	return copilot.StoreStats{Backend: "sqlite", Entries: n, Dimensions: s.dims}, nil
}

func marshalMeta(meta *copilot.EntryMeta) (*string, error) {
	if meta == nil {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	v := string(data)
	return &v, nil
}

// --- Vector math ---

// cosineSimilarity computes the cosine similarity between two vectors.
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

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
