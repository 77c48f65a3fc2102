// Package postgres implements copilot.VectorStore using PostgreSQL with
// pgvector for native vector similarity search.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsight/copilot"
)

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Higher values improve index quality at the cost of
// slower builds. Default: pgvector's 64.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// Store implements copilot.VectorStore backed by PostgreSQL with pgvector.
// Similarity search runs server-side with cosine distance, so the store
// scales past what brute-force in-process search can handle.
type Store struct {
	pool *pgxpool.Pool
	dims int
	cfg  pgConfig
}

var _ copilot.VectorStore = (*Store)(nil)

// New creates a Store for vectors of the given dimension using an existing
// pgxpool.Pool. The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, dims int, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, dims: dims, cfg: cfg}
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, the entries table, and the HNSW
// index. Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at BIGINT NOT NULL
		)`, s.dims),

		`CREATE INDEX IF NOT EXISTS idx_entries_embedding
		 ON entries USING hnsw (embedding vector_cosine_ops)` + s.hnswWithClause(),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &copilot.ErrStore{Op: "init", Message: "exec schema statement", Cause: err}
		}
	}
	return nil
}

// Close is a no-op: the pool is owned by the caller.
func (s *Store) Close() error { return nil }

// Add stores one entry.
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO entries (id, text, embedding, metadata, created_at)
		 VALUES ($1, $2, $3::vector, $4::jsonb, $5)`,
		id, text, serializeEmbedding(embedding), metaJSON, copilot.NowUnix())
	if err != nil {
		return "", &copilot.ErrStore{Op: "add", Message: "insert entry", Cause: err}
	}
	return id, nil
}

// AddMany stores a batch in a single transaction.
func (s *Store) AddMany(ctx context.Context, entries []copilot.Entry) ([]string, error) {
	for i, e := range entries {
		if len(e.Embedding) != s.dims {
			return nil, &copilot.ErrStore{
				Op:      "add_many",
				Message: fmt.Sprintf("entry %d: embedding dimension %d, store configured for %d", i, len(e.Embedding), s.dims),
			}
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &copilot.ErrStore{Op: "add_many", Message: "begin tx", Cause: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := copilot.NowUnix()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = copilot.NewID()
		metaJSON, err := marshalMeta(e.Meta)
		if err != nil {
			return nil, &copilot.ErrStore{Op: "add_many", Message: "encode metadata", Cause: err}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO entries (id, text, embedding, metadata, created_at)
			 VALUES ($1, $2, $3::vector, $4::jsonb, $5)`,
			ids[i], e.Text, serializeEmbedding(e.Embedding), metaJSON, now)
		if err != nil {
			return nil, &copilot.ErrStore{Op: "add_many", Message: "insert entry", Cause: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &copilot.ErrStore{Op: "add_many", Message: "commit tx", Cause: err}
	}
	return ids, nil
}

// Search runs server-side cosine similarity via pgvector's <=> operator.
// Score is 1 - cosine distance, matching the in-process stores.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]copilot.SearchResult, error) {
	if len(embedding) != s.dims {
		return nil, &copilot.ErrStore{
			Op:      "search",
			Message: fmt.Sprintf("query dimension %d, store configured for %d", len(embedding), s.dims),
		}
	}

	embStr := serializeEmbedding(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT text, metadata,
		        1 - (embedding <=> $1::vector) AS score
		 FROM entries
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`,
		embStr, topK)
	if err != nil {
		return nil, &copilot.ErrStore{Op: "search", Message: "query entries", Cause: err}
	}
	defer rows.Close()

	var results []copilot.SearchResult
	for rows.Next() {
		var text string
		var metaJSON *string
		var score float32
		if err := rows.Scan(&text, &metaJSON, &score); err != nil {
			return nil, &copilot.ErrStore{Op: "search", Message: "scan entry", Cause: err}
		}
		var meta *copilot.EntryMeta
		if metaJSON != nil {
			meta = &copilot.EntryMeta{}
			_ = json.Unmarshal([]byte(*metaJSON), meta)
		}
		results = append(results, copilot.SearchResult{Text: text, Meta: meta, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, &copilot.ErrStore{Op: "search", Message: "iterate entries", Cause: err}
	}
	return results, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, &copilot.ErrStore{Op: "count", Message: "count entries", Cause: err}
	}
	return n, nil
}

// Clear removes all entries and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, &copilot.ErrStore{Op: "clear", Message: "delete entries", Cause: err}
	}
	return int(tag.RowsAffected()), nil
}

// Save is a no-op: every write commits immediately.
func (s *Store) Save(_ context.Context) error { return nil }

// Stats describes the store.
func (s *Store) Stats(ctx context.Context) (copilot.StoreStats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return copilot.StoreStats{}, err
	}
	return copilot.StoreStats{Backend: "postgres", Entries: n, Dimensions: s.dims}, nil
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

// serializeEmbedding converts []float32 to pgvector's text format: [1,2,3].
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
