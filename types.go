package copilot

// --- Domain types ---

// EntryMeta is the optional metadata attached to a stored entry.
type EntryMeta struct {
	Source      string            `json:"source,omitempty"`
	ChunkIndex  int               `json:"chunk_index"`
	TotalChunks int               `json:"total_chunks"`
	IngestedAt  int64             `json:"ingested_at"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Entry is one (embedding, text, metadata) tuple handed to a VectorStore.
type Entry struct {
	Embedding []float32  `json:"embedding"`
	Text      string     `json:"text"`
	Meta      *EntryMeta `json:"meta,omitempty"`
}

// SearchResult is a scored entry returned by VectorStore.Search.
// Score is cosine similarity in [-1, 1]; higher means more relevant.
type SearchResult struct {
	Text  string     `json:"text"`
	Meta  *EntryMeta `json:"meta,omitempty"`
	Score float32    `json:"score"`
}

// IngestStats summarizes one completed ingest.
type IngestStats struct {
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
}

// Answer is the result of one Ask call. The shape is fixed: Model identifies
// which generation candidate produced Answer, or a sentinel ("none" when
// nothing was retrieved, "fallback-context" when every candidate failed).
// Chunks holds the retrieved texts in rank order and Context is the same
// texts joined with blank lines, exactly as given to the model.
type Answer struct {
	Answer  string   `json:"answer"`
	Model   string   `json:"model"`
	Chunks  []string `json:"chunks"`
	Context string   `json:"context"`
}

// StoreStats describes the current state of a vector store.
type StoreStats struct {
	Backend    string `json:"backend"`
	Entries    int    `json:"entries"`
	Dimensions int    `json:"dimensions"`
}
