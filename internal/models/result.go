package models

// RetrievedChunk is a chunk returned by retrieval, deduplicated across query variants.
type RetrievedChunk struct {
	ChunkID            string  `json:"chunk_id"`
	DocumentID         string  `json:"document_id"`
	Text               string  `json:"text"`
	OriginatingVariant string  `json:"originating_variant"`
	SequenceIndex      int     `json:"sequence_index"`
	Score              float64 `json:"score"`
	Rank               int     `json:"rank"`
}

// Answer is the synthesized response to one question. It is not persisted.
type Answer struct {
	Question      string            `json:"question"`
	Text          string            `json:"answer"`
	ContextChunks []*RetrievedChunk `json:"context_chunks"`
	Variants      []string          `json:"variants,omitempty"`
	QueryTime     int64             `json:"query_time_ms"`
}

// IngestResult reports what an ingest call did.
type IngestResult struct {
	Created   bool `json:"created"`
	Documents int  `json:"documents"`
	Chunks    int  `json:"chunks"`
	// Ignored is set when a collection already existed and the supplied documents were not added.
	Ignored bool     `json:"ignored"`
	Sources []string `json:"sources"`
}

// CollectionStats summarizes a persisted collection.
type CollectionStats struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	Exists         bool   `json:"exists"`
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	Vectors        int    `json:"vectors"`
	Dimension      int    `json:"dimension"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}

// DocumentDetail is one stored document with its chunks in sequence order.
type DocumentDetail struct {
	Document *Document `json:"document"`
	Chunks   []*Chunk  `json:"chunks"`
}
