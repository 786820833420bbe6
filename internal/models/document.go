// Package models defines core data structures for documents, chunks, questions, and answers.
package models

import "time"

// Document is a loaded source document. It is not mutated after loading.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	SourcePath string                 `json:"source_path" db:"source_path"`
	Title      string                 `json:"title" db:"title"`
	RawText    string                 `json:"-" db:"raw_text"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// Chunk is a bounded, overlapping segment of a document's text.
// StartOffset and EndOffset count characters (runes) into Document.RawText.
type Chunk struct {
	ID            string `json:"id" db:"id"`
	DocumentID    string `json:"document_id" db:"document_id"`
	Text          string `json:"text" db:"text"`
	StartOffset   int    `json:"start_offset" db:"start_offset"`
	EndOffset     int    `json:"end_offset" db:"end_offset"`
	SequenceIndex int    `json:"sequence_index" db:"sequence_index"`
}

// Len returns the chunk length in characters.
func (c *Chunk) Len() int {
	return c.EndOffset - c.StartOffset
}

// EmbeddingVector is the embedding of one chunk.
type EmbeddingVector struct {
	ChunkID   string    `json:"chunk_id"`
	Values    []float32 `json:"values"`
	Dimension int       `json:"dimension"`
}
