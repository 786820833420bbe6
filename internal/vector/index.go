// Package vector provides the nearest-neighbor index behind a collection.
package vector

import (
	"context"
	"errors"
)

// ErrCorrupt is returned by Load when the index file is truncated or malformed.
var ErrCorrupt = errors.New("vector index file is corrupt")

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit. ID is a chunk ID.
type VectorResult struct {
	ID       string
	Score    float64 // inner product; cosine similarity for normalized vectors
	Position int     // insertion order, used to break score ties
}
