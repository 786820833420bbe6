// Package storage defines the persistence interface for a collection's documents, chunks, and metadata.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a document, chunk, or metadata key does not exist.
var ErrNotFound = errors.New("not found")

// Metadata keys written when a collection is created.
const (
	MetaCollectionName = "collection_name"
	MetaCollectionID   = "collection_id"
	MetaEmbeddingModel = "embedding_model"
	MetaDimensions     = "dimensions"
	MetaCreatedAt      = "created_at"
	MetaChunkSize      = "chunk_size"
	MetaChunkOverlap   = "chunk_overlap"
)

// Storage defines document, chunk and metadata persistence operations.
type Storage interface {
	// Document operations
	CreateDocuments(ctx context.Context, docs []*models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations
	BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunks(ctx context.Context, ids []string) (map[string]*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)

	// Collection metadata
	SetMeta(ctx context.Context, values map[string]string) error
	GetMeta(ctx context.Context, key string) (string, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
