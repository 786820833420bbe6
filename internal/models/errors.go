package models

import (
	"errors"
	"fmt"
)

// Error kinds. Components wrap the underlying cause so callers can test with errors.Is
// and still read the full chain in logs.
var (
	// ErrIngest means a source document could not be read or parsed.
	ErrIngest = errors.New("ingest error")
	// ErrSplit means invalid chunking configuration or empty input text.
	ErrSplit = errors.New("split error")
	// ErrEmbeddingService means the embedding call itself failed.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrStore means the persisted collection is missing, unreadable, or corrupt.
	ErrStore = errors.New("store error")
	// ErrRetrieval means every query variant search failed.
	ErrRetrieval = errors.New("retrieval error")
	// ErrGenerationService means the generative model call failed.
	ErrGenerationService = errors.New("generation service error")
	// ErrInvalidRequest means the caller's input was rejected before any work was done.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound means a requested document is not in the collection.
	ErrNotFound = errors.New("not found")
)

// ErrNoCollection is an ErrStore: nothing has been ingested yet.
var ErrNoCollection = fmt.Errorf("%w: no collection exists; ingest a document first", ErrStore)

// ErrorKind names the kind of err, or "internal" when it carries none of the known kinds.
// A retrieval error is reported as such even though it wraps the per-variant causes.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRetrieval):
		return "retrieval"
	case errors.Is(err, ErrIngest):
		return "ingest"
	case errors.Is(err, ErrSplit):
		return "split"
	case errors.Is(err, ErrEmbeddingService):
		return "embedding_service"
	case errors.Is(err, ErrStore):
		return "store"
	case errors.Is(err, ErrGenerationService):
		return "generation_service"
	default:
		return "internal"
	}
}
