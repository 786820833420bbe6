// Package collection persists chunk embeddings as a named collection and answers similarity queries.
//
// A collection lives in one directory holding a SQLite database (documents, chunks, metadata) and a
// binary vector file. It is built in a sibling staging directory and published with a single
// rename, so readers see either no collection or a complete one.
package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

const (
	dbFile      = "collection.db"
	vectorsFile = "vectors.bin"
)

// Collection is an opened, read-only persisted collection. Search is safe for concurrent use.
type Collection struct {
	name      string
	path      string
	id        string
	model     string
	createdAt time.Time
	dirInfo   os.FileInfo
	store     storage.Storage
	index     vector.VectorIndex
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Path returns the collection directory.
func (c *Collection) Path() string { return c.path }

// ID returns the identifier assigned when the collection was created.
func (c *Collection) ID() string { return c.id }

// Dimensions returns the vector dimension.
func (c *Collection) Dimensions() int { return c.index.Dimensions() }

// Size returns the number of stored vectors.
func (c *Collection) Size() int { return c.index.Size() }

// Close releases the database handle and the in-memory index.
func (c *Collection) Close() error {
	return errors.Join(c.store.Close(), c.index.Close())
}

// openCollection loads the collection at path. Any missing or inconsistent part is an ErrStore.
func openCollection(ctx context.Context, path string) (*Collection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat collection: %w", models.ErrStore, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: collection location %s is not a directory", models.ErrStore, path)
	}
	store, err := storage.OpenSQLiteStorage(filepath.Join(path, dbFile))
	if err != nil {
		return nil, fmt.Errorf("%w: open collection database: %w", models.ErrStore, err)
	}
	coll, err := loadCollection(ctx, path, info, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return coll, nil
}

func loadCollection(ctx context.Context, path string, info os.FileInfo, store storage.Storage) (*Collection, error) {
	meta := make(map[string]string)
	for _, key := range []string{storage.MetaCollectionName, storage.MetaCollectionID, storage.MetaDimensions,
		storage.MetaEmbeddingModel, storage.MetaCreatedAt} {
		v, err := store.GetMeta(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: read collection metadata: %w", models.ErrStore, err)
		}
		meta[key] = v
	}
	dims, err := strconv.Atoi(meta[storage.MetaDimensions])
	if err != nil || dims <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %q in collection metadata", models.ErrStore, meta[storage.MetaDimensions])
	}
	index, err := vector.NewMemoryIndex(dims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	if err := index.Load(filepath.Join(path, vectorsFile)); err != nil {
		return nil, fmt.Errorf("%w: load vectors: %w", models.ErrStore, err)
	}
	chunks, err := store.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count chunks: %w", models.ErrStore, err)
	}
	if int64(index.Size()) != chunks {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", models.ErrStore, index.Size(), chunks)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, meta[storage.MetaCreatedAt])
	return &Collection{
		name:      meta[storage.MetaCollectionName],
		path:      path,
		id:        meta[storage.MetaCollectionID],
		model:     meta[storage.MetaEmbeddingModel],
		createdAt: createdAt,
		dirInfo:   info,
		store:     store,
		index:     index,
	}, nil
}

// search returns the topK chunks most similar to the normalized query vector, by descending
// similarity. Equal scores are ordered by chunk sequence index, then by insertion order.
func (c *Collection) search(ctx context.Context, query []float32, topK int) ([]*models.RetrievedChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	hits, err := c.index.Search(ctx, query, c.index.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", models.ErrStore, err)
	}
	// Keep every hit tied with the k-th score so the tie-break below sees all candidates.
	cut := len(hits)
	if topK < cut {
		cut = topK
		for cut < len(hits) && hits[cut].Score == hits[topK-1].Score {
			cut++
		}
	}
	hits = hits[:cut]

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := c.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load chunks: %w", models.ErrStore, err)
	}

	type candidate struct {
		hit   *vector.VectorResult
		chunk *models.Chunk
	}
	cands := make([]candidate, 0, len(hits))
	for _, h := range hits {
		ch, ok := chunks[h.ID]
		if !ok {
			return nil, fmt.Errorf("%w: vector %s has no chunk", models.ErrStore, h.ID)
		}
		cands = append(cands, candidate{hit: h, chunk: ch})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.hit.Score != b.hit.Score {
			return a.hit.Score > b.hit.Score
		}
		if a.chunk.SequenceIndex != b.chunk.SequenceIndex {
			return a.chunk.SequenceIndex < b.chunk.SequenceIndex
		}
		return a.hit.Position < b.hit.Position
	})
	if len(cands) > topK {
		cands = cands[:topK]
	}

	out := make([]*models.RetrievedChunk, len(cands))
	for i, cand := range cands {
		out[i] = &models.RetrievedChunk{
			ChunkID:       cand.chunk.ID,
			DocumentID:    cand.chunk.DocumentID,
			Text:          cand.chunk.Text,
			SequenceIndex: cand.chunk.SequenceIndex,
			Score:         cand.hit.Score,
			Rank:          i + 1,
		}
	}
	return out, nil
}
