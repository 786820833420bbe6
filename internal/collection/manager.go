package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Manager owns the collection at one location: it creates it once, opens it, searches it and clears it.
type Manager struct {
	name         string
	path         string
	embedder     embedding.Embedder
	model        string
	chunkSize    int
	chunkOverlap int
	lock         *creationLock
	logger       *zap.Logger

	mu      sync.Mutex
	current *Collection
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a logger for lifecycle events (created, opened, cleared).
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithEmbeddingModel records the embedding model name in collection metadata.
func WithEmbeddingModel(model string) ManagerOption {
	return func(m *Manager) { m.model = model }
}

// WithChunking records the chunking parameters in collection metadata.
func WithChunking(size, overlap int) ManagerOption {
	return func(m *Manager) {
		m.chunkSize = size
		m.chunkOverlap = overlap
	}
}

// NewManager creates a manager for the collection called name stored in the directory path.
func NewManager(name, path string, embedder embedding.Embedder, opts ...ManagerOption) *Manager {
	m := &Manager{
		name:     name,
		path:     filepath.Clean(path),
		embedder: embedder,
		lock:     newCreationLock(filepath.Clean(path)),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the collection location.
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether a collection directory is present at the location.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// GetOrCreate returns the collection at the configured location. If one exists it is opened
// unchanged and docs and chunks are ignored (created is false). Otherwise every chunk is embedded
// and the collection is built and published atomically (created is true).
func (m *Manager) GetOrCreate(ctx context.Context, docs []*models.Document, chunks []*models.Chunk) (coll *Collection, created bool, err error) {
	if err := m.lock.acquire(ctx); err != nil {
		return nil, false, err
	}
	defer m.lock.release()

	if m.Exists() {
		coll, err := m.Open(ctx)
		if err != nil {
			return nil, false, err
		}
		if len(chunks) > 0 {
			m.logger.Warn("collection already exists; supplied documents were not added",
				zap.String("path", m.path),
				zap.Int("documents", len(docs)),
				zap.Int("chunks", len(chunks)))
		}
		return coll, false, nil
	}
	if len(chunks) == 0 {
		return nil, false, fmt.Errorf("%w: no existing collection at %s and no chunks to create one", models.ErrStore, m.path)
	}

	start := time.Now()
	if err := m.build(ctx, docs, chunks); err != nil {
		return nil, false, err
	}
	coll, err = m.Open(ctx)
	if err != nil {
		return nil, false, err
	}
	m.logger.Info("collection created",
		zap.String("name", m.name),
		zap.String("path", m.path),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("took", time.Since(start)))
	return coll, true, nil
}

// build embeds chunks and writes the collection into a staging directory, then renames it into place.
func (m *Manager) build(ctx context.Context, docs []*models.Document, chunks []*models.Chunk) error {
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
		ids[i] = ch.ID
	}
	vecs, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, models.ErrEmbeddingService) {
			return err
		}
		return fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingService, len(vecs), len(chunks))
	}
	dims := len(vecs[0])
	for _, v := range vecs {
		utils.NormalizeL2(v)
	}

	staging := filepath.Join(filepath.Dir(m.path), "."+filepath.Base(m.path)+".staging-"+uuid.NewString())
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	store, err := storage.NewSQLiteStorage(filepath.Join(staging, dbFile))
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	if err := m.writeStore(ctx, store, docs, chunks, dims); err != nil {
		_ = store.Close()
		return fmt.Errorf("%w: write collection database: %w", models.ErrStore, err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("%w: close collection database: %w", models.ErrStore, err)
	}

	index, err := vector.NewMemoryIndex(dims)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	if err := index.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("%w: index vectors: %w", models.ErrEmbeddingService, err)
	}
	if err := index.Save(filepath.Join(staging, vectorsFile)); err != nil {
		return fmt.Errorf("%w: save vectors: %w", models.ErrStore, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(staging, m.path); err != nil {
		return fmt.Errorf("%w: publish collection: %w", models.ErrStore, err)
	}
	committed = true
	return nil
}

func (m *Manager) writeStore(ctx context.Context, store storage.Storage, docs []*models.Document, chunks []*models.Chunk, dims int) error {
	if err := store.CreateDocuments(ctx, docs); err != nil {
		return err
	}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		return err
	}
	return store.SetMeta(ctx, map[string]string{
		storage.MetaCollectionName: m.name,
		storage.MetaCollectionID:   uuid.NewString(),
		storage.MetaEmbeddingModel: m.model,
		storage.MetaDimensions:     strconv.Itoa(dims),
		storage.MetaCreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		storage.MetaChunkSize:      strconv.Itoa(m.chunkSize),
		storage.MetaChunkOverlap:   strconv.Itoa(m.chunkOverlap),
	})
}

// Open returns the existing collection, reusing the handle from a previous call while the
// directory on disk is unchanged. Returns models.ErrNoCollection when nothing exists.
func (m *Manager) Open(ctx context.Context) (*Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(m.path)
	if os.IsNotExist(err) {
		m.dropCurrentLocked()
		return nil, models.ErrNoCollection
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat collection: %w", models.ErrStore, err)
	}
	if m.current != nil && os.SameFile(m.current.dirInfo, info) {
		return m.current, nil
	}
	m.dropCurrentLocked()

	coll, err := openCollection(ctx, m.path)
	if err != nil {
		return nil, err
	}
	if coll.Dimensions() != m.embedder.Dimensions() {
		_ = coll.Close()
		return nil, fmt.Errorf("%w: collection has dimension %d but the embedder produces %d",
			models.ErrStore, coll.Dimensions(), m.embedder.Dimensions())
	}
	if m.model != "" && coll.model != m.model {
		m.logger.Warn("collection was built with a different embedding model",
			zap.String("collection_model", coll.model),
			zap.String("configured_model", m.model))
	}
	m.current = coll
	m.logger.Debug("collection opened", zap.String("path", m.path), zap.Int("vectors", coll.Size()))
	return coll, nil
}

func (m *Manager) dropCurrentLocked() {
	if m.current != nil {
		_ = m.current.Close()
		m.current = nil
	}
}

// Search embeds query and returns the topK most similar chunks of coll.
func (m *Manager) Search(ctx context.Context, coll *Collection, query string, topK int) ([]*models.RetrievedChunk, error) {
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, models.ErrEmbeddingService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
	}
	q := make([]float32, len(vec))
	copy(q, vec)
	utils.NormalizeL2(q)
	return coll.search(ctx, q, topK)
}

// Clear deletes the collection directory and any leftover staging directories. Afterwards
// GetOrCreate behaves as if no collection ever existed. Clearing an absent collection is a no-op.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.lock.acquire(ctx); err != nil {
		return err
	}
	defer m.lock.release()

	m.mu.Lock()
	m.dropCurrentLocked()
	m.mu.Unlock()

	if err := os.RemoveAll(m.path); err != nil {
		return fmt.Errorf("%w: remove collection: %w", models.ErrStore, err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(m.path), "."+filepath.Base(m.path)+".staging-*"))
	for _, dir := range leftovers {
		_ = os.RemoveAll(dir)
	}
	m.logger.Info("collection cleared", zap.String("path", m.path), zap.Int("staging_removed", len(leftovers)))
	return nil
}

// Stats reports the collection's counts, metadata, and disk usage. A missing collection is not an error.
func (m *Manager) Stats(ctx context.Context) (*models.CollectionStats, error) {
	stats := &models.CollectionStats{Name: m.name, Path: m.path}
	coll, err := m.Open(ctx)
	if errors.Is(err, models.ErrNoCollection) {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}
	stats.Exists = true
	stats.ID = coll.ID()
	stats.Name = coll.name
	docs, err := coll.store.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count documents: %w", models.ErrStore, err)
	}
	chunks, err := coll.store.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count chunks: %w", models.ErrStore, err)
	}
	stats.Documents = int(docs)
	stats.Chunks = int(chunks)
	stats.Vectors = coll.Size()
	stats.Dimension = coll.Dimensions()
	stats.EmbeddingModel = coll.model
	if !coll.createdAt.IsZero() {
		stats.CreatedAt = coll.createdAt.Format(time.RFC3339)
	}
	if usage, err := storage.DiskUsageBytes(m.path); err == nil {
		stats.DiskUsageBytes = usage
	}
	return stats, nil
}

// Documents lists the collection's documents in insertion order.
func (m *Manager) Documents(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	coll, err := m.Open(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := coll.store.ListDocuments(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", models.ErrStore, err)
	}
	return docs, nil
}

// Document returns one stored document and its chunks. Unknown IDs give models.ErrNotFound.
func (m *Manager) Document(ctx context.Context, id string) (*models.DocumentDetail, error) {
	coll, err := m.Open(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := coll.store.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get document: %w", models.ErrStore, err)
	}
	chunks, err := coll.store.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get chunks of %s: %w", models.ErrStore, id, err)
	}
	if chunks == nil {
		chunks = []*models.Chunk{}
	}
	return &models.DocumentDetail{Document: doc, Chunks: chunks}, nil
}

// Close releases the currently open collection, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}
