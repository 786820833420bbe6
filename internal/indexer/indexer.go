// Package indexer turns source files into documents and chunks and hands them to the collection.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/collection"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// Loader returns the plain text of the file at path.
type Loader interface {
	Extract(path string) (string, error)
}

// CollectionStore creates the collection from chunks, or opens the existing one.
// *collection.Manager implements it.
type CollectionStore interface {
	GetOrCreate(ctx context.Context, docs []*models.Document, chunks []*models.Chunk) (*collection.Collection, bool, error)
}

// Metadata keys recorded on every loaded document.
const (
	MetaContentHash = "content_hash"
	MetaSourceSize  = "source_size"
	MetaSourceMtime = "source_mtime"
	MetaExtension   = "extension"
)

// Ingestor loads files, splits them and creates the collection from the resulting chunks.
type Ingestor struct {
	loader  Loader
	chunker *Chunker
	store   CollectionStore
	logger  *zap.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets a logger for debug output (file loaded, duplicates skipped, etc.).
func WithLogger(l *zap.Logger) IngestorOption {
	return func(in *Ingestor) { in.logger = l }
}

// NewIngestor creates an ingestor with the given dependencies.
func NewIngestor(loader Loader, chunker *Chunker, store CollectionStore, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		loader:  loader,
		chunker: chunker,
		store:   store,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// LoadFile reads the file at path into a Document. The document ID is derived from the
// absolute path. Returns models.ErrIngest if the path is not a readable regular file or
// cannot be parsed.
func (in *Ingestor) LoadFile(path string) (*models.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: absolute path: %w", models.ErrIngest, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIngest, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrIngest, absPath)
	}
	text, err := in.loader.Extract(absPath)
	if err != nil {
		return nil, err
	}
	text = Preprocess(text)
	in.logger.Debug("file loaded", zap.String("path", absPath), zap.Int("chars", len([]rune(text))))
	return &models.Document{
		ID:         fileid.DocID(absPath),
		SourcePath: absPath,
		Title:      filepath.Base(absPath),
		RawText:    text,
		Metadata: map[string]interface{}{
			MetaContentHash: fileid.ContentHash(text),
			MetaSourceSize:  strconv.FormatInt(info.Size(), 10),
			MetaSourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			MetaExtension:   strings.ToLower(filepath.Ext(absPath)),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Prepare loads and splits every path. It fails as a whole on the first bad file, so no
// partial set is ever handed to the collection. Repeated paths and files with identical
// text are included once.
func (in *Ingestor) Prepare(ctx context.Context, paths []string) ([]*models.Document, []*models.Chunk, error) {
	var (
		docs   []*models.Document
		chunks []*models.Chunk
		seen   = make(map[string]string)
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		doc, err := in.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		hash, _ := doc.Metadata[MetaContentHash].(string)
		if prev, dup := seen[doc.ID]; dup {
			in.logger.Debug("skipping repeated path", zap.String("path", doc.SourcePath), zap.String("first", prev))
			continue
		}
		if prev, dup := seen[hash]; dup {
			in.logger.Info("skipping file with identical content", zap.String("path", doc.SourcePath), zap.String("first", prev))
			continue
		}
		seen[doc.ID], seen[hash] = doc.SourcePath, doc.SourcePath

		docChunks, err := in.chunker.Split(doc)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", doc.SourcePath, err)
		}
		docs = append(docs, doc)
		chunks = append(chunks, docChunks...)
	}
	return docs, chunks, nil
}

// IngestFiles loads, splits and indexes paths. When a collection already exists it is left
// unchanged and the result is marked Ignored.
func (in *Ingestor) IngestFiles(ctx context.Context, paths ...string) (*models.IngestResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no documents given", models.ErrIngest)
	}
	docs, chunks, err := in.Prepare(ctx, paths)
	if err != nil {
		return nil, err
	}
	_, created, err := in.store.GetOrCreate(ctx, docs, chunks)
	if err != nil {
		return nil, err
	}
	result := &models.IngestResult{
		Created:   created,
		Documents: len(docs),
		Chunks:    len(chunks),
		Ignored:   !created,
		Sources:   make([]string, len(docs)),
	}
	for i, d := range docs {
		result.Sources[i] = d.SourcePath
	}
	return result, nil
}

// IngestDirectory walks dir recursively and ingests every regular file whose extension is in
// allowedExts (if non-empty; otherwise all files) in one call, in lexical path order.
func (in *Ingestor) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (*models.IngestResult, error) {
	paths, err := CollectFiles(dir, allowedExts)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no matching files in %s", models.ErrIngest, dir)
	}
	return in.IngestFiles(ctx, paths...)
}

// CollectFiles lists the regular files under dir whose extension is allowed, in lexical order.
func CollectFiles(dir string, allowedExts []string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: absolute path: %w", models.ErrIngest, err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("%w: stat directory: %w", models.ErrIngest, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", models.ErrIngest, absDir)
	}
	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %w", models.ErrIngest, absDir, err)
	}
	return paths, nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the leading dot.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
