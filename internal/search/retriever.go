package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/collection"
	"github.com/hyperjump/kotae/internal/models"
)

// Searcher runs one similarity search against a collection. *collection.Manager implements it.
type Searcher interface {
	Search(ctx context.Context, coll *collection.Collection, query string, topK int) ([]*models.RetrievedChunk, error)
}

// Retriever searches a collection once per query variant and fuses the results.
type Retriever struct {
	searcher       Searcher
	maxConcurrency int
	fuse           FuseFunc
	maxChunks      int
	onFailure      func(variant string, err error)
	logger         *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithRetrieverLogger sets the logger used to report failed variant searches.
func WithRetrieverLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// WithMaxConcurrency bounds the number of variant searches in flight. Values below 1 mean 1.
func WithMaxConcurrency(n int) RetrieverOption {
	return func(r *Retriever) { r.maxConcurrency = n }
}

// WithFusion selects the fusion strategy.
func WithFusion(fuse FuseFunc) RetrieverOption {
	return func(r *Retriever) { r.fuse = fuse }
}

// WithMaxContextChunks caps the fused result. Zero means no cap.
func WithMaxContextChunks(n int) RetrieverOption {
	return func(r *Retriever) { r.maxChunks = n }
}

// WithFailureHook registers fn to be called for every failed variant search.
func WithFailureHook(fn func(variant string, err error)) RetrieverOption {
	return func(r *Retriever) { r.onFailure = fn }
}

// NewRetriever creates a retriever over searcher.
func NewRetriever(searcher Searcher, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		searcher:       searcher,
		maxConcurrency: 4,
		fuse:           FuseFirstOccurrence,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxConcurrency < 1 {
		r.maxConcurrency = 1
	}
	return r
}

// Retrieve searches coll with every variant in set and fuses the results. The output order
// depends only on the per-variant results, never on which search finished first. Failed
// variants are skipped; when every variant fails the joined causes are returned as ErrRetrieval.
func (r *Retriever) Retrieve(ctx context.Context, coll *collection.Collection, set *models.ExpandedQuerySet, topKPerVariant int) ([]*models.RetrievedChunk, error) {
	if set == nil || len(set.Variants) == 0 {
		return nil, fmt.Errorf("%w: no query variants", models.ErrRetrieval)
	}
	results := make([]VariantResults, len(set.Variants))

	// Variant failures are recorded per slot rather than returned so siblings keep running.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i, variant := range set.Variants {
		results[i].Variant = variant
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			chunks, err := r.searcher.Search(gctx, coll, variant, topKPerVariant)
			results[i].Chunks, results[i].Err = chunks, err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrRetrieval, err)
	}

	var errs []error
	for _, vr := range results {
		if vr.Err != nil {
			r.logger.Warn("variant search failed", zap.String("variant", vr.Variant), zap.Error(vr.Err))
			if r.onFailure != nil {
				r.onFailure(vr.Variant, vr.Err)
			}
			errs = append(errs, fmt.Errorf("variant %q: %w", vr.Variant, vr.Err))
		}
	}
	if len(errs) == len(results) {
		return nil, fmt.Errorf("%w: all %d variant searches failed: %w", models.ErrRetrieval, len(errs), errors.Join(errs...))
	}

	fused := r.fuse(results)
	if r.maxChunks > 0 && len(fused) > r.maxChunks {
		fused = fused[:r.maxChunks]
	}
	r.logger.Debug("retrieved context",
		zap.Int("variants", len(results)),
		zap.Int("failed", len(errs)),
		zap.Int("chunks", len(fused)))
	return fused, nil
}
