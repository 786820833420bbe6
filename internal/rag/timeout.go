package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

// timeoutEmbedder bounds every embedding call by timeout, derived from the caller's context.
// Batches are sent in slices of batchSize texts and the timeout applies to each slice.
type timeoutEmbedder struct {
	embedding.Embedder
	timeout   time.Duration
	batchSize int
}

func withEmbeddingTimeout(e embedding.Embedder, timeout time.Duration, batchSize int) embedding.Embedder {
	if timeout <= 0 {
		return e
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &timeoutEmbedder{Embedder: e, timeout: timeout, batchSize: batchSize}
}

func (e *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.Embedder.Embed(ctx, text)
}

func (e *timeoutEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedSlice(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbeddingService, len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *timeoutEmbedder) embedSlice(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.Embedder.EmbedBatch(ctx, texts)
}

// timeoutGenerator bounds every generation call by timeout.
type timeoutGenerator struct {
	next    llm.Generator
	timeout time.Duration
}

func withGenerationTimeout(g llm.Generator, timeout time.Duration) llm.Generator {
	if timeout <= 0 {
		return g
	}
	return &timeoutGenerator{next: g, timeout: timeout}
}

func (g *timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.Generate(ctx, prompt)
}
