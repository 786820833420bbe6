package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/embedding"
)

// perTextEmbedder takes delay per text, like a service that embeds one text per request.
type perTextEmbedder struct {
	*embedding.MockEmbedder
	delay time.Duration

	mu    sync.Mutex
	sizes []int
}

func (e *perTextEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.sizes = append(e.sizes, len(texts))
	e.mu.Unlock()
	for range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	return e.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestTimeoutEmbedder_boundsEachSlice(t *testing.T) {
	inner := &perTextEmbedder{MockEmbedder: embedding.NewMockEmbedder(16), delay: 5 * time.Millisecond}
	e := withEmbeddingTimeout(inner, 100*time.Millisecond, 4)

	texts := make([]string, 60)
	for i := range texts {
		texts[i] = fmt.Sprintf("text number %d", i)
	}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assert.Len(t, inner.sizes, 15)
	for _, n := range inner.sizes {
		assert.Equal(t, 4, n)
	}
}

func TestTimeoutEmbedder_sliceOverBudgetFails(t *testing.T) {
	inner := &perTextEmbedder{MockEmbedder: embedding.NewMockEmbedder(16), delay: 30 * time.Millisecond}
	e := withEmbeddingTimeout(inner, 50*time.Millisecond, 4)

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimeoutEmbedder_zeroTimeoutIsPassThrough(t *testing.T) {
	inner := embedding.NewMockEmbedder(16)
	assert.Same(t, embedding.Embedder(inner), withEmbeddingTimeout(inner, 0, 32))
}

func TestPipeline_LargeIngestWithinPerCallTimeout(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Chunking.ChunkSize = 60
	overlap := 10
	cfg.Chunking.ChunkOverlap = &overlap
	cfg.Embedding.BatchSize = 4
	cfg.Embedding.Timeout = 100 * time.Millisecond

	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about topic %d in detail.\n", i, i)
	}
	inner := &perTextEmbedder{MockEmbedder: embedding.NewMockEmbedder(cfg.Embedding.Dimensions), delay: 5 * time.Millisecond}
	p, err := New(cfg, inner, scriptedGenerator(""))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	res, err := p.Ingest(ctx, writeDoc(t, "long.txt", b.String()))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Chunks, 60)
}
