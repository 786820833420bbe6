package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/hyperjump/kotae/internal/models"
)

// OllamaEmbedder calls an Ollama server's embedding endpoint through langchaingo.
type OllamaEmbedder struct {
	client     embeddings.Embedder
	dimensions int
}

// NewOllamaEmbedder creates an embedder for model served at baseURL. dimensions is the
// expected vector length (768 for nomic-embed-text); responses of any other length are rejected.
func NewOllamaEmbedder(baseURL, model string, dimensions, batchSize int) (*OllamaEmbedder, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	embOpts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(batchSize))
	}
	client, err := embeddings.NewEmbedder(llm, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to construct ollama embedder: %w", err)
	}
	return newOllamaEmbedder(client, dimensions)
}

func newOllamaEmbedder(client embeddings.Embedder, dimensions int) (*OllamaEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &OllamaEmbedder{client: client, dimensions: dimensions}, nil
}

// Embed returns the embedding of a query text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", models.ErrEmbeddingService, err)
	}
	if err := checkDimensions([][]float32{vec}, e.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds documents; langchaingo splits them into batches.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed %d documents: %w", models.ErrEmbeddingService, len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbeddingService, len(vecs), len(texts))
	}
	if err := checkDimensions(vecs, e.dimensions); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OllamaEmbedder) Close() error {
	return nil
}
