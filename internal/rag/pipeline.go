package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/collection"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/search"
)

// Observer receives pipeline events. server.Metrics implements it.
type Observer interface {
	ExpansionFallback()
	VariantSearchFailed()
}

// Pipeline wires ingestion, retrieval and synthesis over one collection. All per-question
// state lives in the AskRequest; the pipeline itself holds only configuration and services.
type Pipeline struct {
	cfg       *config.Config
	embedder  embedding.Embedder
	manager   *collection.Manager
	ingestor  *indexer.Ingestor
	expander  *search.Expander
	retriever *search.Retriever
	synth     *Synthesizer
	observer  Observer
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger passed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithObserver registers o for expansion fallbacks and failed variant searches.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New builds a pipeline from cfg using the given services. Each generation call and each
// slice of cfg.Embedding.BatchSize embeddings is bounded by cfg.LLM.Timeout and
// cfg.Embedding.Timeout respectively.
func New(cfg *config.Config, embedder embedding.Embedder, generator llm.Generator, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	expansionTmpl, answerTmpl, err := templates(cfg.LLM)
	if err != nil {
		return nil, err
	}
	embedder = withEmbeddingTimeout(embedder, cfg.Embedding.Timeout, cfg.Embedding.BatchSize)
	generator = withGenerationTimeout(generator, cfg.LLM.Timeout)

	p.manager = collection.NewManager(cfg.Storage.CollectionName, cfg.Storage.CollectionPath, embedder,
		collection.WithLogger(p.logger),
		collection.WithEmbeddingModel(cfg.Embedding.Model),
		collection.WithChunking(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap()))
	p.ingestor = indexer.NewIngestor(
		extract.NewExtractor(),
		indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap(), cfg.Chunking.Separators...),
		p.manager,
		indexer.WithLogger(p.logger))
	p.expander = search.NewExpander(generator,
		search.WithExpansionTemplate(expansionTmpl),
		search.WithExpanderLogger(p.logger),
		search.WithFallbackHook(func() {
			if p.observer != nil {
				p.observer.ExpansionFallback()
			}
		}))
	p.retriever = search.NewRetriever(p.manager,
		search.WithMaxConcurrency(cfg.Retrieval.MaxConcurrency),
		search.WithFusion(search.FuseFuncFor(cfg.Retrieval.Fusion)),
		search.WithMaxContextChunks(cfg.Retrieval.MaxContextChunks),
		search.WithRetrieverLogger(p.logger),
		search.WithFailureHook(func(string, error) {
			if p.observer != nil {
				p.observer.VariantSearchFailed()
			}
		}))
	p.synth = NewSynthesizer(generator, answerTmpl)
	return p, nil
}

// NewFromConfig builds the embedder and generator selected by cfg and returns a pipeline over them.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	base := &Pipeline{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(base)
	}
	embedder, err := embedding.New(cfg.Embedding, base.logger)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	generator, err := llm.New(cfg.LLM, base.logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("generator: %w", err)
	}
	p, err := New(cfg, embedder, generator, opts...)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	return p, nil
}

func templates(cfg config.LLMConfig) (expansion, answer *prompt.Template, err error) {
	expansionText, answerText := prompt.DefaultExpansion, prompt.DefaultAnswer
	if cfg.ExpansionPrompt != "" {
		expansionText = cfg.ExpansionPrompt
	}
	if cfg.AnswerPrompt != "" {
		answerText = cfg.AnswerPrompt
	}
	if expansion, err = prompt.Parse("expansion", expansionText); err != nil {
		return nil, nil, err
	}
	if answer, err = prompt.Parse("answer", answerText); err != nil {
		return nil, nil, err
	}
	return expansion, answer, nil
}

// Ingest loads, splits and indexes the files at paths. If a collection already exists it is
// left unchanged and the result is marked Ignored.
func (p *Pipeline) Ingest(ctx context.Context, paths ...string) (*models.IngestResult, error) {
	start := time.Now()
	res, err := p.ingestor.IngestFiles(ctx, paths...)
	return p.logIngest(res, err, start)
}

// IngestDirectory ingests every file under dir whose extension is in exts.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string, exts []string) (*models.IngestResult, error) {
	start := time.Now()
	res, err := p.ingestor.IngestDirectory(ctx, dir, exts)
	return p.logIngest(res, err, start)
}

func (p *Pipeline) logIngest(res *models.IngestResult, err error, start time.Time) (*models.IngestResult, error) {
	if err != nil {
		p.logger.Error("ingest failed", zap.String("kind", models.ErrorKind(err)), zap.Error(err))
		return nil, err
	}
	p.logger.Info("ingest finished",
		zap.Bool("created", res.Created),
		zap.Bool("ignored", res.Ignored),
		zap.Int("documents", res.Documents),
		zap.Int("chunks", res.Chunks),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

// Ask answers req.Question from the collection. It fails with models.ErrNoCollection before
// anything is ingested.
func (p *Pipeline) Ask(ctx context.Context, req models.AskRequest) (*models.Answer, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	coll, err := p.manager.Open(ctx)
	if err != nil {
		return nil, err
	}

	set := models.SingleQuery(req.Question)
	if !req.NoExpand && !p.cfg.Retrieval.DisableExpansion {
		set = p.expander.Expand(ctx, req.Question)
	}
	topK := p.cfg.Retrieval.TopKPerVariant
	if req.TopK > 0 {
		topK = req.TopK
	}
	chunks, err := p.retriever.Retrieve(ctx, coll, set, topK)
	if err != nil {
		return nil, err
	}
	answer, err := p.synth.Synthesize(ctx, req.Question, chunks)
	if err != nil {
		return nil, err
	}
	answer.Variants = set.Variants
	answer.QueryTime = time.Since(start).Milliseconds()
	p.logger.Debug("question answered",
		zap.Int("variants", len(set.Variants)),
		zap.Int("context_chunks", len(chunks)),
		zap.Int64("ms", answer.QueryTime))
	return answer, nil
}

// Clear deletes the collection. The next ingest builds a new one.
func (p *Pipeline) Clear(ctx context.Context) error {
	return p.manager.Clear(ctx)
}

// Status reports the collection's statistics. A missing collection is reported, not an error.
func (p *Pipeline) Status(ctx context.Context) (*models.CollectionStats, error) {
	return p.manager.Stats(ctx)
}

// Documents lists ingested documents in insertion order.
func (p *Pipeline) Documents(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	docs, err := p.manager.Documents(ctx, offset, limit)
	if errors.Is(err, models.ErrNoCollection) {
		return []*models.Document{}, nil
	}
	return docs, err
}

// Document returns one ingested document with its chunks.
func (p *Pipeline) Document(ctx context.Context, id string) (*models.DocumentDetail, error) {
	return p.manager.Document(ctx, id)
}

// Close releases the open collection and the embedder.
func (p *Pipeline) Close() error {
	return errors.Join(p.manager.Close(), p.embedder.Close())
}
