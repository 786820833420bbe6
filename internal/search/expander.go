package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompt"
)

// Expander asks the generative model for alternative phrasings of a question.
type Expander struct {
	generator  llm.Generator
	template   *prompt.Template
	logger     *zap.Logger
	onFallback func()
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithExpanderLogger sets the logger used to report fallbacks.
func WithExpanderLogger(l *zap.Logger) ExpanderOption {
	return func(e *Expander) { e.logger = l }
}

// WithExpansionTemplate replaces the built-in expansion prompt.
func WithExpansionTemplate(t *prompt.Template) ExpanderOption {
	return func(e *Expander) { e.template = t }
}

// WithFallbackHook registers fn to be called every time expansion falls back to the question alone.
func WithFallbackHook(fn func()) ExpanderOption {
	return func(e *Expander) { e.onFallback = fn }
}

// NewExpander creates an expander backed by generator.
func NewExpander(generator llm.Generator, opts ...ExpanderOption) *Expander {
	e := &Expander{
		generator: generator,
		template:  prompt.MustParse("expansion", prompt.DefaultExpansion),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the question followed by up to four alternative phrasings. It never fails:
// when the model call errors or yields no usable lines the set holds only the question.
func (e *Expander) Expand(ctx context.Context, question string) *models.ExpandedQuerySet {
	text, err := e.template.Render(prompt.Data{Question: question})
	if err != nil {
		return e.fallback(question, err)
	}
	response, err := e.generator.Generate(ctx, text)
	if err != nil {
		return e.fallback(question, err)
	}
	variants := ParseVariants(question, response)
	if len(variants) == 1 {
		return e.fallback(question, nil)
	}
	e.logger.Debug("query expanded", zap.Int("variants", len(variants)))
	return &models.ExpandedQuerySet{OriginalQuestion: question, Variants: variants}
}

func (e *Expander) fallback(question string, err error) *models.ExpandedQuerySet {
	if err != nil {
		e.logger.Warn("query expansion failed; searching with the question only", zap.Error(err))
	} else {
		e.logger.Warn("query expansion produced no variants; searching with the question only")
	}
	if e.onFallback != nil {
		e.onFallback()
	}
	set := models.SingleQuery(question)
	set.Fallback = true
	return set
}
