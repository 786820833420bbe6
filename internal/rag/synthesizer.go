// Package rag answers questions from the ingested collection: it expands the question,
// retrieves context for every variant, and asks the generative model for a grounded answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompt"
)

// Synthesizer renders the grounding prompt and makes the single generation call.
type Synthesizer struct {
	generator llm.Generator
	template  *prompt.Template
}

// NewSynthesizer creates a synthesizer. A nil template selects prompt.DefaultAnswer.
func NewSynthesizer(generator llm.Generator, template *prompt.Template) *Synthesizer {
	if template == nil {
		template = prompt.MustParse("answer", prompt.DefaultAnswer)
	}
	return &Synthesizer{generator: generator, template: template}
}

// JoinContext concatenates chunk texts in the given order, separated by blank lines.
func JoinContext(chunks []*models.RetrievedChunk) string {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = strings.TrimSpace(ch.Text)
	}
	return strings.Join(texts, "\n\n")
}

// Synthesize asks the model to answer question from chunks only. The model output is returned
// unmodified as Answer.Text. Grounding is requested by the prompt and not verified.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []*models.RetrievedChunk) (*models.Answer, error) {
	text, err := s.template.Render(prompt.Data{Question: question, Context: JoinContext(chunks)})
	if err != nil {
		return nil, err
	}
	out, err := s.generator.Generate(ctx, text)
	if err != nil {
		if errors.Is(err, models.ErrGenerationService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrGenerationService, err)
	}
	return &models.Answer{
		Question:      question,
		Text:          out,
		ContextChunks: chunks,
	}, nil
}
