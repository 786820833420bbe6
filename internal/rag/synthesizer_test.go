package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompt"
)

func contextChunks(texts ...string) []*models.RetrievedChunk {
	out := make([]*models.RetrievedChunk, len(texts))
	for i, text := range texts {
		out[i] = &models.RetrievedChunk{ChunkID: string(rune('a' + i)), Text: text, Rank: i + 1}
	}
	return out
}

func TestSynthesize_promptCarriesContextInOrder(t *testing.T) {
	gen := llm.NewMockGenerator(func(string) (string, error) { return "  Paris.\n", nil })
	chunks := contextChunks("The capital of France is Paris.", "  France is in Europe.  ")

	answer, err := NewSynthesizer(gen, nil).Synthesize(context.Background(), "What is the capital of France?", chunks)
	require.NoError(t, err)
	assert.Equal(t, "  Paris.\n", answer.Text, "model output is returned unmodified")
	assert.Equal(t, "What is the capital of France?", answer.Question)
	assert.Equal(t, chunks, answer.ContextChunks)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	p := prompts[0]
	assert.Contains(t, p, "Context:\nThe capital of France is Paris.\n\nFrance is in Europe.\n")
	assert.Contains(t, p, "Question: What is the capital of France?")
	assert.Contains(t, p, "ONLY use information from the provided context")
	assert.Less(t, strings.Index(p, "Context:"), strings.Index(p, "Question:"))
}

func TestSynthesize_generationError(t *testing.T) {
	boom := errors.New("connection refused")
	gen := llm.NewMockGenerator(func(string) (string, error) { return "", boom })
	_, err := NewSynthesizer(gen, nil).Synthesize(context.Background(), "q", contextChunks("c"))
	assert.ErrorIs(t, err, models.ErrGenerationService)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, gen.Prompts(), 1, "no retry")
}

func TestSynthesize_customTemplate(t *testing.T) {
	gen := llm.NewMockGenerator(func(p string) (string, error) { return p, nil })
	tmpl := prompt.MustParse("answer", "{{ .Question }}|{{ .Context | nospace }}")
	answer, err := NewSynthesizer(gen, tmpl).Synthesize(context.Background(), "q", contextChunks("a b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "q|abc", answer.Text)
}

func TestJoinContext(t *testing.T) {
	assert.Equal(t, "", JoinContext(nil))
	assert.Equal(t, "one\n\ntwo", JoinContext(contextChunks(" one ", "two\n")))
}
