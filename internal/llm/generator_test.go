package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// fakeModel implements llms.Model.
type fakeModel struct {
	reply string
	err   error
	got   []llms.MessageContent
	opts  llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChainGenerator_Generate(t *testing.T) {
	model := &fakeModel{reply: "Paris"}
	g := NewLangChainGenerator(model, 0.2)
	out, err := g.Generate(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Paris" {
		t.Errorf("Generate = %q, want Paris", out)
	}
	if len(model.got) != 1 {
		t.Fatalf("expected one message, got %d", len(model.got))
	}
	if model.opts.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", model.opts.Temperature)
	}
}

func TestLangChainGenerator_Error(t *testing.T) {
	g := NewLangChainGenerator(&fakeModel{err: errors.New("model not found")}, 0)
	_, err := g.Generate(context.Background(), "q")
	if !errors.Is(err, models.ErrGenerationService) {
		t.Errorf("expected ErrGenerationService, got %v", err)
	}
}

func TestMockGenerator_RecordsPrompts(t *testing.T) {
	g := NewMockGenerator(func(p string) (string, error) { return "ok:" + p, nil })
	out, _ := g.Generate(context.Background(), "one")
	_, _ = g.Generate(context.Background(), "two")
	if out != "ok:one" {
		t.Errorf("Generate = %q", out)
	}
	if got := g.Prompts(); len(got) != 2 || got[1] != "two" {
		t.Errorf("Prompts = %v", got)
	}
}

func TestEchoGenerator(t *testing.T) {
	g := NewEchoGenerator()
	out, err := g.Generate(context.Background(), "Answer.\n\nContext:\nThe capital of France is Paris.\nmore\n\nQuestion: q")
	if err != nil {
		t.Fatal(err)
	}
	if out != "The capital of France is Paris." {
		t.Errorf("Generate = %q", out)
	}
	if out, _ := g.Generate(context.Background(), "Provide alternative questions."); out != "" {
		t.Errorf("expansion prompt should yield no variants, got %q", out)
	}
}

func TestNew(t *testing.T) {
	g, err := New(config.LLMConfig{Provider: "mock"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*MockGenerator); !ok {
		t.Errorf("expected mock generator, got %T", g)
	}
	if _, err := New(config.LLMConfig{Provider: "gpt"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
