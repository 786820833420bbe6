// Package llm calls the generative model used for query expansion and answer synthesis.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Generator turns one prompt into one completion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LangChainGenerator adapts a langchaingo model to Generator.
type LangChainGenerator struct {
	model       llms.Model
	temperature float64
}

// NewLangChainGenerator wraps model. A temperature of zero leaves the model default.
func NewLangChainGenerator(model llms.Model, temperature float64) *LangChainGenerator {
	return &LangChainGenerator{model: model, temperature: temperature}
}

// NewOllamaGenerator creates a generator for model served at baseURL.
func NewOllamaGenerator(baseURL, model string, temperature float64) (*LangChainGenerator, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return NewLangChainGenerator(client, temperature), nil
}

// Generate sends prompt as a single human message and returns the model's text.
func (g *LangChainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var opts []llms.CallOption
	if g.temperature > 0 {
		opts = append(opts, llms.WithTemperature(g.temperature))
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrGenerationService, err)
	}
	return out, nil
}

// New builds the generator selected by cfg.Provider.
func New(cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "ollama", "":
		g, err := NewOllamaGenerator(cfg.BaseURL, cfg.Model, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		logger.Info("generator ready", zap.String("provider", "ollama"), zap.String("model", cfg.Model),
			zap.String("base_url", cfg.BaseURL))
		return g, nil
	case "mock":
		logger.Info("generator ready", zap.String("provider", "mock"))
		return NewEchoGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: ollama, mock)", cfg.Provider)
	}
}
