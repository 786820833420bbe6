package llm

import (
	"context"
	"strings"
	"sync"
)

// MockGenerator returns scripted completions and records every prompt it receives.
type MockGenerator struct {
	respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

// NewMockGenerator returns a generator that answers with respond.
func NewMockGenerator(respond func(prompt string) (string, error)) *MockGenerator {
	return &MockGenerator{respond: respond}
}

// Generate records prompt and returns the scripted completion.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.respond(prompt)
}

// Prompts returns a copy of the prompts received so far.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// NewEchoGenerator returns an offline generator: it proposes no query variants and answers
// with the first line of the prompt's context section. Used with provider "mock".
func NewEchoGenerator() *MockGenerator {
	return NewMockGenerator(func(prompt string) (string, error) {
		_, rest, ok := strings.Cut(prompt, "Context:\n")
		if !ok {
			return "", nil
		}
		line, _, _ := strings.Cut(strings.TrimSpace(rest), "\n")
		return strings.TrimSpace(line), nil
	})
}
