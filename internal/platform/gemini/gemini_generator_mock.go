package gemini

import (
	"context"
	"sync"

	"github.com/jobdeck/jobdeck-api/internal/generation"
)

// MockGenerator is a configurable generation.Generator for tests and local
// development without a Gemini API key.
type MockGenerator struct {
	mu sync.Mutex

	// CompleteFn, when set, handles each call.
	CompleteFn func(ctx context.Context, prompt string, opts generation.Options) (string, error)

	// DefaultResponse is returned when CompleteFn is nil.
	DefaultResponse string

	// Calls records the prompts received, in order.
	Calls []string
}

var _ generation.Generator = (*MockGenerator)(nil)

// Complete records the call and delegates to CompleteFn or returns
// DefaultResponse.
func (m *MockGenerator) Complete(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	fn := m.CompleteFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, opts)
	}
	return m.DefaultResponse, nil
}

// CallCount returns how many completions have been requested.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
