package generation

import "context"

// Options tunes a single completion request.
type Options struct {
	// MaxTokens bounds the length of the completion. Zero means the
	// provider's default.
	MaxTokens int

	// Temperature controls sampling randomness. Nil means the provider's
	// default.
	Temperature *float32

	// ResponseJSON requests a JSON-formatted completion when the provider
	// supports constrained output.
	ResponseJSON bool
}

// Generator defines the interface for LLM text completion.
// This interface serves as a boundary between the application core and
// external AI/LLM services; the coordination layer treats the model as an
// opaque function from prompt to text or failure.
type Generator interface {
	// Complete sends the prompt to the language model and returns the
	// generated text. Failures are classified into the sentinel errors in
	// errors.go so callers can distinguish transient conditions from
	// permanent ones.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}
