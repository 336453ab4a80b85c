package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/jobdeck/jobdeck-api/internal/config"
	"github.com/jobdeck/jobdeck-api/internal/generation"
)

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API.
type GeminiGenerator struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// Compile-time interface check.
var _ generation.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a new GeminiGenerator from LLM configuration.
// Returns generation.ErrInvalidConfig when the configuration is unusable.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &GeminiGenerator{
		logger: logger.With("component", "gemini_generator", "model", cfg.ModelName),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Complete sends the prompt to Gemini and returns the generated text.
// Failures are classified into the generation package's sentinel errors.
// No retries happen here: retry policy belongs to the caller.
func (g *GeminiGenerator) Complete(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", generation.ErrInvalidConfig)
	}

	genCfg := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		genCfg.Temperature = opts.Temperature
	}
	if opts.ResponseJSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	g.logger.DebugContext(ctx, "calling Gemini API", "prompt_len", len(prompt))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), genCfg)
	if err != nil {
		// API-level failures (network, quota, 5xx) are worth retrying by
		// the caller; the provider error is preserved for diagnostics.
		g.logger.ErrorContext(ctx, "Gemini API call failed", "error", err)
		return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: response contained no text parts", generation.ErrInvalidResponse)
	}

	g.logger.DebugContext(ctx, "Gemini API call succeeded", "response_len", len(text))
	return text, nil
}
