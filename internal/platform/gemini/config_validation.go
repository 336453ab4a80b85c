package gemini

import (
	"fmt"

	"github.com/jobdeck/jobdeck-api/internal/config"
	"github.com/jobdeck/jobdeck-api/internal/generation"
)

// validateConfig checks the LLM configuration fields the generator needs.
func validateConfig(cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	return nil
}
