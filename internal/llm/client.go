// Package llm adapts text-generation backends to the two operations the
// Bridge Story pipeline needs: a forced tool call returning a structured
// object, and a plain text completion. It never retries; recovery belongs
// to the caller.
package llm

import (
	"context"
	"fmt"
	"time"

	"bridgefund/internal/config"
)

// Client is a text-generation backend.
type Client interface {
	// GenerateStructured forces the backend to call toolName with arguments
	// matching schema and returns those arguments.
	GenerateStructured(ctx context.Context, system, input string, schema map[string]any, toolName string) (map[string]any, error)

	// GenerateText returns a free-text completion.
	GenerateText(ctx context.Context, system, input string) (string, error)
}

// Operation names used in GenerationError.
const (
	OpStructured = "generate_structured"
	OpText       = "generate_text"
)

// GenerationError is returned for every backend failure: transport, HTTP
// status, decoding, or a response without the expected tool call.
type GenerationError struct {
	Provider string
	Op       string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewClient builds the configured backend. It is intended to be called once
// per process; the returned client is safe for concurrent use.
func NewClient(ctx context.Context, cfg config.LLMConfig, timeout time.Duration) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key not configured")
	}

	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		}), nil
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
