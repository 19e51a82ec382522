package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"bridgefund/internal/logging"
)

const providerGemini = "gemini"

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// GeminiClient calls Gemini through the genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
	}, nil
}

// Model returns the configured model.
func (c *GeminiClient) Model() string {
	return c.model
}

func (c *GeminiClient) baseConfig(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

// GenerateStructured declares one function and forces the model to call it.
func (c *GeminiClient) GenerateStructured(ctx context.Context, system, input string, schema map[string]any, toolName string) (map[string]any, error) {
	start := time.Now()
	logging.APIDebug("[Gemini] GenerateStructured: model=%s tool=%s", c.model, toolName)

	cfg := c.baseConfig(system)
	cfg.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:                 toolName,
			Description:          "Record the structured result for this step.",
			ParametersJsonSchema: schema,
		}},
	}}
	cfg.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{toolName},
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(input, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, &GenerationError{Provider: providerGemini, Op: OpStructured, Err: err}
	}

	for _, call := range resp.FunctionCalls() {
		if call.Name == toolName {
			logging.API("[Gemini] GenerateStructured: %s completed in %v", toolName, time.Since(start))
			if call.Args == nil {
				return map[string]any{}, nil
			}
			return call.Args, nil
		}
	}

	return nil, &GenerationError{
		Provider: providerGemini,
		Op:       OpStructured,
		Err:      fmt.Errorf("no %s function call in response", toolName),
	}
}

// GenerateText returns the text of the first candidate.
func (c *GeminiClient) GenerateText(ctx context.Context, system, input string) (string, error) {
	start := time.Now()
	logging.APIDebug("[Gemini] GenerateText: model=%s input_len=%d", c.model, len(input))

	contents := []*genai.Content{genai.NewContentFromText(input, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.baseConfig(system))
	if err != nil {
		return "", &GenerationError{Provider: providerGemini, Op: OpText, Err: err}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &GenerationError{Provider: providerGemini, Op: OpText, Err: fmt.Errorf("no completion returned")}
	}

	logging.API("[Gemini] GenerateText: completed in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}
