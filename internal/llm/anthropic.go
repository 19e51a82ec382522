package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bridgefund/internal/logging"
)

const providerAnthropic = "anthropic"

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// AnthropicClient calls the Anthropic Messages API directly.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewAnthropicClient creates a new Anthropic client, filling zero fields with defaults.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &AnthropicClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model.
func (c *AnthropicClient) Model() string {
	return c.model
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	MaxTokens   int                  `json:"max_tokens"`
	System      string               `json:"system,omitempty"`
	Messages    []anthropicMessage   `json:"messages"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
	Temperature float64              `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateStructured forces a single tool call and returns its input.
func (c *AnthropicClient) GenerateStructured(ctx context.Context, system, input string, schema map[string]any, toolName string) (map[string]any, error) {
	start := time.Now()
	logging.APIDebug("[Anthropic] GenerateStructured: model=%s tool=%s system_len=%d input_len=%d",
		c.model, toolName, len(system), len(input))

	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: input}},
		Tools: []anthropicTool{{
			Name:        toolName,
			Description: "Record the structured result for this step.",
			InputSchema: schema,
		}},
		ToolChoice:  &anthropicToolChoice{Type: "tool", Name: toolName},
		Temperature: c.temperature,
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, &GenerationError{Provider: providerAnthropic, Op: OpStructured, Err: err}
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == toolName {
			logging.API("[Anthropic] GenerateStructured: %s completed in %v", toolName, time.Since(start))
			if block.Input == nil {
				return map[string]any{}, nil
			}
			return block.Input, nil
		}
	}

	return nil, &GenerationError{
		Provider: providerAnthropic,
		Op:       OpStructured,
		Err:      fmt.Errorf("no %s tool call in response (stop_reason=%s)", toolName, resp.StopReason),
	}
}

// GenerateText returns the concatenated text blocks of a completion.
func (c *AnthropicClient) GenerateText(ctx context.Context, system, input string) (string, error) {
	start := time.Now()
	logging.APIDebug("[Anthropic] GenerateText: model=%s system_len=%d input_len=%d", c.model, len(system), len(input))

	resp, err := c.send(ctx, anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: input}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", &GenerationError{Provider: providerAnthropic, Op: OpText, Err: err}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &GenerationError{Provider: providerAnthropic, Op: OpText, Err: fmt.Errorf("no completion returned")}
	}

	logging.API("[Anthropic] GenerateText: completed in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}

func (c *AnthropicClient) send(ctx context.Context, body anthropicRequest) (*anthropicResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logging.Get(logging.CategoryAPI).Error("[Anthropic] API returned status %d", resp.StatusCode)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(data), 512))
	}

	var out anthropicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("API error: %s", out.Error.Message)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
