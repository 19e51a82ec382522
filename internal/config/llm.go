package config

// DefaultGeminiModel is used when GEMINI_API_KEY selects the Gemini backend
// without an explicit model.
const DefaultGeminiModel = "gemini-2.5-flash"

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// MaxTokens caps a single completion.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is shared by structured and free-text calls.
	Temperature float64 `yaml:"temperature"`
}
