package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("ANTHROPIC_API_KEY sets provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := &Config{LLM: LLMConfig{Provider: "initial"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.LLM.APIKey)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
	})

	t.Run("Precedence: GEMINI overrides ANTHROPIC", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
		assert.Equal(t, DefaultGeminiModel, cfg.LLM.Model)
		assert.Empty(t, cfg.LLM.BaseURL, "anthropic base url must not leak into gemini")
	})

	t.Run("GEMINI keeps an explicit model", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := &Config{LLM: LLMConfig{Model: "gemini-2.5-pro"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	})

	t.Run("BRIDGEFUND_MODEL wins over provider defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("BRIDGEFUND_MODEL", "custom-model")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "custom-model", cfg.LLM.Model)
	})
}

func TestEnvOverrides_ServerAndStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("BRIDGEFUND_ADDR", ":9999")
	t.Setenv("BRIDGEFUND_DB", "/tmp/bf.db")
	t.Setenv("BRIDGEFUND_RESEARCH_URL", "http://search.local/html/")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "/tmp/bf.db", cfg.Store.DatabasePath)
	assert.Equal(t, "http://search.local/html/", cfg.Research.BaseURL)
	assert.True(t, cfg.IsResearchEnabled())
}
