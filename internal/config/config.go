// Package config loads runtime configuration from the environment. Every
// knob has a default; the only genuinely required value is an API key for
// the generation backend.
package config

import (
	"fmt"
	"os"
	"strconv"
)

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type EmbedderConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type PromptConfig struct {
	VectorTopK       int
	TokenBudget      int
	StylePreferences bool
	TemplatePack     string
}

type GenerationConfig struct {
	Temperature float64
	MaxTokens   int
}

type ReflectionConfig struct {
	Enabled         bool
	DisableRecovery bool
	Temperature     float64
}

type MaintenanceConfig struct {
	ReindexSchedule string
	ReindexBatch    int
}

type Config struct {
	DBPath      string
	Timezone    string
	LLM         LLMConfig
	Agentic     LLMConfig
	Reflector   LLMConfig
	Embedder    EmbedderConfig
	Prompt      PromptConfig
	Generation  GenerationConfig
	Reflection  ReflectionConfig
	Maintenance MaintenanceConfig
}

func Load() (*Config, error) {
	dbPath := envOr("REVERIE_DB", "reverie.db")

	timezone := os.Getenv("TZ")
	if timezone == "" {
		timezone = "UTC"
	}

	llmCfg, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		DBPath:      dbPath,
		Timezone:    timezone,
		LLM:         llmCfg,
		Agentic:     loadAgenticConfig(),
		Reflector:   loadReflectorConfig(llmCfg),
		Embedder:    loadEmbedderConfig(),
		Prompt:      loadPromptConfig(),
		Generation:  loadGenerationConfig(),
		Reflection:  loadReflectionConfig(),
		Maintenance: loadMaintenanceConfig(),
	}, nil
}

func loadLLMConfig() (LLMConfig, error) {
	provider := envOr("REVERIE_LLM_PROVIDER", "claude")

	apiKey := os.Getenv("REVERIE_LLM_API_KEY")
	if apiKey == "" {
		// conventional provider keys work without renaming
		switch provider {
		case "claude":
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			apiKey = os.Getenv("OPENAI_API_KEY")
		case "gemini", "gemini-search":
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if apiKey == "" && provider != "ollama" {
		return LLMConfig{}, fmt.Errorf("no API key configured for llm provider %s", provider)
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   apiKey,
		Model:    os.Getenv("REVERIE_LLM_MODEL"),
		BaseURL:  os.Getenv("REVERIE_LLM_BASE_URL"),
	}, nil
}

// loadAgenticConfig configures the web-grounded backend. It stays disabled
// (empty provider) without a Gemini key.
func loadAgenticConfig() LLMConfig {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return LLMConfig{}
	}
	return LLMConfig{
		Provider: "gemini-search",
		APIKey:   apiKey,
		Model:    os.Getenv("REVERIE_AGENTIC_MODEL"),
	}
}

// loadReflectorConfig picks the backend for structured-output calls,
// defaulting to the main generation backend.
func loadReflectorConfig(fallback LLMConfig) LLMConfig {
	provider := os.Getenv("REVERIE_REFLECTOR_PROVIDER")
	if provider == "" {
		return fallback
	}
	return LLMConfig{
		Provider: provider,
		APIKey:   envOr("REVERIE_REFLECTOR_API_KEY", fallback.APIKey),
		Model:    os.Getenv("REVERIE_REFLECTOR_MODEL"),
		BaseURL:  os.Getenv("REVERIE_REFLECTOR_BASE_URL"),
	}
}

func loadEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Provider: envOr("REVERIE_EMBEDDER_PROVIDER", "ollama"),
		APIKey:   os.Getenv("GEMINI_API_KEY"),
		Model:    os.Getenv("REVERIE_EMBEDDER_MODEL"),
		BaseURL:  os.Getenv("REVERIE_EMBEDDER_URL"),
	}
}

func loadPromptConfig() PromptConfig {
	return PromptConfig{
		VectorTopK:       envInt("REVERIE_VECTOR_TOPK", 10),
		TokenBudget:      envInt("REVERIE_TOKEN_BUDGET", 8192),
		StylePreferences: os.Getenv("REVERIE_STYLE_PREFS") == "true",
		TemplatePack:     os.Getenv("REVERIE_TEMPLATES"),
	}
}

func loadGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature: envFloat("REVERIE_TEMPERATURE", 0.9),
		MaxTokens:   envInt("REVERIE_MAX_TOKENS", 4096),
	}
}

func loadReflectionConfig() ReflectionConfig {
	return ReflectionConfig{
		Enabled:         os.Getenv("REVERIE_REFLECTION") != "false",
		DisableRecovery: os.Getenv("REVERIE_RECOVERY_DISABLED") == "true",
		Temperature:     envFloat("REVERIE_REFLECTION_TEMPERATURE", 0.3),
	}
}

func loadMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		ReindexSchedule: envOr("REVERIE_REINDEX_SCHEDULE", "@every 5m"),
		ReindexBatch:    envInt("REVERIE_REINDEX_BATCH", 20),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
