package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DBPath != "reverie.db" {
		t.Errorf("unexpected db path: %s", cfg.DBPath)
	}
	if cfg.LLM.Provider != "claude" || cfg.LLM.APIKey != "test-key" {
		t.Errorf("conventional key not picked up: %+v", cfg.LLM)
	}
	if cfg.Prompt.VectorTopK != 10 || cfg.Prompt.TokenBudget != 8192 {
		t.Errorf("prompt defaults wrong: %+v", cfg.Prompt)
	}
	if !cfg.Reflection.Enabled {
		t.Error("reflection should default on")
	}
	if cfg.Agentic.Provider != "" {
		t.Error("agentic backend should stay disabled without a Gemini key")
	}
	if cfg.Maintenance.ReindexSchedule != "@every 5m" {
		t.Errorf("unexpected reindex schedule: %s", cfg.Maintenance.ReindexSchedule)
	}
}

func TestLoadRequiresKey(t *testing.T) {
	t.Setenv("REVERIE_LLM_PROVIDER", "openai")
	t.Setenv("REVERIE_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("expected an error without an API key")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REVERIE_LLM_PROVIDER", "ollama")
	t.Setenv("REVERIE_VECTOR_TOPK", "25")
	t.Setenv("REVERIE_TEMPERATURE", "0.4")
	t.Setenv("REVERIE_REFLECTION", "false")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Prompt.VectorTopK != 25 {
		t.Errorf("topk override ignored: %d", cfg.Prompt.VectorTopK)
	}
	if cfg.Generation.Temperature != 0.4 {
		t.Errorf("temperature override ignored: %f", cfg.Generation.Temperature)
	}
	if cfg.Reflection.Enabled {
		t.Error("reflection disable ignored")
	}
	if cfg.Agentic.Provider != "gemini-search" {
		t.Error("agentic backend should enable with a Gemini key")
	}
}
