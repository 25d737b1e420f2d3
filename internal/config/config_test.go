package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected Provider=gemini, got %s", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxTurns != 20 {
		t.Errorf("expected MaxTurns=20, got %d", cfg.Agent.MaxTurns)
	}
	if cfg.GetShellTimeout() != 120*time.Second {
		t.Errorf("expected shell timeout 120s, got %v", cfg.GetShellTimeout())
	}
	if cfg.GetCacheTTL() != 24*time.Hour {
		t.Errorf("expected cache TTL 24h, got %v", cfg.GetCacheTTL())
	}
	if len(cfg.Tools.TaintSources) == 0 || len(cfg.Tools.TaintSinks) == 0 {
		t.Error("expected default taint keyword lists")
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ULTRON_MODEL", "")
	t.Setenv("ULTRON_CACHE_DIR", "")
	t.Setenv("ULTRON_MAX_TURNS", "")

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "key-from-file"
	cfg.Agent.MaxTurns = 7
	cfg.Tools.TaintSinks = []string{"danger("}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.LLM.APIKey != "key-from-file" {
		t.Errorf("expected APIKey=key-from-file, got %s", loaded.LLM.APIKey)
	}
	if loaded.Agent.MaxTurns != 7 {
		t.Errorf("expected MaxTurns=7, got %d", loaded.Agent.MaxTurns)
	}
	if len(loaded.Tools.TaintSinks) != 1 || loaded.Tools.TaintSinks[0] != "danger(" {
		t.Errorf("unexpected sinks: %v", loaded.Tools.TaintSinks)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxTurns != DefaultConfig().Agent.MaxTurns {
		t.Errorf("expected default max turns")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("agent: [unterminated"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing API key")
	}

	cfg.LLM.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Agent.MaxTurns = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for max_turns=0")
	}

	cfg = DefaultConfig()
	cfg.LLM.APIKey = "k"
	cfg.LLM.Provider = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "gemini-2.5-flash"},
		{"2.0-flash", "gemini-2.0-flash"},
		{"  2.5-pro ", "gemini-2.5-pro"},
		{"gemini-exp-1206", "gemini-exp-1206"},
	}
	for _, tt := range tests {
		if got := ResolveModel(tt.key); got != tt.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shell.Timeout = "not-a-duration"
	cfg.Cache.TTL = "-5m"
	cfg.LLM.Timeout = "bogus"

	if cfg.GetShellTimeout() != 120*time.Second {
		t.Errorf("shell timeout fallback wrong: %v", cfg.GetShellTimeout())
	}
	if cfg.GetCacheTTL() != 24*time.Hour {
		t.Errorf("cache TTL fallback wrong: %v", cfg.GetCacheTTL())
	}
	if cfg.GetLLMTimeout() != 300*time.Second {
		t.Errorf("llm timeout fallback wrong: %v", cfg.GetLLMTimeout())
	}
}
