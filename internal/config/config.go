package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is relative to the workspace.
const DefaultConfigPath = ".ultron/config.yaml"

// Config holds all ultron configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Tools   ToolsConfig   `yaml:"tools"`
	Shell   ShellConfig   `yaml:"shell"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig configures the review result cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty = ~/.cache/ultron
	TTL     string `yaml:"ttl"`
}

// DefaultTaintSources are keywords that usually mark untrusted input.
var DefaultTaintSources = []string{
	"request.", "req.body", "req.query", "req.params", "FormValue", "URL.Query",
	"$_GET", "$_POST", "$_REQUEST", "sys.argv", "os.Args", "getenv", "Getenv",
	"input(", "stdin", "recv(", "argv", "getParameter",
}

// DefaultTaintSinks are keywords that usually mark security-sensitive operations.
var DefaultTaintSinks = []string{
	"exec(", "Exec(", "system(", "popen", "Popen", "subprocess", "eval(",
	"os/exec", "Command(", "query(", "Query(", "execute(", "raw(",
	"strcpy", "strcat", "sprintf", "gets(", "memcpy", "innerHTML",
	"pickle.loads", "yaml.load", "unserialize", "deserialize", "open(",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           DefaultModelKey,
			Timeout:         "300s",
			Temperature:     0.1,
			TopK:            20,
			TopP:            0.8,
			MaxOutputTokens: 8192,
			ThinkingBudget:  2048,
		},
		Agent: AgentConfig{
			MaxTurns:            20,
			MaxObservationBytes: 64 * 1024,
			Parallelism:         2,
		},
		Tools: ToolsConfig{
			MaxReadBytes:     100 * 1024,
			MaxSearchMatches: 50,
			TreeMaxEntries:   2000,
			ExcludedDirs:     []string{"__pycache__", "venv", "node_modules", "vendor"},
			TaintSources:     append([]string(nil), DefaultTaintSources...),
			TaintSinks:       append([]string(nil), DefaultTaintSinks...),
		},
		Shell: ShellConfig{
			Timeout:        "120s",
			MaxOutputBytes: 50000,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     "24h",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if config file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if model := os.Getenv("ULTRON_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if dir := os.Getenv("ULTRON_CACHE_DIR"); dir != "" {
		c.Cache.Dir = dir
	}
	if v := os.Getenv("ULTRON_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxTurns = n
		}
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// GetShellTimeout returns the shell tool timeout as a duration.
func (c *Config) GetShellTimeout() time.Duration {
	d, err := time.ParseDuration(c.Shell.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// GetCacheTTL returns the cache expiry window.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// GetCacheDir returns the cache directory, defaulting to ~/.cache/ultron.
func (c *Config) GetCacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "ultron")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "ultron")
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	return c.ValidateLimits()
}
