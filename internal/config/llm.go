package config

import "strings"

// LLMConfig configures the model backend.
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"` // model key or raw model name
	Timeout         string  `yaml:"timeout"`
	Temperature     float32 `yaml:"temperature"`
	TopK            float32 `yaml:"top_k"`
	TopP            float32 `yaml:"top_p"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`

	// ThinkingBudget caps reasoning tokens for models that support it.
	// Zero disables thought output.
	ThinkingBudget int32 `yaml:"thinking_budget"`
}

// DefaultModelKey is used when no model is configured.
const DefaultModelKey = "2.5-flash"

// AvailableModels maps short model keys to backend model names.
var AvailableModels = map[string]string{
	"2.0-flash-lite": "gemini-2.0-flash-lite",
	"2.0-flash":      "gemini-2.0-flash",
	"2.5-flash":      "gemini-2.5-flash",
	"2.5-pro":        "gemini-2.5-pro",
}

// ResolveModel maps a model key to its backend name.
// Unknown keys are treated as raw model names.
func ResolveModel(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultModelKey
	}
	if name, ok := AvailableModels[key]; ok {
		return name
	}
	return key
}

// ModelName returns the backend model name for this config.
func (c *LLMConfig) ModelName() string {
	return ResolveModel(c.Model)
}
