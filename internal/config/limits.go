package config

import "fmt"

// AgentConfig bounds a single investigation session.
type AgentConfig struct {
	MaxTurns            int `yaml:"max_turns" json:"max_turns"`
	MaxObservationBytes int `yaml:"max_observation_bytes" json:"max_observation_bytes"` // Observation text cap fed back to the model
	Parallelism         int `yaml:"parallelism" json:"parallelism"`                     // Worker slots for parallel investigations
}

// ToolsConfig bounds the static scan tools.
type ToolsConfig struct {
	MaxReadBytes     int      `yaml:"max_read_bytes" json:"max_read_bytes"`
	MaxSearchMatches int      `yaml:"max_search_matches" json:"max_search_matches"`
	TreeMaxEntries   int      `yaml:"tree_max_entries" json:"tree_max_entries"`
	ExcludedDirs     []string `yaml:"excluded_dirs" json:"excluded_dirs"`
	TaintSources     []string `yaml:"taint_sources" json:"taint_sources"`
	TaintSinks       []string `yaml:"taint_sinks" json:"taint_sinks"`
}

// ShellConfig bounds the shell execution tool.
type ShellConfig struct {
	Timeout        string `yaml:"timeout" json:"timeout"`
	MaxOutputBytes int    `yaml:"max_output_bytes" json:"max_output_bytes"`
}

// ValidateLimits checks that limits are within acceptable ranges.
func (c *Config) ValidateLimits() error {
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be >= 1")
	}
	if c.Agent.MaxObservationBytes < 1024 {
		return fmt.Errorf("agent.max_observation_bytes must be >= 1024")
	}
	if c.Agent.Parallelism < 1 {
		return fmt.Errorf("agent.parallelism must be >= 1")
	}
	if c.Tools.MaxReadBytes < 1 {
		return fmt.Errorf("tools.max_read_bytes must be >= 1")
	}
	if c.Tools.MaxSearchMatches < 1 {
		return fmt.Errorf("tools.max_search_matches must be >= 1")
	}
	if c.Shell.MaxOutputBytes < 1 {
		return fmt.Errorf("shell.max_output_bytes must be >= 1")
	}
	return nil
}
