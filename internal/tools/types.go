// Package tools provides the registry and dispatcher for sandboxed
// investigation tools.
//
// Each tool is a strongly typed handler plus an argument schema. The
// dispatcher validates arguments against the schema, resolves every
// path-typed argument through the sandbox, and converts every failure into
// observation text so a malformed tool call can never unwind the agent loop.
//
// Architecture:
//
//	ToolCall → Registry.Dispatch() → validateArgs → sandbox.Resolve → Tool.Execute() → Observation
package tools

import (
	"context"
	"time"

	"ultron/internal/sandbox"
)

// ToolCategory groups tools by what they touch.
type ToolCategory string

const (
	// CategoryRead covers tools that read single files.
	CategoryRead ToolCategory = "/read"

	// CategoryScan covers pattern, taint and structural scanners.
	CategoryScan ToolCategory = "/scan"

	// CategoryExec covers subprocess execution.
	CategoryExec ToolCategory = "/exec"

	// CategoryWrite covers tools that modify the sandbox.
	CategoryWrite ToolCategory = "/write"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`

	// Path marks a string argument naming a file or directory relative to
	// the sandbox root. The dispatcher resolves it before the handler runs.
	Path bool `json:"-"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// The returned string becomes the observation text; a non-nil error is
// rendered as an "Error: ..." observation instead.
type ExecuteFunc func(ctx context.Context, inv *Invocation) (string, error)

// Tool defines a sandboxed tool the agent can call.
type Tool struct {
	// Name is the unique identifier the model uses to call the tool.
	Name string

	// Description explains what the tool does.
	// Sent to the model as part of the function declaration.
	Description string

	// Category classifies the tool.
	Category ToolCategory

	// Execute runs the tool with validated arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority orders declarations sent to the model.
	// Higher priority tools are listed first (default 50).
	Priority int
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	for _, req := range t.Schema.Required {
		if _, ok := t.Schema.Properties[req]; !ok {
			return ErrSchemaMismatch
		}
	}
	return nil
}

// Limits bounds the work a single tool call may do.
type Limits struct {
	MaxObservationBytes int
	MaxReadBytes        int
	MaxSearchMatches    int
	TreeMaxEntries      int
	ExcludedDirs        []string
	TaintSources        []string
	TaintSinks          []string
	ShellTimeout        time.Duration
	ShellMaxOutputBytes int
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxObservationBytes: 64 * 1024,
		MaxReadBytes:        100 * 1024,
		MaxSearchMatches:    50,
		TreeMaxEntries:      2000,
		ShellTimeout:        120 * time.Second,
		ShellMaxOutputBytes: 50000,
	}
}

// Env is the per-session environment handed to every tool call.
// It carries no process-wide state: two sessions never share an Env.
type Env struct {
	SessionID string
	Sandbox   *sandbox.Resolver
	Files     *FileCache
	Limits    Limits
}

// NewEnv builds a session environment rooted at the resolver's root.
func NewEnv(sessionID string, resolver *sandbox.Resolver, limits Limits) *Env {
	return &Env{
		SessionID: sessionID,
		Sandbox:   resolver,
		Files:     NewFileCache(),
		Limits:    limits,
	}
}

// Observation is the textual result of a tool call fed back to the model.
type Observation struct {
	// Text is always set, including for failures.
	Text string

	// Truncated is true when Text was cut to the observation cap.
	Truncated bool

	// Failed is true when Text describes an error rather than a result.
	Failed bool

	// Duration is how long the handler ran.
	Duration time.Duration
}
