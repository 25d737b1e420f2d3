package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"ultron/internal/logging"
	"ultron/internal/sandbox"
)

// Registry holds all available tools and provides lookup functionality.
// It is thread-safe; once populated it is shared read-only between sessions.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	// Set default priority if not specified
	if tool.Priority == 0 {
		tool.Priority = 50
	}

	r.tools[tool.Name] = tool

	logging.ToolsDebug("Registered tool: %s (category=%s, priority=%d)", tool.Name, tool.Category, tool.Priority)
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns all registered tools ordered by priority, then name.
// This is the order declarations are sent to the model.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Dispatch runs a tool by name and always returns an observation.
// Unknown tools, argument errors, path violations, handler errors and
// handler panics all come back as "Error: ..." text.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any, env *Env) Observation {
	start := time.Now()
	limit := DefaultLimits().MaxObservationBytes
	if env != nil && env.Limits.MaxObservationBytes > 0 {
		limit = env.Limits.MaxObservationBytes
	}

	tool := r.Get(name)
	if tool == nil {
		logging.Tools("Unknown tool requested: %s", name)
		return failure(fmt.Errorf("%w: unknown tool '%s'. Available tools: %s",
			ErrToolNotFound, name, strings.Join(r.Names(), ", ")), start, limit)
	}

	inv, err := r.prepare(tool, args, env)
	if err != nil {
		logging.ToolsDebug("Tool %s rejected arguments: %v", name, err)
		if errors.Is(err, sandbox.ErrPathViolation) && env != nil {
			logging.AuditWithSession(env.SessionID).Log(logging.AuditEvent{
				EventType: logging.AuditPathViolation,
				Target:    name,
				Error:     err.Error(),
			})
		}
		return failure(err, start, limit)
	}

	logging.ToolsDebug("Executing tool: %s", tool.Name)
	result, err := runHandler(ctx, tool, inv)
	duration := time.Since(start)
	logging.ToolsDebug("Tool %s completed in %v (success=%v)", tool.Name, duration, err == nil)

	if err != nil {
		return failure(err, start, limit)
	}

	text, truncated := truncate(result, limit)
	return Observation{Text: text, Truncated: truncated, Duration: duration}
}

// prepare validates args against the schema and resolves path arguments.
func (r *Registry) prepare(tool *Tool, args map[string]any, env *Env) (*Invocation, error) {
	normalized, err := validateArgs(tool, args)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{
		Tool:  tool.Name,
		Args:  normalized,
		Paths: make(map[string]sandbox.Path),
		Env:   env,
	}

	for key, prop := range tool.Schema.Properties {
		if !prop.Path {
			continue
		}
		raw, ok := normalized[key].(string)
		if !ok {
			continue
		}
		if env == nil || env.Sandbox == nil {
			return nil, fmt.Errorf("tool %s requires a sandbox", tool.Name)
		}
		p := env.Sandbox.Resolve(raw)
		if err := p.Err(); err != nil {
			return nil, err
		}
		inv.Paths[key] = p
	}
	return inv, nil
}

func runHandler(ctx context.Context, tool *Tool, inv *Invocation) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Get(logging.CategoryTools).Error("Tool %s panicked: %v", tool.Name, rec)
			err = fmt.Errorf("%w: %s: %v", ErrToolPanic, tool.Name, rec)
		}
	}()
	return tool.Execute(ctx, inv)
}

func failure(err error, start time.Time, limit int) Observation {
	text, truncated := truncate("Error: "+err.Error(), limit)
	return Observation{Text: text, Truncated: truncated, Failed: true, Duration: time.Since(start)}
}

// truncate cuts s to at most limit bytes on a rune boundary and appends a
// marker stating how much was kept.
func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n... [observation truncated: showing %d of %d bytes]", cut, len(s)), true
}
