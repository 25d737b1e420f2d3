package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ultron/internal/sandbox"
)

func noop(ctx context.Context, inv *Invocation) (string, error) { return "", nil }

func newEnv(t *testing.T) *Env {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := sandbox.NewResolver(root)
	if err != nil {
		t.Fatal(err)
	}
	return NewEnv("test-session", r, DefaultLimits())
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d tools", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Category:    CategoryRead,
		Execute: func(ctx context.Context, inv *Invocation) (string, error) {
			return "success", nil
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Priority != 50 {
		t.Errorf("expected default priority 50, got %d", got.Priority)
	}
	if reg.Get("other") != nil {
		t.Error("Get returned a tool that was never registered")
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 tool, got %d", reg.Count())
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	tool := &Tool{Name: "dupe", Execute: noop}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	err := reg.Register(tool)
	if !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected ErrToolAlreadyRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{
			name:    "empty name",
			tool:    &Tool{Name: "", Execute: noop},
			wantErr: ErrToolNameEmpty,
		},
		{
			name:    "nil execute",
			tool:    &Tool{Name: "no_exec"},
			wantErr: ErrToolExecuteNil,
		},
		{
			name: "required without property",
			tool: &Tool{
				Name:    "bad_schema",
				Execute: noop,
				Schema:  ToolSchema{Required: []string{"path"}},
			},
			wantErr: ErrSchemaMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.tool)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllOrdering(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{Name: "b", Execute: noop, Priority: 10})
	reg.MustRegister(&Tool{Name: "a", Execute: noop, Priority: 10})
	reg.MustRegister(&Tool{Name: "c", Execute: noop, Priority: 90, Category: CategoryScan})

	var names []string
	for _, tool := range reg.All() {
		names = append(names, tool.Name)
	}
	if strings.Join(names, ",") != "c,a,b" {
		t.Errorf("unexpected order: %v", names)
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestDispatchUnknownTool(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{Name: "known", Execute: noop})

	obs := reg.Dispatch(context.Background(), "nope", nil, newEnv(t))
	if !obs.Failed {
		t.Error("expected failed observation")
	}
	if !strings.Contains(obs.Text, "unknown tool 'nope'") || !strings.Contains(obs.Text, "known") {
		t.Errorf("unexpected text: %s", obs.Text)
	}
	if !strings.HasPrefix(obs.Text, "Error: ") {
		t.Errorf("expected Error prefix: %s", obs.Text)
	}
}

func TestDispatchArgumentErrors(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.MustRegister(&Tool{
		Name: "typed",
		Execute: func(ctx context.Context, inv *Invocation) (string, error) {
			called = true
			return "", nil
		},
		Schema: ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]Property{
				"pattern": {Type: "string"},
				"limit":   {Type: "integer"},
			},
		},
	})
	env := newEnv(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing", map[string]any{}, "missing required argument"},
		{"nil required", map[string]any{"pattern": nil}, "missing required argument"},
		{"wrong type", map[string]any{"pattern": 42}, "invalid argument type"},
		{"fractional int", map[string]any{"pattern": "x", "limit": 1.5}, "invalid argument type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := reg.Dispatch(context.Background(), "typed", tt.args, env)
			if !obs.Failed || !strings.Contains(obs.Text, tt.want) {
				t.Errorf("got %+v, want text containing %q", obs, tt.want)
			}
		})
	}
	if called {
		t.Error("handler must not run on invalid arguments")
	}
}

func TestDispatchNormalizesArgs(t *testing.T) {
	reg := NewRegistry()
	var got *Invocation
	reg.MustRegister(&Tool{
		Name: "norm",
		Execute: func(ctx context.Context, inv *Invocation) (string, error) {
			got = inv
			return "ok", nil
		},
		Schema: ToolSchema{
			Properties: map[string]Property{
				"n":     {Type: "integer"},
				"flag":  {Type: "boolean", Default: true},
				"quote": {Type: "integer"},
			},
		},
	})

	obs := reg.Dispatch(context.Background(), "norm", map[string]any{"n": float64(3), "quote": "7"}, newEnv(t))
	if obs.Failed || obs.Text != "ok" {
		t.Fatalf("unexpected observation: %+v", obs)
	}
	if got.Int("n", 0) != 3 || got.Int("quote", 0) != 7 {
		t.Errorf("integers not normalized: %v", got.Args)
	}
	if !got.Bool("flag", false) {
		t.Error("default not applied")
	}
}

func TestDispatchResolvesPaths(t *testing.T) {
	reg := NewRegistry()
	var resolved sandbox.Path
	reg.MustRegister(&Tool{
		Name: "reader",
		Execute: func(ctx context.Context, inv *Invocation) (string, error) {
			resolved = inv.Path("file_path")
			return "read", nil
		},
		Schema: ToolSchema{
			Required:   []string{"file_path"},
			Properties: map[string]Property{"file_path": {Type: "string", Path: true}},
		},
	})
	env := newEnv(t)

	obs := reg.Dispatch(context.Background(), "reader", map[string]any{"file_path": "a.txt"}, env)
	if obs.Failed {
		t.Fatalf("unexpected failure: %s", obs.Text)
	}
	if resolved.Resolved != filepath.Join(env.Sandbox.Root(), "a.txt") {
		t.Errorf("unexpected resolved path: %s", resolved.Resolved)
	}

	resolved = sandbox.Path{}
	obs = reg.Dispatch(context.Background(), "reader", map[string]any{"file_path": "../../etc/passwd"}, env)
	if !obs.Failed || !strings.Contains(obs.Text, "traversal") {
		t.Errorf("expected traversal error, got %s", obs.Text)
	}
	if resolved.Resolved != "" {
		t.Error("handler must not run for a violating path")
	}
}

func TestDispatchHandlerErrorAndPanic(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{Name: "fails", Execute: func(ctx context.Context, inv *Invocation) (string, error) {
		return "", errors.New("disk on fire")
	}})
	reg.MustRegister(&Tool{Name: "panics", Execute: func(ctx context.Context, inv *Invocation) (string, error) {
		panic("boom")
	}})
	env := newEnv(t)

	obs := reg.Dispatch(context.Background(), "fails", nil, env)
	if obs.Text != "Error: disk on fire" || !obs.Failed {
		t.Errorf("unexpected: %+v", obs)
	}

	obs = reg.Dispatch(context.Background(), "panics", nil, env)
	if !obs.Failed || !strings.Contains(obs.Text, "boom") {
		t.Errorf("unexpected: %+v", obs)
	}
}

func TestDispatchTruncates(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{Name: "big", Execute: func(ctx context.Context, inv *Invocation) (string, error) {
		return strings.Repeat("é", 5000), nil
	}})
	env := newEnv(t)
	env.Limits.MaxObservationBytes = 1001

	obs := reg.Dispatch(context.Background(), "big", nil, env)
	if !obs.Truncated {
		t.Fatal("expected truncation")
	}
	body := obs.Text[:strings.Index(obs.Text, "\n... [observation truncated")]
	if len(body) != 1000 {
		t.Errorf("expected cut on rune boundary at 1000 bytes, got %d", len(body))
	}
	if !strings.Contains(obs.Text, "of 10000 bytes") {
		t.Errorf("missing marker: %s", obs.Text[len(body):])
	}
}

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	os.WriteFile(path, []byte("one"), 0644)
	info, _ := os.Stat(path)

	c := NewFileCache()
	c.Put(path, info, "one")
	if got, ok := c.Get(path, info); !ok || got != "one" {
		t.Fatalf("expected hit, got %q %v", got, ok)
	}

	os.WriteFile(path, []byte("three"), 0644)
	info2, _ := os.Stat(path)
	if _, ok := c.Get(path, info2); ok {
		t.Error("expected miss after size change")
	}

	c.Invalidate(path)
	if c.Len() != 0 {
		t.Error("expected empty cache")
	}
}
