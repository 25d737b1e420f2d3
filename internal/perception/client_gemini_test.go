package perception

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"ultron/internal/agent"
	"ultron/internal/config"
	"ultron/internal/tools"
)

type fakeModels struct {
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	lastModel string
	lastCfg   *genai.GenerateContentConfig
	lastCont  []*genai.Content
	tokens    int32
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.lastModel, f.lastCfg, f.lastCont = model, cfg, contents
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeModels) CountTokens(ctx context.Context, model string, contents []*genai.Content, cfg *genai.CountTokensConfig) (*genai.CountTokensResponse, error) {
	return &genai.CountTokensResponse{TotalTokens: f.tokens}, nil
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content:      &genai.Content{Role: genai.RoleModel, Parts: parts},
		FinishReason: genai.FinishReasonStop,
	}}}
}

func newTestBackend(f *fakeModels) *GeminiBackend {
	llm := config.DefaultConfig().LLM
	llm.Model = "2.5-pro"
	b := newGeminiBackend(f, llm, time.Minute)
	b.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return b
}

func TestNewGeminiBackendRequiresKey(t *testing.T) {
	_, err := NewGeminiBackend(context.Background(), config.LLMConfig{}, time.Second)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestFunctionDeclarations(t *testing.T) {
	tool := &tools.Tool{
		Name:        "search_codebase",
		Description: "search",
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern":     {Type: "string", Description: "regex"},
				"ignore_case": {Type: "boolean"},
				"limit":       {Type: "integer"},
				"sinks":       {Type: "array", Items: &tools.PropertyItems{Type: "string"}},
				"mode":        {Type: "string", Enum: []any{"fast", "deep"}},
			},
		},
	}
	decls := FunctionDeclarations([]*tools.Tool{tool})
	require.Len(t, decls, 1)

	want := &genai.FunctionDeclaration{
		Name:        "search_codebase",
		Description: "search",
		Parameters: &genai.Schema{
			Type:     genai.TypeObject,
			Required: []string{"pattern"},
			Properties: map[string]*genai.Schema{
				"pattern":     {Type: genai.TypeString, Description: "regex"},
				"ignore_case": {Type: genai.TypeBoolean},
				"limit":       {Type: genai.TypeInteger},
				"sinks":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"mode":        {Type: genai.TypeString, Enum: []string{"fast", "deep"}},
			},
		},
	}
	if diff := cmp.Diff(want, decls[0]); diff != "" {
		t.Errorf("declaration mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryContents(t *testing.T) {
	call := &agent.ToolCall{ID: "c1", Name: "read_file_content", Args: map[string]any{"file_path": "a.py"}}
	history := []agent.Turn{
		{Role: agent.RoleUser, Text: "mission"},
		{Role: agent.RoleModel, Text: "look at a.py", Call: call},
		{Role: agent.RoleTool, ToolName: "read_file_content", CallID: "c1", Observation: &tools.Observation{Text: "print(1)"}},
		{Role: agent.RoleModel, Call: &agent.ToolCall{Name: "x"}},
		{Role: agent.RoleTool, ToolName: "x", Observation: &tools.Observation{Text: "Error: nope", Failed: true}},
	}
	contents := HistoryContents(history)
	require.Len(t, contents, 5)

	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "mission", contents[0].Parts[0].Text)

	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "look at a.py", contents[1].Parts[0].Text)
	assert.Equal(t, "read_file_content", contents[1].Parts[1].FunctionCall.Name)

	assert.Equal(t, genai.RoleUser, contents[2].Role)
	fr := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "c1", fr.ID)
	assert.Equal(t, map[string]any{"output": "print(1)"}, fr.Response)

	assert.Equal(t, map[string]any{"error": "Error: nope"}, contents[4].Parts[0].FunctionResponse.Response)
}

func TestAgentResponse(t *testing.T) {
	resp := textResponse(
		&genai.Part{Text: "thinking", Thought: true},
		&genai.Part{Text: "I will read"},
		&genai.Part{FunctionCall: &genai.FunctionCall{ID: "1", Name: "read_file_content", Args: map[string]any{"file_path": "x"}}},
	)
	got, err := AgentResponse(resp)
	require.NoError(t, err)

	want := &agent.Response{
		FinishReason: string(genai.FinishReasonStop),
		Parts: []agent.Part{
			{Text: "thinking", Thought: true},
			{Text: "I will read"},
			{Call: &agent.ToolCall{ID: "1", Name: "read_file_content", Args: map[string]any{"file_path": "x"}}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestAgentResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{"nil", nil, agent.ErrNoCandidates},
		{"no candidates", &genai.GenerateContentResponse{}, agent.ErrNoCandidates},
		{
			"prompt blocked",
			&genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety}},
			agent.ErrBlocked,
		},
		{
			"safety finish",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			agent.ErrBlocked,
		},
		{
			"no content",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}}},
			agent.ErrNoCandidates,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AgentResponse(tt.resp)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerateSendsToolsAndConfig(t *testing.T) {
	f := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse(&genai.Part{Text: "report"})}}
	b := newTestBackend(f)

	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{Name: "t", Execute: func(context.Context, *tools.Invocation) (string, error) { return "", nil }})

	resp, err := b.Generate(context.Background(), &agent.Request{
		History: []agent.Turn{{Role: agent.RoleUser, Text: "go"}},
		Tools:   reg.All(),
	})
	require.NoError(t, err)
	assert.Equal(t, "report", resp.Parts[0].Text)

	assert.Equal(t, "gemini-2.5-pro", f.lastModel)
	require.Len(t, f.lastCfg.Tools, 1)
	assert.Equal(t, "t", f.lastCfg.Tools[0].FunctionDeclarations[0].Name)
	require.NotNil(t, f.lastCfg.Temperature)
	assert.InDelta(t, 0.1, *f.lastCfg.Temperature, 1e-6)
	require.NotNil(t, f.lastCfg.ThinkingConfig)
	assert.True(t, f.lastCfg.ThinkingConfig.IncludeThoughts)
	assert.Empty(t, f.lastCfg.ResponseMIMEType)
}

func TestGenerateRetriesRateLimits(t *testing.T) {
	f := &fakeModels{
		errs:      []error{genai.APIError{Code: 429, Message: "slow down"}, genai.APIError{Code: 503}},
		responses: []*genai.GenerateContentResponse{nil, nil, textResponse(&genai.Part{Text: "ok"})},
	}
	b := newTestBackend(f)

	resp, err := b.Generate(context.Background(), &agent.Request{History: []agent.Turn{{Role: agent.RoleUser, Text: "go"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Parts[0].Text)
	assert.Equal(t, 3, f.calls)
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	f := &fakeModels{errs: []error{genai.APIError{Code: 400, Message: "bad"}}, responses: []*genai.GenerateContentResponse{nil}}
	b := newTestBackend(f)

	_, err := b.Generate(context.Background(), &agent.Request{History: []agent.Turn{{Role: agent.RoleUser, Text: "go"}}})
	assert.Error(t, err)
	assert.Equal(t, 1, f.calls)

	f = &fakeModels{errs: []error{errors.New("dial tcp: refused")}, responses: []*genai.GenerateContentResponse{nil}}
	b = newTestBackend(f)
	_, err = b.Generate(context.Background(), &agent.Request{History: []agent.Turn{{Role: agent.RoleUser, Text: "go"}}})
	assert.Error(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestGenerateJSON(t *testing.T) {
	f := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse(
		&genai.Part{Text: "reasoning", Thought: true},
		&genai.Part{Text: `{"summary": `},
		&genai.Part{Text: `"ok"}`},
	)}, tokens: 42}
	b := newTestBackend(f)

	text, err := b.GenerateJSON(context.Background(), "review this")
	require.NoError(t, err)
	assert.Equal(t, `{"summary": "ok"}`, text)
	assert.Equal(t, "application/json", f.lastCfg.ResponseMIMEType)
	assert.Empty(t, f.lastCfg.Tools)

	n, err := b.CountTokens(context.Background(), "review this")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, "gemini-2.5-pro", b.ModelName())
}
