// Package perception adapts model backends to the agent and review
// boundaries. The Gemini backend speaks google.golang.org/genai.
package perception

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"ultron/internal/agent"
	"ultron/internal/config"
	"ultron/internal/logging"
)

// ErrNoAPIKey is a configuration error raised before any session starts.
var ErrNoAPIKey = errors.New("gemini API key not configured")

// modelsAPI is the subset of *genai.Models the backend calls.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	CountTokens(ctx context.Context, model string, contents []*genai.Content, config *genai.CountTokensConfig) (*genai.CountTokensResponse, error)
}

// GeminiBackend implements agent.Backend and review.Model.
type GeminiBackend struct {
	models  modelsAPI
	model   string
	llm     config.LLMConfig
	timeout time.Duration

	// maxRetries bounds retries of rate-limited or unavailable requests.
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewGeminiBackend creates a backend from the LLM config.
func NewGeminiBackend(ctx context.Context, llm config.LLMConfig, timeout time.Duration) (*GeminiBackend, error) {
	if llm.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  llm.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiBackend(client.Models, llm, timeout), nil
}

func newGeminiBackend(models modelsAPI, llm config.LLMConfig, timeout time.Duration) *GeminiBackend {
	return &GeminiBackend{
		models:     models,
		model:      llm.ModelName(),
		llm:        llm,
		timeout:    timeout,
		maxRetries: 3,
		sleep:      sleepContext,
	}
}

// ModelName returns the backend model name.
func (b *GeminiBackend) ModelName() string { return b.model }

// Generate sends one agent turn: the full history plus tool declarations.
func (b *GeminiBackend) Generate(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	cfg := b.generationConfig()
	if decls := FunctionDeclarations(req.Tools); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if b.llm.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(b.llm.ThinkingBudget),
		}
	}

	contents := HistoryContents(req.History)
	logging.APIDebug("[Gemini] Generate: model=%s contents=%d tools=%d", b.model, len(contents), len(req.Tools))

	resp, err := b.generate(ctx, contents, cfg)
	if err != nil {
		return nil, err
	}
	return AgentResponse(resp)
}

// GenerateJSON sends a single-shot prompt and returns the concatenated
// text of the first candidate. Output is requested as application/json.
func (b *GeminiBackend) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	cfg := b.generationConfig()
	cfg.ResponseMIMEType = "application/json"
	cfg.CandidateCount = 1

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := b.generate(ctx, contents, cfg)
	if err != nil {
		return "", err
	}
	if err := checkBlocked(resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	if fr := resp.Candidates[0].FinishReason; fr == genai.FinishReasonMaxTokens {
		logging.API("[Gemini] GenerateJSON: output hit max tokens (%d bytes); recovery parser will repair", sb.Len())
	}
	return sb.String(), nil
}

// CountTokens returns the token count of text for the configured model.
func (b *GeminiBackend) CountTokens(ctx context.Context, text string) (int, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	resp, err := b.models.CountTokens(ctx, b.model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return 0, fmt.Errorf("token count failed: %w", err)
	}
	return int(resp.TotalTokens), nil
}

func (b *GeminiBackend) generationConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if b.llm.Temperature > 0 {
		cfg.Temperature = genai.Ptr(b.llm.Temperature)
	}
	if b.llm.TopK > 0 {
		cfg.TopK = genai.Ptr(b.llm.TopK)
	}
	if b.llm.TopP > 0 {
		cfg.TopP = genai.Ptr(b.llm.TopP)
	}
	if b.llm.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = b.llm.MaxOutputTokens
	}
	return cfg
}

// withTimeout applies the configured timeout when ctx has no deadline.
func (b *GeminiBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// generate calls the API, retrying rate limits and transient server errors
// with exponential backoff.
func (b *GeminiBackend) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			logging.API("[Gemini] Retrying in %v (attempt %d/%d): %v", delay, attempt, b.maxRetries, lastErr)
			if err := b.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("request cancelled while retrying: %w", lastErr)
			}
		}

		resp, err := b.models.GenerateContent(ctx, b.model, contents, cfg)
		if err == nil {
			logging.APIDebug("[Gemini] Response in %v", time.Since(start))
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	logging.Get(logging.CategoryAPI).Error("[Gemini] Request failed: %v", lastErr)
	return nil, fmt.Errorf("gemini request failed: %w", lastErr)
}

func retryable(err error) bool {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return false
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
