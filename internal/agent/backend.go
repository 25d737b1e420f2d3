package agent

import (
	"context"

	"ultron/internal/tools"
)

// Part is one segment of a model reply.
type Part struct {
	Text string
	// Thought marks reasoning the backend flagged as internal thinking.
	// Thought parts are logged but never become the report.
	Thought bool
	Call    *ToolCall
}

// Request is what the loop sends each turn: the full ordered history and
// the tool declarations.
type Request struct {
	History []Turn
	Tools   []*tools.Tool
}

// Response is the backend's reply.
type Response struct {
	Parts        []Part
	FinishReason string
}

// Backend is the model boundary. Implementations translate Request into
// their transport and return ErrBlocked or ErrNoCandidates (wrapped) when
// the model produced nothing usable. Retries belong to the implementation.
type Backend interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req *Request) (*Response, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
