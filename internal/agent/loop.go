package agent

import (
	"context"
	"fmt"
	"time"

	"ultron/internal/logging"
	"ultron/internal/sandbox"
	"ultron/internal/tools"
)

// Terminal reports for sessions that did not end with a model report.
const (
	IncompleteReport = "Agent reached maximum turns without providing a final report."
	EmptyReport      = "Agent finished without a textual report."
)

// FailureReport renders the terminal report for a backend error.
func FailureReport(err error) string {
	return fmt.Sprintf("Agent stopped: the model backend failed (%v). The investigation did not complete.", err)
}

// DefaultMaxTurns is used when no budget is configured.
const DefaultMaxTurns = 20

// Loop drives sessions against one backend and tool registry. A Loop holds
// no session state and may run many sessions concurrently.
type Loop struct {
	backend  Backend
	registry *tools.Registry
	limits   tools.Limits
	maxTurns int
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxTurns sets the tool-call budget per session.
func WithMaxTurns(n int) Option {
	return func(l *Loop) { l.maxTurns = n }
}

// WithLimits sets the per-call tool limits.
func WithLimits(limits tools.Limits) Option {
	return func(l *Loop) { l.limits = limits }
}

// NewLoop validates its collaborators. Errors here are configuration errors.
func NewLoop(backend Backend, registry *tools.Registry, opts ...Option) (*Loop, error) {
	l := &Loop{
		backend:  backend,
		registry: registry,
		limits:   tools.DefaultLimits(),
		maxTurns: DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.backend == nil {
		return nil, ErrNilBackend
	}
	if l.registry == nil {
		return nil, ErrNilRegistry
	}
	if l.maxTurns < 1 {
		return nil, ErrInvalidMaxTurns
	}
	return l, nil
}

// Run investigates the codebase at root, seeding the history with
// initialPrompt. It returns an error only when root is unusable; every
// other outcome is a finished session with a terminal report.
func (l *Loop) Run(ctx context.Context, root, initialPrompt string) (*Session, error) {
	resolver, err := sandbox.NewResolver(root)
	if err != nil {
		return nil, err
	}

	session := NewSession(resolver.Root(), l.maxTurns)
	env := tools.NewEnv(session.ID, resolver, l.limits)
	audit := logging.AuditWithSession(session.ID)
	decls := l.registry.All()

	logging.Agent("Session %s started: root=%s max_turns=%d", session.ID, session.Root, session.MaxTurns)
	audit.Log(logging.AuditEvent{EventType: logging.AuditSessionStart, Target: session.Root, Success: true})

	session.append(Turn{Role: RoleUser, Text: initialPrompt})

	for !session.Finished() {
		if session.TurnCount >= session.MaxTurns {
			session.finish(StopMaxTurns, IncompleteReport)
			break
		}
		l.step(ctx, session, env, decls, audit)
	}

	logging.Agent("Session %s finished: reason=%s turns=%d", session.ID, session.StopReason, session.TurnCount)
	audit.SessionEnd(session.TurnCount, string(session.StopReason))
	return session, nil
}

// step runs one AWAITING_MODEL transition: either a tool dispatch that
// appends two turns, or a terminal state.
func (l *Loop) step(ctx context.Context, session *Session, env *tools.Env, decls []*tools.Tool, audit *logging.AuditLogger) {
	turn := session.TurnCount + 1
	audit.Log(logging.AuditEvent{EventType: logging.AuditTurnStart, Turn: turn, Success: true})
	logging.AgentDebug("Session %s turn %d: sending %d history entries", session.ID, turn, len(session.History))

	start := time.Now()
	resp, err := l.backend.Generate(ctx, &Request{History: session.History, Tools: decls})
	if err != nil {
		logging.AgentWarn("Session %s turn %d: backend error: %v", session.ID, turn, err)
		audit.Log(logging.AuditEvent{EventType: logging.AuditLLMError, Turn: turn, Error: err.Error()})
		session.finish(StopBackendError, FailureReport(err))
		return
	}
	audit.Log(logging.AuditEvent{
		EventType:  logging.AuditLLMRequest,
		Turn:       turn,
		Success:    true,
		DurationMs: time.Since(start).Milliseconds(),
	})

	switch reply := Interpret(resp).(type) {
	case ToolRequest:
		if reply.Thought != "" {
			logging.Agent("Session %s turn %d thought: %s", session.ID, turn, reply.Thought)
		}
		if reply.Dropped > 0 {
			logging.AgentWarn("Session %s turn %d: reply had %d extra tool calls; only %s is honored",
				session.ID, turn, reply.Dropped, reply.Call.Name)
		}

		call := reply.Call
		session.append(Turn{Role: RoleModel, Text: reply.Thought, Call: &call})

		audit.ToolInvoke(turn, call.Name)
		obs := l.registry.Dispatch(ctx, call.Name, call.Args, env)
		errText := ""
		if obs.Failed {
			errText = obs.Text
		}
		audit.ToolComplete(turn, call.Name, obs.Duration, errText)
		logging.AgentDebug("Session %s turn %d: %s returned %d bytes (failed=%v truncated=%v)",
			session.ID, turn, call.Name, len(obs.Text), obs.Failed, obs.Truncated)

		session.append(Turn{Role: RoleTool, Observation: &obs, ToolName: call.Name, CallID: call.ID})
		session.TurnCount++

	case FinalReport:
		if reply.Thought != "" {
			logging.AgentDebug("Session %s turn %d thought: %s", session.ID, turn, reply.Thought)
		}
		session.append(Turn{Role: RoleModel, Text: reply.Text})
		session.finish(StopReport, reply.Text)

	case EmptyReply:
		session.finish(StopEmpty, EmptyReport)
	}
}
