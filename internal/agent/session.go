// Package agent runs the investigation turn loop.
//
// A session alternates strictly between awaiting the model and running one
// tool. Each model reply is interpreted as exactly one of ToolRequest,
// FinalReport or EmptyReply; only ToolRequest continues the loop. The loop
// ends with a terminal report string in every case, including backend
// failures and an exhausted turn budget.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ultron/internal/tools"
)

// Role tags a turn in the conversation history.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID is the backend's call identifier, echoed back with the observation.
	ID   string
	Name string
	Args map[string]any
}

// Turn is one immutable history entry. Exactly one of Text, Call or
// Observation carries the content, except model turns, which may carry
// the pre-action thought in Text alongside Call.
type Turn struct {
	Role        Role
	Text        string
	Call        *ToolCall
	Observation *tools.Observation
	// ToolName names the tool an observation belongs to.
	ToolName string
	// CallID links an observation to its call.
	CallID string
}

// StopReason records why a session ended.
type StopReason string

const (
	StopNone         StopReason = ""
	StopReport       StopReason = "report"
	StopEmpty        StopReason = "empty_reply"
	StopMaxTurns     StopReason = "max_turns"
	StopBackendError StopReason = "backend_error"
)

// Session is the state of one investigation. It is owned by a single
// Loop.Run call and mutated only by appending turns.
type Session struct {
	ID        string
	Root      string
	History   []Turn
	TurnCount int
	MaxTurns  int

	// Report is the terminal report; empty until the session ends.
	Report     string
	StopReason StopReason
}

// NewSession creates a session with a fresh ID.
func NewSession(root string, maxTurns int) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Root:     root,
		MaxTurns: maxTurns,
	}
}

// Finished reports whether the session has a terminal report.
func (s *Session) Finished() bool {
	return s.StopReason != StopNone
}

// PendingCall returns the last tool call that has no observation yet.
func (s *Session) PendingCall() *ToolCall {
	if len(s.History) == 0 {
		return nil
	}
	last := s.History[len(s.History)-1]
	if last.Role == RoleModel && last.Call != nil {
		return last.Call
	}
	return nil
}

func (s *Session) append(t Turn) {
	s.History = append(s.History, t)
}

func (s *Session) finish(reason StopReason, report string) {
	s.StopReason = reason
	s.Report = report
}

// Transcript renders the history for humans.
func (s *Session) Transcript() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s (%d/%d turns, stop=%s)\n", s.ID, s.TurnCount, s.MaxTurns, s.StopReason)
	for i, t := range s.History {
		switch {
		case t.Call != nil:
			if t.Text != "" {
				fmt.Fprintf(&sb, "[%d] %s thought: %s\n", i, t.Role, t.Text)
			}
			args, _ := json.Marshal(t.Call.Args)
			fmt.Fprintf(&sb, "[%d] %s call: %s(%s)\n", i, t.Role, t.Call.Name, args)
		case t.Observation != nil:
			marker := ""
			if t.Observation.Truncated {
				marker = " (truncated)"
			}
			fmt.Fprintf(&sb, "[%d] %s %s%s:\n%s\n", i, t.Role, t.ToolName, marker, t.Observation.Text)
		default:
			fmt.Fprintf(&sb, "[%d] %s: %s\n", i, t.Role, t.Text)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
