package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one step of an investigation's audit trail.
type AuditEventType string

const (
	AuditSessionStart AuditEventType = "session_start"
	AuditSessionEnd   AuditEventType = "session_end"
	AuditTurnStart    AuditEventType = "turn_start"

	AuditLLMRequest AuditEventType = "llm_request"
	AuditLLMError   AuditEventType = "llm_error"

	AuditToolInvoke   AuditEventType = "tool_invoke"
	AuditToolComplete AuditEventType = "tool_complete"
	AuditToolError    AuditEventType = "tool_error"

	AuditPathViolation AuditEventType = "path_violation"
	AuditCrashDetected AuditEventType = "crash_detected"
)

// AuditEvent is one JSON line in the audit log.
type AuditEvent struct {
	EventType  AuditEventType
	SessionID  string
	Turn       int
	Target     string // tool name, path, or model
	Success    bool
	DurationMs int64
	Error      string
	Message    string
}

func (e AuditEvent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("event", string(e.EventType))
	enc.AddString("session", e.SessionID)
	enc.AddInt("turn", e.Turn)
	if e.Target != "" {
		enc.AddString("target", e.Target)
	}
	enc.AddBool("success", e.Success)
	if e.DurationMs > 0 {
		enc.AddInt64("dur_ms", e.DurationMs)
	}
	if e.Error != "" {
		enc.AddString("error", e.Error)
	}
	if e.Message != "" {
		enc.AddString("msg", e.Message)
	}
	return nil
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile *os.File
	auditZap  *zap.Logger
	auditMu   sync.Mutex
)

// AuditLogger writes events scoped to a single session.
type AuditLogger struct {
	sessionID string
}

// InitAudit opens the audit log. No-op unless debug mode is on.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.jsonl", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.EpochMillisTimeEncoder
	encCfg.LevelKey = ""
	encCfg.MessageKey = ""
	auditZap = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), zapcore.InfoLevel))
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditZap != nil {
		_ = auditZap.Sync()
		auditZap = nil
	}
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditWithSession creates an audit logger scoped to a session
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditZap == nil {
		return
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	auditZap.Info("", zap.Inline(event))
}

// ToolInvoke records the start of a tool call.
func (a *AuditLogger) ToolInvoke(turn int, tool string) {
	a.Log(AuditEvent{EventType: AuditToolInvoke, Turn: turn, Target: tool, Success: true})
}

// ToolComplete records the outcome of a tool call.
func (a *AuditLogger) ToolComplete(turn int, tool string, dur time.Duration, errText string) {
	ev := AuditEvent{EventType: AuditToolComplete, Turn: turn, Target: tool, Success: errText == "", DurationMs: dur.Milliseconds()}
	if errText != "" {
		ev.EventType = AuditToolError
		ev.Error = errText
	}
	a.Log(ev)
}

// SessionEnd records the terminal report reason.
func (a *AuditLogger) SessionEnd(turns int, reason string) {
	a.Log(AuditEvent{EventType: AuditSessionEnd, Turn: turns, Success: true, Message: reason})
}
