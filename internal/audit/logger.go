// Package audit records a structured, append-only trail of every
// mutating tool call. Ground: internal/audit/logger.go's slog.JSONHandler
// singleton shape, retargeted from project/token lifecycle operations to
// mail/identity/reservation mutations.
package audit

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Operation is the closed set of auditable mutations.
type Operation string

const (
	OpEnsureProject      Operation = "project.ensure"
	OpRegisterAgent      Operation = "agent.register"
	OpCreateAgentIdentity Operation = "agent.create_identity"
	OpSetContactPolicy   Operation = "contact.set_policy"
	OpRequestContact     Operation = "contact.request"
	OpRespondContact     Operation = "contact.respond"
	OpSendMessage        Operation = "message.send"
	OpAcknowledgeMessage Operation = "message.acknowledge"
	OpReplyMessage       Operation = "message.reply"
	OpReserveFilePaths   Operation = "reservation.reserve"
	OpReleaseReservation Operation = "reservation.release"
	OpAcquireBuildSlot   Operation = "buildslot.acquire"
	OpRenewBuildSlot     Operation = "buildslot.renew"
	OpReleaseBuildSlot   Operation = "buildslot.release"
)

// Event is one audit log entry.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation Operation      `json:"operation"`
	ProjectID string         `json:"project_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger writes Events to a slog.JSONHandler; an audit.Logger can be
// disabled without removing call sites.
type Logger struct {
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process-wide audit logger, enabled by default.
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(true)
	})
	return defaultLogger
}

func New(enabled bool) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{logger: slog.New(handler), enabled: enabled}
}

func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	l.mu.RUnlock()
	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.String("audit", "true"),
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
	}
	if event.ProjectID != "" {
		attrs = append(attrs, slog.String("project_id", event.ProjectID))
	}
	if event.AgentID != "" {
		attrs = append(attrs, slog.String("agent_id", event.AgentID))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Details != nil {
		detailsJSON, _ := json.Marshal(event.Details)
		attrs = append(attrs, slog.String("details", string(detailsJSON)))
	}

	l.logger.Info("AUDIT", attrs...)
}

func (l *Logger) LogSuccess(op Operation, projectID, agentID string) {
	l.Log(&Event{Operation: op, ProjectID: projectID, AgentID: agentID, Success: true})
}

func (l *Logger) LogFailure(op Operation, projectID, agentID string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	l.Log(&Event{Operation: op, ProjectID: projectID, AgentID: agentID, Success: false, Error: errMsg})
}

func Log(event *Event) { Default().Log(event) }

func LogSuccess(op Operation, projectID, agentID string) { Default().LogSuccess(op, projectID, agentID) }

func LogFailure(op Operation, projectID, agentID string, err error) {
	Default().LogFailure(op, projectID, agentID, err)
}
