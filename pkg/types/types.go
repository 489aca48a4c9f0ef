package types

import (
	"time"

	"github.com/google/uuid"
)

// NewLocalID generates a unique identifier for locally created entities
// (optimistic messages, correlation ids).
func NewLocalID() string {
	return uuid.NewString()
}

// NowMs returns the current wall-clock time in milliseconds since the epoch,
// the timestamp convention used across the wire protocol.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// SessionStatus is the lifecycle status of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionInactive  SessionStatus = "inactive"
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionArchived  SessionStatus = "archived"
	SessionDeleted   SessionStatus = "deleted"
	SessionError     SessionStatus = "error"
)

// StepStatus is the status of a single orchestrator pipeline step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// OrchestratorStep is one step in a session's pipeline progress snapshot.
type OrchestratorStep struct {
	// AgentKind tags which backend agent performs this step (e.g. "coder",
	// "tester", "security").
	AgentKind string     `json:"agentKind"`
	Status    StepStatus `json:"status"`
}

// OrchestratorProgress is an ordered snapshot of pipeline steps reported by
// the backend orchestrator.
type OrchestratorProgress struct {
	Steps []OrchestratorStep `json:"steps"`
}

// Session is a persistent conversation/workflow context.
//
// The session's message timeline is owned by the store, not carried on this
// struct, so that wire payloads stay small.
type Session struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Status SessionStatus `json:"status"`

	// CreatedAt and UpdatedAt are wall-clock timestamps (ms since epoch).
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`

	// CompletedAt is set once the backend marks the workflow finished.
	CompletedAt *int64 `json:"completedAt,omitempty"`

	// Metadata is a free-form map owned by the backend (agent type, model id,
	// workspace path, ...). The client treats it as opaque.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Progress is the orchestrator pipeline snapshot, when the backend has
	// reported one.
	Progress *OrchestratorProgress `json:"progress,omitempty"`
}

// SessionPatch carries a partial session update. Nil fields are unchanged.
type SessionPatch struct {
	Title       *string               `json:"title,omitempty"`
	Status      *SessionStatus        `json:"status,omitempty"`
	CompletedAt *int64                `json:"completedAt,omitempty"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
	Progress    *OrchestratorProgress `json:"progress,omitempty"`
}

// Role is the author role of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a session timeline.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`

	// CreatedAt is a wall-clock timestamp (ms since epoch).
	CreatedAt int64 `json:"createdAt"`

	// AgentKind tags assistant messages with the producing agent, when known.
	AgentKind string `json:"agentKind,omitempty"`

	// Rating is a user rating: -1, 0 or 1. Nil means unrated.
	Rating *int `json:"rating,omitempty"`

	// Correction is optional user-authored correction text for this message.
	Correction string `json:"correction,omitempty"`

	// Metadata is an open map that may carry structured output (generated
	// code, file lists) or client bookkeeping (trigger correlation tags).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Broadcast is the envelope of the generic inbound "message" event used for
// non-trigger broadcasts.
type Broadcast struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp"`
	ID        string         `json:"id"`
}
