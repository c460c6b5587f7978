// Package models defines state management structures for PlanLoom planning sessions.
package models

import (
	"errors"
	"time"
)

// ErrSessionExpired indicates a continuation was requested but the
// session is already complete or no longer exists. Callers must start a
// new conversation; expired sessions are never auto-recreated.
var ErrSessionExpired = errors.New("planning session expired or completed")

// SessionState represents where a planning conversation currently is.
type SessionState string

const (
	// SessionStateGathering means the engine is still collecting slots from the user.
	SessionStateGathering SessionState = "gathering"
	// SessionStateConfirming means a candidate plan is pending user approval.
	SessionStateConfirming SessionState = "confirming"
	// SessionStateCompleted means the session was materialized or superseded.
	SessionStateCompleted SessionState = "completed"
)

// PlanningMode selects the conversational style of the extractor.
type PlanningMode string

const (
	// ModeQuick asks few questions and generates early.
	ModeQuick PlanningMode = "quick"
	// ModeSmart asks more clarifying questions before generating.
	ModeSmart PlanningMode = "smart"
)

// IsValidPlanningMode checks if the given mode is supported.
func IsValidPlanningMode(m PlanningMode) bool {
	switch m {
	case ModeQuick, ModeSmart:
		return true
	default:
		return false
	}
}

// ConversationMessage represents a single message in the conversation history.
type ConversationMessage struct {
	Role      string    `json:"role"`      // "user" or "assistant"
	Content   string    `json:"content"`   // message content
	Timestamp time.Time `json:"timestamp"` // when the message was sent
}

// Slots holds the structured information extracted so far.
//
// PendingPlan is deliberately a single pointer rather than a map entry:
// there is at most one candidate plan per session and it is replaced
// wholesale, never field-merged.
type Slots struct {
	PendingPlan *CandidatePlan    `json:"pending_plan,omitempty"`
	Extracted   map[string]string `json:"extracted,omitempty"`
}

// Merge overlays newly extracted values onto the existing slot map.
func (s *Slots) Merge(extracted map[string]string) {
	if len(extracted) == 0 {
		return
	}
	if s.Extracted == nil {
		s.Extracted = make(map[string]string, len(extracted))
	}
	for k, v := range extracted {
		s.Extracted[k] = v
	}
}

// ExternalContext carries per-session context that outlives a single turn.
type ExternalContext struct {
	Mode                 PlanningMode `json:"mode"`
	AwaitingConfirmation bool         `json:"awaiting_confirmation"`
	// ActivityID references a previously materialized Activity so a later
	// revision in the same thread updates it instead of duplicating it.
	ActivityID string `json:"activity_id,omitempty"`
}

// PlanningSession is the server-side record of one planning conversation thread.
type PlanningSession struct {
	ID                  string                `json:"id"`
	UserKey             string                `json:"user_key"`
	SessionState        SessionState          `json:"session_state"`
	ConversationHistory []ConversationMessage `json:"conversation_history"`
	Slots               Slots                 `json:"slots"`
	ExternalContext     ExternalContext       `json:"external_context"`
	IsComplete          bool                  `json:"is_complete"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// AppendMessage adds a message to the conversation history.
func (ps *PlanningSession) AppendMessage(role, content string) {
	ps.ConversationHistory = append(ps.ConversationHistory, ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// MarkComplete closes the session. Completed sessions are never deleted
// and never resurrected; a new conversation always creates a fresh row.
func (ps *PlanningSession) MarkComplete() {
	ps.SessionState = SessionStateCompleted
	ps.IsComplete = true
	ps.ExternalContext.AwaitingConfirmation = false
}
