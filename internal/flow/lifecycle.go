package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

// resolveSession finds or creates the session a request belongs to.
//
// An empty caller history is the explicit reset signal: any live session
// is marked complete and a fresh one is created, even mid-confirmation.
// A non-empty history is a continuation and requires a live session;
// completed sessions are never resurrected, the caller gets
// ErrSessionExpired and must start over.
func (e *Engine) resolveSession(principal models.Principal, request models.PlanningRequest) (*models.PlanningSession, error) {
	userKey := principal.Key()

	if len(request.ConversationHistory) == 0 {
		prior, err := e.store.GetActiveSession(userKey)
		if err != nil {
			return nil, fmt.Errorf("failed to look up active session: %w", err)
		}
		if prior != nil {
			prior.MarkComplete()
			prior.UpdatedAt = time.Now()
			if err := e.store.UpdateSession(*prior); err != nil {
				return nil, fmt.Errorf("failed to supersede session %s: %w", prior.ID, err)
			}
			slog.Info("Engine.resolveSession: superseded prior session", "sessionID", prior.ID, "userKey", userKey, "priorState", prior.SessionState)
		}
		return e.createSession(userKey, request.Mode)
	}

	session, err := e.store.GetActiveSession(userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}
	if session == nil || session.IsComplete {
		slog.Info("Engine.resolveSession: continuation without live session", "userKey", userKey)
		return nil, models.ErrSessionExpired
	}
	if request.Mode != "" && request.Mode != session.ExternalContext.Mode {
		session.ExternalContext.Mode = request.Mode
	}
	return session, nil
}

// createSession persists a fresh gathering-state session.
func (e *Engine) createSession(userKey string, mode models.PlanningMode) (*models.PlanningSession, error) {
	if mode == "" {
		mode = models.ModeQuick
	}
	now := time.Now()
	session := models.PlanningSession{
		ID:           uuid.New().String(),
		UserKey:      userKey,
		SessionState: models.SessionStateGathering,
		ExternalContext: models.ExternalContext{
			Mode: mode,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	slog.Debug("Engine.createSession: new session created", "sessionID", session.ID, "userKey", userKey, "mode", mode)
	return &session, nil
}
