// Package flow implements the conversational planning state machine.
//
// Each inbound message is processed synchronously end-to-end: the
// lifecycle layer resolves the session, the intent classifier decides
// the branch, the extractor fills slots, and on an affirmative reply the
// materializer commits the pending plan. Side effects of a successful
// materialization are published as an event and never awaited.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PlanLoom/PlanLoom/internal/intent"
	"github.com/PlanLoom/PlanLoom/internal/materializer"
	"github.com/PlanLoom/PlanLoom/internal/models"
	"github.com/PlanLoom/PlanLoom/internal/notify"
	"github.com/PlanLoom/PlanLoom/internal/planner"
	"github.com/PlanLoom/PlanLoom/internal/store"
)

// ErrorPlanGenerationFailed tags responses where the extractor failed or
// produced an unusable plan.
const ErrorPlanGenerationFailed = "plan_generation_failed"

const (
	helpText = "Quick mode asks only the essentials and drafts your plan early. Smart mode asks more clarifying questions first, so the plan is more detailed. Either way, nothing is saved until you confirm the preview. Tell me what you'd like to organize and I'll take it from there."

	extractorApology = "Sorry, I ran into a problem putting your plan together. Could you rephrase that or try again?"

	materializeFailure = "Sorry, I couldn't save your plan just now. Your previous changes were rolled back. Please try again."
)

// PlanMaterializer commits a confirmed plan. Satisfied by
// *materializer.Materializer.
type PlanMaterializer interface {
	Materialize(ctx context.Context, principal models.Principal, plan *models.CandidatePlan, priorActivityID string) (*materializer.Outcome, error)
}

// Engine orchestrates one planning conversation turn at a time.
type Engine struct {
	store        store.Store
	agent        planner.Agent
	materializer PlanMaterializer
	publisher    notify.Publisher
}

// NewEngine creates an Engine with its collaborators. publisher may be
// nil when no notification delivery is configured.
func NewEngine(st store.Store, agent planner.Agent, mat PlanMaterializer, publisher notify.Publisher) *Engine {
	slog.Debug("Engine.NewEngine: creating engine", "hasPublisher", publisher != nil)
	return &Engine{store: st, agent: agent, materializer: mat, publisher: publisher}
}

// ProcessMessage runs one conversation turn for the principal and
// returns the wire response. It returns models.ErrSessionExpired when a
// continuation is requested but no live session exists.
func (e *Engine) ProcessMessage(ctx context.Context, principal models.Principal, request models.PlanningRequest) (*models.PlanningResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	session, err := e.resolveSession(principal, request)
	if err != nil {
		return nil, err
	}

	// Help is answered without touching conversation state at all.
	classified := intent.Classify(request.Message, session.Slots.PendingPlan != nil)
	if classified == intent.HelpRequest {
		slog.Debug("Engine.ProcessMessage: help request", "sessionID", session.ID)
		return &models.PlanningResponse{Message: helpText, SessionID: session.ID}, nil
	}

	var response *models.PlanningResponse
	switch session.SessionState {
	case models.SessionStateConfirming:
		response, err = e.processConfirming(ctx, principal, session, request.Message, classified)
	default:
		response, err = e.processGathering(ctx, principal, session, request.Message)
	}
	if err != nil {
		return nil, err
	}
	response.SessionID = session.ID
	return response, nil
}

// processConfirming handles a turn while a candidate plan awaits
// approval: an affirmative or generate command materializes, a replay
// request re-renders the
// stored plan, and anything else is forwarded as a revision request.
func (e *Engine) processConfirming(ctx context.Context, principal models.Principal, session *models.PlanningSession, message string, classified intent.Intent) (*models.PlanningResponse, error) {
	plan := session.Slots.PendingPlan

	// A generate command ("go ahead and create it") while a plan is
	// pending is a confirmation, same as a plain yes.
	if (classified == intent.Affirmative || classified == intent.GenerateCommand) && plan != nil {
		return e.confirm(ctx, principal, session, message, plan)
	}

	// Replay answers from stored state without touching the session.
	// Re-invoking the extractor here previously reset context and
	// caused confirmation loops.
	if intent.IsReplayRequest(message) && plan != nil {
		preview := formatPlanPreview(plan, "")
		slog.Debug("Engine.processConfirming: replayed stored plan", "sessionID", session.ID)
		return &models.PlanningResponse{Message: preview, PlanGenerated: true}, nil
	}

	return e.revise(ctx, principal, session, message)
}

// confirm materializes the pending plan and completes the session.
func (e *Engine) confirm(ctx context.Context, principal models.Principal, session *models.PlanningSession, message string, plan *models.CandidatePlan) (*models.PlanningResponse, error) {
	// A live session referencing an activity re-materializes it in
	// place; the usual path has no reference and creates. Because a
	// session completes on materialization and is never resumed, the
	// reference reaches here only when the session was seeded against
	// an existing activity.
	outcome, err := e.materializer.Materialize(ctx, principal, plan, session.ExternalContext.ActivityID)
	if err != nil {
		slog.Error("Engine.confirm: materialization failed", "error", err, "sessionID", session.ID)
		session.AppendMessage("user", message)
		session.AppendMessage("assistant", materializeFailure)
		if saveErr := e.saveSession(session); saveErr != nil {
			return nil, saveErr
		}
		return &models.PlanningResponse{
			Message: materializeFailure,
			Error:   "materialization_failed",
		}, nil
	}

	doneMsg := fmt.Sprintf("Done! I've saved \"%s\" with %d tasks.", outcome.Activity.Title, len(outcome.Tasks))
	session.AppendMessage("user", message)
	session.AppendMessage("assistant", doneMsg)
	session.ExternalContext.ActivityID = outcome.Activity.ID
	session.MarkComplete()
	if err := e.saveSession(session); err != nil {
		return nil, err
	}

	if e.publisher != nil {
		e.publisher.PublishPlanMaterialized(notify.PlanMaterialized{
			UserKey:  principal.Key(),
			Activity: *outcome.Activity,
			Tasks:    outcome.Tasks,
			Updated:  !outcome.Created,
		})
	}

	slog.Info("Engine.confirm: plan materialized", "sessionID", session.ID, "activityID", outcome.Activity.ID, "created", outcome.Created)
	return &models.PlanningResponse{
		Message:         doneMsg,
		ActivityCreated: outcome.Created,
		ActivityUpdated: !outcome.Created,
		CreatedTasks:    outcome.Tasks,
		ActivityID:      outcome.Activity.ID,
	}, nil
}

// revise forwards a change request to the extractor while confirming.
// A refreshed ready plan replaces the stored candidate in place; a
// non-ready reply drops the session back to gathering.
func (e *Engine) revise(ctx context.Context, principal models.Principal, session *models.PlanningSession, message string) (*models.PlanningResponse, error) {
	result, err := e.agent.Process(ctx, principal.Key(), message, session.ConversationHistory, session.ExternalContext.Mode, session.Slots.Extracted)
	if err != nil {
		slog.Error("Engine.revise: extractor failed", "error", err, "sessionID", session.ID)
		return e.respondExtractorFailure(session, message)
	}

	session.Slots.Merge(result.ExtractedSlots)
	session.AppendMessage("user", message)

	if result.ReadyToGenerate && result.Plan != nil && result.Plan.Validate() == nil {
		session.Slots.PendingPlan = result.Plan
		session.ExternalContext.AwaitingConfirmation = true
		preview := formatPlanPreview(result.Plan, result.Message)
		session.AppendMessage("assistant", preview)
		if err := e.saveSession(session); err != nil {
			return nil, err
		}
		slog.Debug("Engine.revise: candidate plan replaced", "sessionID", session.ID, "tasks", len(result.Plan.Tasks))
		return &models.PlanningResponse{Message: preview, PlanGenerated: true}, nil
	}

	// No usable refreshed plan: drop back to gathering.
	session.SessionState = models.SessionStateGathering
	session.Slots.PendingPlan = nil
	session.ExternalContext.AwaitingConfirmation = false
	session.AppendMessage("assistant", result.Message)
	if err := e.saveSession(session); err != nil {
		return nil, err
	}
	return &models.PlanningResponse{Message: result.Message}, nil
}

// processGathering handles a turn while slots are still being collected.
func (e *Engine) processGathering(ctx context.Context, principal models.Principal, session *models.PlanningSession, message string) (*models.PlanningResponse, error) {
	firstMessage := len(session.ConversationHistory) == 0

	result, err := e.agent.Process(ctx, principal.Key(), message, session.ConversationHistory, session.ExternalContext.Mode, session.Slots.Extracted)
	if err != nil {
		slog.Error("Engine.processGathering: extractor failed", "error", err, "sessionID", session.ID)
		return e.respondExtractorFailure(session, message)
	}

	session.Slots.Merge(result.ExtractedSlots)
	session.AppendMessage("user", message)

	// A session never leaves gathering on its very first message, no
	// matter what the extractor claims.
	if result.ReadyToGenerate && !firstMessage {
		if result.Plan == nil || result.Plan.Validate() != nil {
			slog.Warn("Engine.processGathering: extractor claimed readiness with unusable plan", "sessionID", session.ID)
			session.AppendMessage("assistant", extractorApology)
			if err := e.saveSession(session); err != nil {
				return nil, err
			}
			return &models.PlanningResponse{Message: extractorApology, Error: ErrorPlanGenerationFailed}, nil
		}

		session.SessionState = models.SessionStateConfirming
		session.Slots.PendingPlan = result.Plan
		session.ExternalContext.AwaitingConfirmation = true
		preview := formatPlanPreview(result.Plan, result.Message)
		session.AppendMessage("assistant", preview)
		if err := e.saveSession(session); err != nil {
			return nil, err
		}
		slog.Info("Engine.processGathering: candidate plan ready", "sessionID", session.ID, "tasks", len(result.Plan.Tasks))
		return &models.PlanningResponse{Message: preview, PlanGenerated: true}, nil
	}

	if result.ReadyToGenerate && firstMessage {
		slog.Debug("Engine.processGathering: readiness suppressed on first message", "sessionID", session.ID)
	}

	session.AppendMessage("assistant", result.Message)
	if err := e.saveSession(session); err != nil {
		return nil, err
	}
	return &models.PlanningResponse{Message: result.Message}, nil
}

// respondExtractorFailure records the failed turn and returns the
// tagged apology without changing session state.
func (e *Engine) respondExtractorFailure(session *models.PlanningSession, message string) (*models.PlanningResponse, error) {
	session.AppendMessage("user", message)
	session.AppendMessage("assistant", extractorApology)
	if err := e.saveSession(session); err != nil {
		return nil, err
	}
	return &models.PlanningResponse{Message: extractorApology, Error: ErrorPlanGenerationFailed}, nil
}

func (e *Engine) saveSession(session *models.PlanningSession) error {
	session.UpdatedAt = time.Now()
	if err := e.store.UpdateSession(*session); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", session.ID, err)
	}
	return nil
}
