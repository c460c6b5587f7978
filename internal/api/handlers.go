package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PlanLoom/PlanLoom/internal/models"
	"github.com/PlanLoom/PlanLoom/internal/util"
)

// Identity headers. An authenticated caller sends its user id; an
// anonymous caller is assigned a session-scoped guest identity that it
// must echo back on subsequent requests.
const (
	headerUserID       = "X-User-ID"
	headerGuestSession = "X-Guest-Session"
)

// resolvePrincipal derives the request's principal from identity
// headers. A brand-new anonymous caller gets a fresh guest id, returned
// in the response headers so the session can continue.
func (s *Server) resolvePrincipal(w http.ResponseWriter, r *http.Request) (models.Principal, error) {
	if userID := r.Header.Get(headerUserID); userID != "" {
		return models.NewAuthenticated(userID)
	}
	guestID := r.Header.Get(headerGuestSession)
	if guestID == "" {
		guestID = util.GenerateGuestID()
		slog.Debug("Server.resolvePrincipal: issued new guest identity", "guestID", guestID)
	}
	w.Header().Set(headerGuestSession, guestID)
	return models.NewGuest(guestID)
}

// planningMessageHandler handles POST /api/v1/planning/message
func (s *Server) planningMessageHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.planningMessageHandler: invoked", "method", r.Method, "path", r.URL.Path)

	principal, err := s.resolvePrincipal(w, r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid identity headers"))
		return
	}

	var req models.PlanningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.planningMessageHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	resp, err := s.engine.ProcessMessage(r.Context(), principal, req)
	if err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			// The caller must start a new conversation; retrying the same
			// continuation will never succeed.
			expired := models.PlanningResponse{
				Message:          "This planning session has ended. Start a new conversation to continue.",
				SessionCompleted: true,
				RequiresReset:    true,
			}
			envelope := models.NewAPIResponseBuilder().
				WithStatus(models.APIStatusError).
				WithMessage("Session completed").
				WithResult(expired).
				Build()
			writeJSONResponse(w, http.StatusConflict, envelope)
			return
		}
		if isValidationError(err) {
			slog.Warn("Server.planningMessageHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.planningMessageHandler: processing failed", "error", err, "userKey", principal.Key())
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// planningSessionHandler handles GET /api/v1/planning/session
func (s *Server) planningSessionHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := s.resolvePrincipal(w, r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid identity headers"))
		return
	}

	session, err := s.store.GetActiveSession(principal.Key())
	if err != nil {
		slog.Error("Server.planningSessionHandler: lookup failed", "error", err, "userKey", principal.Key())
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up session"))
		return
	}
	if session == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No active planning session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(session))
}

// activityResult is the read-back payload for a materialized activity.
type activityResult struct {
	Activity *models.Activity `json:"activity"`
	Tasks    []models.Task    `json:"tasks"`
}

// activityHandler handles GET /api/v1/activities/{activityID}
func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := s.resolvePrincipal(w, r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid identity headers"))
		return
	}

	activityID := chi.URLParam(r, "activityID")
	activity, err := s.store.GetActivity(activityID, principal.Key())
	if err != nil {
		slog.Error("Server.activityHandler: lookup failed", "error", err, "activityID", activityID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up activity"))
		return
	}
	if activity == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Activity not found"))
		return
	}

	tasks, err := s.store.ListTasks(activityID, principal.Key())
	if err != nil {
		slog.Error("Server.activityHandler: task lookup failed", "error", err, "activityID", activityID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up tasks"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(activityResult{Activity: activity, Tasks: tasks}))
}

// activityTasksHandler handles GET /api/v1/activities/{activityID}/tasks
func (s *Server) activityTasksHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := s.resolvePrincipal(w, r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid identity headers"))
		return
	}

	activityID := chi.URLParam(r, "activityID")
	activity, err := s.store.GetActivity(activityID, principal.Key())
	if err != nil {
		slog.Error("Server.activityTasksHandler: lookup failed", "error", err, "activityID", activityID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up activity"))
		return
	}
	if activity == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Activity not found"))
		return
	}

	tasks, err := s.store.ListTasks(activityID, principal.Key())
	if err != nil {
		slog.Error("Server.activityTasksHandler: task lookup failed", "error", err, "activityID", activityID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up tasks"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tasks))
}

// healthHandler handles GET /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// isValidationError reports whether the error came from request
// validation rather than processing.
func isValidationError(err error) bool {
	return errors.Is(err, models.ErrEmptyMessage) ||
		errors.Is(err, models.ErrMessageTooLong) ||
		errors.Is(err, models.ErrInvalidMode) ||
		errors.Is(err, models.ErrHistoryTooLong)
}
