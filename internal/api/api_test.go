package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PlanLoom/PlanLoom/internal/flow"
	"github.com/PlanLoom/PlanLoom/internal/materializer"
	"github.com/PlanLoom/PlanLoom/internal/models"
	"github.com/PlanLoom/PlanLoom/internal/planner"
	"github.com/PlanLoom/PlanLoom/internal/store"
)

// scriptedAgent returns queued results in order, repeating the last one.
type scriptedAgent struct {
	results []*planner.Result
}

func (a *scriptedAgent) Process(ctx context.Context, userKey, message string, history []models.ConversationMessage, mode models.PlanningMode, slotContext map[string]string) (*planner.Result, error) {
	if len(a.results) == 0 {
		return &planner.Result{Message: "Tell me more."}, nil
	}
	result := a.results[0]
	if len(a.results) > 1 {
		a.results = a.results[1:]
	}
	return result, nil
}

func newTestServer(agent planner.Agent) (*Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, agent, materializer.New(st), nil)
	return NewServer(engine, st), st
}

func postMessage(t *testing.T, srv *Server, headers map[string]string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/planning/message", bytes.NewReader(payload))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestPlanningMessageHandlerSuccess(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	rec := postMessage(t, srv, map[string]string{headerUserID: "alice"}, models.PlanningRequest{Message: "plan a trip"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok status, got %q", envelope.Status)
	}
	result, _ := json.Marshal(envelope.Result)
	var resp models.PlanningResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		t.Fatalf("failed to decode planning response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("expected a session id")
	}
	if resp.Message != "Tell me more." {
		t.Errorf("unexpected message: %q", resp.Message)
	}
}

func TestPlanningMessageHandlerInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/planning/message", strings.NewReader("{not json"))
	req.Header.Set(headerUserID, "alice")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestPlanningMessageHandlerEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})
	rec := postMessage(t, srv, map[string]string{headerUserID: "alice"}, models.PlanningRequest{Message: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", rec.Code)
	}
}

func TestPlanningMessageHandlerExpiredSession(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	rec := postMessage(t, srv, map[string]string{headerUserID: "alice"}, models.PlanningRequest{
		Message:             "yes",
		ConversationHistory: []models.ConversationMessage{{Role: "user", Content: "plan a trip"}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	result, _ := json.Marshal(envelope.Result)
	var resp models.PlanningResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		t.Fatalf("failed to decode planning response: %v", err)
	}
	if !resp.SessionCompleted || !resp.RequiresReset {
		t.Errorf("expected sessionCompleted and requiresReset flags, got %+v", resp)
	}
}

func TestGuestIdentityIssuedAndScoped(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	rec := postMessage(t, srv, nil, models.PlanningRequest{Message: "plan a trip"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	guestID := rec.Header().Get(headerGuestSession)
	if guestID == "" {
		t.Fatal("expected a guest session header")
	}
	if !strings.HasPrefix(guestID, "g_") {
		t.Errorf("expected g_ prefixed guest id, got %q", guestID)
	}

	// The issued identity continues the same session.
	rec = postMessage(t, srv, map[string]string{headerGuestSession: guestID}, models.PlanningRequest{
		Message:             "next weekend",
		ConversationHistory: []models.ConversationMessage{{Role: "user", Content: "plan a trip"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 continuing guest session, got %d: %s", rec.Code, rec.Body.String())
	}

	// A different guest must not see this session.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/planning/session", nil)
	req.Header.Set(headerGuestSession, "g_other")
	other := httptest.NewRecorder()
	srv.Router().ServeHTTP(other, req)
	if other.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign guest, got %d", other.Code)
	}
}

func TestPlanningSessionHandler(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/planning/session", nil)
	req.Header.Set(headerUserID, "alice")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no session, got %d", rec.Code)
	}

	postMessage(t, srv, map[string]string{headerUserID: "alice"}, models.PlanningRequest{Message: "plan a trip"})

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with active session, got %d", rec.Code)
	}
}

func TestActivityHandlerEndToEnd(t *testing.T) {
	plan := &models.CandidatePlan{Title: "Trip", Domain: "travel", Tasks: []models.TaskDraft{{Title: "Book flights"}, {Title: "Reserve hotel"}}}
	agent := &scriptedAgent{results: []*planner.Result{
		{Message: "Where to?"},
		{Message: "Here you go.", ReadyToGenerate: true, Plan: plan},
	}}
	srv, _ := newTestServer(agent)
	headers := map[string]string{headerUserID: "alice"}
	cont := []models.ConversationMessage{{Role: "user", Content: "earlier"}}

	postMessage(t, srv, headers, models.PlanningRequest{Message: "plan a trip"})
	postMessage(t, srv, headers, models.PlanningRequest{Message: "to Lisbon", ConversationHistory: cont})
	rec := postMessage(t, srv, headers, models.PlanningRequest{Message: "yes", ConversationHistory: cont})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope models.APIResponse
	json.Unmarshal(rec.Body.Bytes(), &envelope)
	result, _ := json.Marshal(envelope.Result)
	var resp models.PlanningResponse
	json.Unmarshal(result, &resp)
	if !resp.ActivityCreated || resp.ActivityID == "" {
		t.Fatalf("expected created activity, got %+v", resp)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities/"+resp.ActivityID, nil)
	req.Header.Set(headerUserID, "alice")
	read := httptest.NewRecorder()
	srv.Router().ServeHTTP(read, req)
	if read.Code != http.StatusOK {
		t.Fatalf("expected 200 reading activity, got %d", read.Code)
	}
	if !strings.Contains(read.Body.String(), "Book flights") {
		t.Errorf("expected tasks in read-back, got %s", read.Body.String())
	}

	taskReq := httptest.NewRequest(http.MethodGet, "/api/v1/activities/"+resp.ActivityID+"/tasks", nil)
	taskReq.Header.Set(headerUserID, "alice")
	taskRead := httptest.NewRecorder()
	srv.Router().ServeHTTP(taskRead, taskReq)
	if taskRead.Code != http.StatusOK {
		t.Fatalf("expected 200 reading tasks, got %d", taskRead.Code)
	}
	if !strings.Contains(taskRead.Body.String(), "Reserve hotel") {
		t.Errorf("expected task list in read-back, got %s", taskRead.Body.String())
	}

	// Cross-user read must 404.
	req.Header.Set(headerUserID, "bob")
	foreign := httptest.NewRecorder()
	srv.Router().ServeHTTP(foreign, req)
	if foreign.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign user, got %d", foreign.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
