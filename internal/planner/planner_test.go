package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PlanLoom/PlanLoom/internal/models"
	"github.com/openai/openai-go"
)

// mockGenAI implements genai.ClientInterface for testing.
type mockGenAI struct {
	response string
	err      error
	lastMsgs []openai.ChatCompletionMessageParamUnion
}

func (m *mockGenAI) GenerateJSONWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.lastMsgs = messages
	return m.response, m.err
}

func TestParseResult_FullPlan(t *testing.T) {
	raw := `{
		"message": "Here is your plan.",
		"extracted_slots": {"occasion": "birthday"},
		"ready_to_generate": true,
		"domain": "celebration",
		"plan": {
			"title": "Birthday Party",
			"tasks": [
				{"title": "Book venue", "scheduled_date": "2025-06-01", "start_time": "10:00"},
				{"title": "Order cake"}
			],
			"budget": {"total": 123.45, "breakdown": [{"category": "venue", "amount": 100}], "buffer": 10}
		}
	}`

	result, err := ParseResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ReadyToGenerate {
		t.Error("expected ready_to_generate true")
	}
	if result.Plan == nil || result.Plan.Title != "Birthday Party" {
		t.Fatalf("expected parsed plan, got %+v", result.Plan)
	}
	if len(result.Plan.Tasks) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(result.Plan.Tasks))
	}
	if result.Plan.Budget == nil || result.Plan.Budget.Total != 123.45 {
		t.Errorf("expected budget total 123.45, got %+v", result.Plan.Budget)
	}
	if result.ExtractedSlots["occasion"] != "birthday" {
		t.Errorf("expected extracted slot, got %v", result.ExtractedSlots)
	}
}

func TestParseResult_CodeFence(t *testing.T) {
	raw := "```json\n{\"message\": \"hi\", \"ready_to_generate\": false}\n```"
	result, err := ParseResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != "hi" {
		t.Errorf("expected message 'hi', got %q", result.Message)
	}
}

func TestParseResult_Invalid(t *testing.T) {
	if _, err := ParseResult("not json at all"); err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
	if _, err := ParseResult(`{"ready_to_generate": true}`); err == nil {
		t.Error("expected error for missing message, got nil")
	}
}

func TestOpenAIAgent_Process(t *testing.T) {
	mock := &mockGenAI{response: `{"message": "What date is the party?", "extracted_slots": {"occasion": "birthday"}, "ready_to_generate": false}`}
	agent := NewOpenAIAgent(mock)

	history := []models.ConversationMessage{
		{Role: "user", Content: "plan a birthday party"},
		{Role: "assistant", Content: "Sounds fun! Tell me more."},
	}
	result, err := agent.Process(context.Background(), "user:u1", "it's for my daughter", history, models.ModeSmart, map[string]string{"occasion": "birthday"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ReadyToGenerate {
		t.Error("expected not ready to generate")
	}
	if !strings.Contains(result.Message, "date") {
		t.Errorf("unexpected message %q", result.Message)
	}
	// system prompts (mode + contract + slots) precede history and current message
	if len(mock.lastMsgs) != 6 {
		t.Errorf("expected 6 messages sent to model, got %d", len(mock.lastMsgs))
	}
}

func TestOpenAIAgent_ProcessError(t *testing.T) {
	agent := NewOpenAIAgent(&mockGenAI{err: errors.New("rate limited")})
	_, err := agent.Process(context.Background(), "user:u1", "hi", nil, models.ModeQuick, nil)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected wrapped extractor error, got %v", err)
	}
}
