package flow

import (
	"strings"
	"testing"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

func TestFormatPlanPreviewListsTasksInOrder(t *testing.T) {
	plan := &models.CandidatePlan{
		Title:       "Move apartments",
		Description: "Everything for the move on June 1st.",
		Tasks: []models.TaskDraft{
			{Title: "Book movers", ScheduledDate: "2025-05-20", TimeEstimate: "1h"},
			{Title: "Pack boxes"},
		},
		Budget: &models.BudgetDraft{Total: 800},
	}

	preview := formatPlanPreview(plan, "")
	if !strings.Contains(preview, "Move apartments") {
		t.Errorf("preview missing title: %q", preview)
	}
	if !strings.Contains(preview, "1. Book movers (2025-05-20, 1h)") {
		t.Errorf("preview missing first task line: %q", preview)
	}
	if !strings.Contains(preview, "2. Pack boxes") {
		t.Errorf("preview missing second task line: %q", preview)
	}
	if !strings.Contains(preview, "800.00") {
		t.Errorf("preview missing budget: %q", preview)
	}
	if !strings.Contains(preview, confirmationQuestion) {
		t.Errorf("preview missing confirmation prompt: %q", preview)
	}
}

func TestFormatPlanPreviewSkipsDoublePrompt(t *testing.T) {
	plan := &models.CandidatePlan{Title: "Trip", Tasks: []models.TaskDraft{{Title: "Book flights"}}}
	preview := formatPlanPreview(plan, "Here's the plan. Does this work for you?")
	if strings.Contains(preview, confirmationQuestion) {
		t.Errorf("expected no duplicate confirmation prompt: %q", preview)
	}
}

func TestFormatPlanPreviewNilPlanFallsBack(t *testing.T) {
	if got := formatPlanPreview(nil, ""); got != confirmationQuestion {
		t.Errorf("expected fallback text, got %q", got)
	}
}
