package flow

import (
	"fmt"
	"strings"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

// confirmationQuestion is appended to every plan preview so the user
// knows the engine is waiting on a yes/no.
const confirmationQuestion = "Does this plan work for you? Reply yes to save it, or tell me what to change."

// Phrases that indicate the extractor's own message already asks for
// confirmation, so the preview does not double-prompt.
var confirmationPhrases = []string{
	"are you comfortable",
	"does this work",
	"does this plan work",
	"sound good",
	"sounds good to you",
	"ready to proceed",
	"shall i save",
	"should i save",
}

// formatPlanPreview renders a candidate plan as a readable summary
// followed by a confirmation prompt. A rendering problem falls back to
// minimal text rather than failing the turn.
func formatPlanPreview(plan *models.CandidatePlan, extractorMessage string) string {
	if plan == nil {
		return confirmationQuestion
	}
	var b strings.Builder

	if extractorMessage != "" {
		b.WriteString(extractorMessage)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Here's your plan: %s\n", plan.Title)
	if plan.Description != "" {
		b.WriteString(plan.Description)
		b.WriteString("\n")
	}
	for i, task := range plan.Tasks {
		fmt.Fprintf(&b, "%d. %s", i+1, task.Title)
		var details []string
		if task.ScheduledDate != "" {
			details = append(details, task.ScheduledDate)
		}
		if task.TimeEstimate != "" {
			details = append(details, task.TimeEstimate)
		}
		if len(details) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
		}
		b.WriteString("\n")
	}
	if plan.Budget != nil && plan.Budget.Total > 0 {
		fmt.Fprintf(&b, "Estimated budget: %.2f\n", plan.Budget.Total)
	}

	if !asksForConfirmation(extractorMessage) {
		b.WriteString("\n")
		b.WriteString(confirmationQuestion)
	}
	return b.String()
}

// asksForConfirmation reports whether text already contains a
// confirmation question.
func asksForConfirmation(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range confirmationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
