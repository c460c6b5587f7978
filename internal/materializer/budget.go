package materializer

import (
	"math"
	"strings"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

// toCents converts a major-unit amount to integer cents, rounding to the
// nearest cent so values like 123.45 never survive as floats.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// matchBudgetLine finds the budget line whose category label fuzzily
// matches the task's category or title. Matching is a case-insensitive
// substring test in either direction. Returns nil when no line matches.
func matchBudgetLine(lines []models.BudgetLine, draft models.TaskDraft) *models.BudgetLine {
	category := strings.ToLower(strings.TrimSpace(draft.Category))
	title := strings.ToLower(strings.TrimSpace(draft.Title))
	for i := range lines {
		label := strings.ToLower(strings.TrimSpace(lines[i].Category))
		if label == "" {
			continue
		}
		if fuzzyContains(label, category) || fuzzyContains(label, title) {
			return &lines[i]
		}
	}
	return nil
}

// fuzzyContains reports whether either string contains the other.
func fuzzyContains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
