// Package models defines candidate plan structures produced by the planner agent.
package models

import "errors"

// Validation constants for candidate plans.
const (
	// MaxPlanTitleLength defines the maximum allowed length for a plan title
	MaxPlanTitleLength = 200
	// MaxPlanTasks defines the maximum number of task drafts accepted in one plan
	MaxPlanTasks = 50
)

// Error variables for plan validation and testability.
var (
	ErrPlanMissingTitle = errors.New("candidate plan has no title")
	ErrPlanNoTasks      = errors.New("candidate plan has no tasks")
	ErrPlanTitleTooLong = errors.New("candidate plan title exceeds maximum length")
	ErrPlanTooManyTasks = errors.New("candidate plan has too many tasks")
)

// BudgetLine is one line item of a plan budget. Amounts arrive from the
// extractor as floats and are converted to integer cents at materialization.
type BudgetLine struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Notes    string  `json:"notes,omitempty"`
}

// BudgetDraft is the unconfirmed budget attached to a candidate plan.
type BudgetDraft struct {
	Total     float64      `json:"total"`
	Breakdown []BudgetLine `json:"breakdown,omitempty"`
	Buffer    float64      `json:"buffer,omitempty"`
}

// TaskDraft is one unconfirmed task inside a candidate plan.
type TaskDraft struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category,omitempty"`
	Priority     string `json:"priority,omitempty"`
	TimeEstimate string `json:"time_estimate,omitempty"`
	// ScheduledDate is a calendar date in YYYY-MM-DD form; StartTime is
	// HH:MM. Both optional; the materializer derives what is missing.
	ScheduledDate string `json:"scheduled_date,omitempty"`
	StartTime     string `json:"start_time,omitempty"`
}

// CandidatePlan is a fully structured plan proposal pending user approval.
type CandidatePlan struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Domain      string       `json:"domain,omitempty"`
	Tasks       []TaskDraft  `json:"tasks"`
	Budget      *BudgetDraft `json:"budget,omitempty"`
}

// Validate checks that a plan claimed ready by the extractor is actually
// materializable. A plan failing this check must never be committed.
func (cp *CandidatePlan) Validate() error {
	if cp.Title == "" {
		return ErrPlanMissingTitle
	}
	if len(cp.Title) > MaxPlanTitleLength {
		return ErrPlanTitleTooLong
	}
	if len(cp.Tasks) == 0 {
		return ErrPlanNoTasks
	}
	if len(cp.Tasks) > MaxPlanTasks {
		return ErrPlanTooManyTasks
	}
	return nil
}
