// Package models defines the persisted Activity and Task entities.
package models

import "time"

// ActivityStatus tracks the lifecycle of a materialized activity.
type ActivityStatus string

const (
	ActivityStatusPlanning  ActivityStatus = "planning"
	ActivityStatusActive    ActivityStatus = "active"
	ActivityStatusCompleted ActivityStatus = "completed"
	ActivityStatusArchived  ActivityStatus = "archived"
)

// Activity is a confirmed, persisted plan. Monetary fields are integer
// minor currency units (cents); they are never stored as floats.
type Activity struct {
	ID                string         `json:"id"`
	UserKey           string         `json:"user_key"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	Category          string         `json:"category,omitempty"`
	Status            ActivityStatus `json:"status"`
	BudgetTotalCents  *int64         `json:"budget_total_cents,omitempty"`
	BudgetBufferCents *int64         `json:"budget_buffer_cents,omitempty"`
	StartDate         *time.Time     `json:"start_date,omitempty"`
	EndDate           *time.Time     `json:"end_date,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Task is one persisted step of an activity.
type Task struct {
	ID           string     `json:"id"`
	UserKey      string     `json:"user_key"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Category     string     `json:"category,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	TimeEstimate string     `json:"time_estimate,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	CostCents    *int64     `json:"cost_cents,omitempty"`
	CostNotes    string     `json:"cost_notes,omitempty"`
	Completed    bool       `json:"completed"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ActivityPatch carries the scalar fields an update-path materialization
// rewrites in place. Nil pointers leave the stored value untouched.
type ActivityPatch struct {
	Title             *string
	Description       *string
	Category          *string
	Status            *ActivityStatus
	BudgetTotalCents  *int64
	BudgetBufferCents *int64
	StartDate         *time.Time
	EndDate           *time.Time
}
