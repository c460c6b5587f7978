// Package materializer converts confirmed candidate plans into persisted
// Activity and Task records.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PlanLoom/PlanLoom/internal/models"
	"github.com/PlanLoom/PlanLoom/internal/store"
)

// Outcome describes what a materialization produced.
type Outcome struct {
	Activity *models.Activity
	Tasks    []models.Task
	// Created is true when a new Activity was created, false when an
	// existing one was updated in place.
	Created bool
}

// Materializer commits confirmed plans against a Store.
type Materializer struct {
	store store.Store
}

// New creates a Materializer backed by the given store.
func New(st store.Store) *Materializer {
	return &Materializer{store: st}
}

// Materialize persists a confirmed plan for the principal. When
// priorActivityID references an Activity created earlier in the same
// conversation, that Activity is updated in place and its task set is
// replaced; otherwise a new Activity is created. The update path is
// restored to its pre-update state if any step fails partway.
func (m *Materializer) Materialize(ctx context.Context, principal models.Principal, plan *models.CandidatePlan, priorActivityID string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	userKey := principal.Key()

	if priorActivityID != "" {
		outcome, err := m.update(principal, plan, priorActivityID)
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}
		// The referenced Activity vanished out-of-band; fall through to
		// the create path rather than failing the confirmation.
		slog.Warn("Materializer.Materialize: prior activity missing, creating fresh", "activityID", priorActivityID, "userKey", userKey)
	}
	return m.create(principal, plan)
}

// create builds a new Activity and its tasks. Partially created records
// are deleted again if any step fails.
func (m *Materializer) create(principal models.Principal, plan *models.CandidatePlan) (*Outcome, error) {
	userKey := principal.Key()
	now := time.Now()
	tasks := m.buildTasks(userKey, plan, now)

	activity := models.Activity{
		ID:          uuid.New().String(),
		UserKey:     userKey,
		Title:       plan.Title,
		Description: plan.Description,
		Category:    plan.Domain,
		Status:      models.ActivityStatusPlanning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyBudget(&activity, plan.Budget)
	applyDateRange(&activity, tasks)

	if err := m.store.CreateActivity(activity); err != nil {
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}

	var created []models.Task
	for i, task := range tasks {
		if err := m.store.CreateTask(task); err != nil {
			m.deleteTasks(userKey, created)
			return nil, fmt.Errorf("failed to create task %d: %w", i, err)
		}
		created = append(created, task)
		if err := m.store.AttachTask(activity.ID, task.ID, i); err != nil {
			m.deleteTasks(userKey, created)
			return nil, fmt.Errorf("failed to attach task %d: %w", i, err)
		}
	}

	slog.Info("Materializer.create: activity materialized", "activityID", activity.ID, "tasks", len(created), "userKey", userKey)
	return &Outcome{Activity: &activity, Tasks: created, Created: true}, nil
}

// update patches the existing Activity and swaps its task set. Returns
// (nil, nil) when the Activity no longer exists so the caller can fall
// back to the create path.
func (m *Materializer) update(principal models.Principal, plan *models.CandidatePlan, activityID string) (*Outcome, error) {
	userKey := principal.Key()
	now := time.Now()
	tasks := m.buildTasks(userKey, plan, now)

	patch := models.ActivityPatch{
		Title:       &plan.Title,
		Description: &plan.Description,
		Category:    &plan.Domain,
	}
	if plan.Budget != nil {
		total := toCents(plan.Budget.Total)
		buffer := toCents(plan.Budget.Buffer)
		patch.BudgetTotalCents = &total
		patch.BudgetBufferCents = &buffer
	}
	if start, end, ok := dateRange(tasks); ok {
		patch.StartDate = &start
		patch.EndDate = &end
	}

	activity, err := m.store.UpdateActivity(activityID, patch, userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to update activity %s: %w", activityID, err)
	}
	if activity == nil {
		return nil, nil
	}

	if replacer, ok := m.store.(store.TaskSetReplacer); ok {
		if err := replacer.ReplaceTaskSet(activityID, userKey, tasks); err != nil {
			return nil, fmt.Errorf("failed to replace task set for activity %s: %w", activityID, err)
		}
	} else if err := m.replaceTasks(activityID, userKey, tasks); err != nil {
		return nil, err
	}

	slog.Info("Materializer.update: activity re-materialized", "activityID", activityID, "tasks", len(tasks), "userKey", userKey)
	return &Outcome{Activity: activity, Tasks: tasks, Created: false}, nil
}

// replaceTasks swaps the activity's task set without a storage
// transaction: new tasks are created before the old set is touched, and
// a failure at any step restores the original attachments.
func (m *Materializer) replaceTasks(activityID, userKey string, tasks []models.Task) error {
	snapshot, err := m.store.ListTasks(activityID, userKey)
	if err != nil {
		return fmt.Errorf("failed to snapshot tasks for activity %s: %w", activityID, err)
	}

	var created []models.Task
	for i, task := range tasks {
		if err := m.store.CreateTask(task); err != nil {
			m.deleteTasks(userKey, created)
			return fmt.Errorf("failed to create replacement task %d: %w", i, err)
		}
		created = append(created, task)
	}

	// Detach the whole old set before deleting any of it so a failure
	// partway through still has every original row available to restore.
	for _, old := range snapshot {
		if err := m.store.DetachTask(activityID, old.ID); err != nil {
			m.restoreSnapshot(activityID, userKey, snapshot, created)
			return fmt.Errorf("failed to detach task %s: %w", old.ID, err)
		}
	}
	for _, old := range snapshot {
		if err := m.store.DeleteTask(old.ID, userKey); err != nil {
			m.restoreSnapshot(activityID, userKey, snapshot, created)
			return fmt.Errorf("failed to delete task %s: %w", old.ID, err)
		}
	}

	for i, task := range tasks {
		if err := m.store.AttachTask(activityID, task.ID, i); err != nil {
			m.restoreSnapshot(activityID, userKey, snapshot, created)
			return fmt.Errorf("failed to attach replacement task %d: %w", i, err)
		}
	}
	return nil
}

// restoreSnapshot puts the activity's original task set back after a
// failed replacement: new tasks are removed and every snapshot task is
// re-created and re-attached at its original position. Failures here are
// logged as critical since the activity may be left inconsistent.
func (m *Materializer) restoreSnapshot(activityID, userKey string, snapshot, created []models.Task) {
	for _, task := range created {
		if err := m.store.DetachTask(activityID, task.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("Materializer.restoreSnapshot: failed to detach new task during rollback", "error", err, "taskID", task.ID)
		}
	}
	m.deleteTasks(userKey, created)
	for i, task := range snapshot {
		if err := m.store.CreateTask(task); err != nil {
			// The row may still exist when only the detach went through,
			// so a failed re-create must not skip re-attachment.
			slog.Warn("Materializer.restoreSnapshot: failed to re-create task, re-attaching existing row", "error", err, "taskID", task.ID, "activityID", activityID)
		}
		if err := m.store.AttachTask(activityID, task.ID, i); err != nil {
			slog.Error("Materializer.restoreSnapshot: CRITICAL failed to re-attach task", "error", err, "taskID", task.ID, "activityID", activityID)
		}
	}
}

// deleteTasks best-effort removes tasks created during a failed attempt.
func (m *Materializer) deleteTasks(userKey string, tasks []models.Task) {
	for _, task := range tasks {
		if err := m.store.DeleteTask(task.ID, userKey); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("Materializer.deleteTasks: failed to clean up task", "error", err, "taskID", task.ID)
		}
	}
}

// buildTasks converts a plan's drafts into Task records with derived due
// dates and budget-matched costs.
func (m *Materializer) buildTasks(userKey string, plan *models.CandidatePlan, now time.Time) []models.Task {
	tasks := make([]models.Task, 0, len(plan.Tasks))
	for i, draft := range plan.Tasks {
		task := models.Task{
			ID:           uuid.New().String(),
			UserKey:      userKey,
			Title:        draft.Title,
			Description:  draft.Description,
			Category:     draft.Category,
			Priority:     draft.Priority,
			TimeEstimate: draft.TimeEstimate,
			DueDate:      deriveDueDate(draft, i, len(plan.Tasks)),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if plan.Budget != nil {
			if line := matchBudgetLine(plan.Budget.Breakdown, draft); line != nil {
				cost := toCents(line.Amount)
				task.CostCents = &cost
				task.CostNotes = line.Notes
			}
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// applyBudget copies a plan budget onto an activity in integer cents.
func applyBudget(activity *models.Activity, budget *models.BudgetDraft) {
	if budget == nil {
		return
	}
	total := toCents(budget.Total)
	buffer := toCents(budget.Buffer)
	activity.BudgetTotalCents = &total
	activity.BudgetBufferCents = &buffer
}

// applyDateRange sets the activity's date range from its tasks' due dates.
func applyDateRange(activity *models.Activity, tasks []models.Task) {
	if start, end, ok := dateRange(tasks); ok {
		activity.StartDate = &start
		activity.EndDate = &end
	}
}

// dateRange returns the earliest and latest due dates among tasks.
func dateRange(tasks []models.Task) (start, end time.Time, ok bool) {
	for _, task := range tasks {
		if task.DueDate == nil {
			continue
		}
		if !ok {
			start, end, ok = *task.DueDate, *task.DueDate, true
			continue
		}
		if task.DueDate.Before(start) {
			start = *task.DueDate
		}
		if task.DueDate.After(end) {
			end = *task.DueDate
		}
	}
	return start, end, ok
}
