package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableInt64 converts an optional cents value for a nullable column.
func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// nullableTime converts an optional timestamp for a nullable column.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// marshalSessionColumns serializes the JSON-backed session columns.
func marshalSessionColumns(session models.PlanningSession) (historyJSON, slotsJSON, contextJSON string, err error) {
	h, err := json.Marshal(session.ConversationHistory)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal conversation history: %w", err)
	}
	s, err := json.Marshal(session.Slots)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal slots: %w", err)
	}
	c, err := json.Marshal(session.ExternalContext)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal external context: %w", err)
	}
	return string(h), string(s), string(c), nil
}

// scanSession scans a planning session row, decoding the JSON columns.
func scanSession(row rowScanner) (*models.PlanningSession, error) {
	var session models.PlanningSession
	var historyJSON, slotsJSON, contextJSON sql.NullString
	err := row.Scan(
		&session.ID, &session.UserKey, &session.SessionState,
		&historyJSON, &slotsJSON, &contextJSON,
		&session.IsComplete, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if historyJSON.Valid && historyJSON.String != "" {
		if err := json.Unmarshal([]byte(historyJSON.String), &session.ConversationHistory); err != nil {
			return nil, fmt.Errorf("unmarshal conversation history: %w", err)
		}
	}
	if slotsJSON.Valid && slotsJSON.String != "" {
		if err := json.Unmarshal([]byte(slotsJSON.String), &session.Slots); err != nil {
			return nil, fmt.Errorf("unmarshal slots: %w", err)
		}
	}
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &session.ExternalContext); err != nil {
			return nil, fmt.Errorf("unmarshal external context: %w", err)
		}
	}
	return &session, nil
}

// scanActivity scans an activity row with its nullable columns.
func scanActivity(row rowScanner) (*models.Activity, error) {
	var activity models.Activity
	var description, category sql.NullString
	var budgetTotal, budgetBuffer sql.NullInt64
	var startDate, endDate sql.NullTime
	err := row.Scan(
		&activity.ID, &activity.UserKey, &activity.Title, &description, &category,
		&activity.Status, &budgetTotal, &budgetBuffer, &startDate, &endDate,
		&activity.CreatedAt, &activity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	activity.Description = description.String
	activity.Category = category.String
	if budgetTotal.Valid {
		activity.BudgetTotalCents = &budgetTotal.Int64
	}
	if budgetBuffer.Valid {
		activity.BudgetBufferCents = &budgetBuffer.Int64
	}
	if startDate.Valid {
		activity.StartDate = &startDate.Time
	}
	if endDate.Valid {
		activity.EndDate = &endDate.Time
	}
	return &activity, nil
}

// replaceTaskSetTx swaps an activity's task set inside an open transaction.
// rebind converts ?-style placeholders to the backend's syntax.
func replaceTaskSetTx(tx *sql.Tx, rebind func(string) string, activityID, userKey string, tasks []models.Task) error {
	_, err := tx.Exec(rebind(`DELETE FROM tasks WHERE user_key = ? AND id IN (SELECT task_id FROM activity_tasks WHERE activity_id = ?)`), userKey, activityID)
	if err != nil {
		return fmt.Errorf("delete old tasks: %w", err)
	}
	_, err = tx.Exec(rebind(`DELETE FROM activity_tasks WHERE activity_id = ?`), activityID)
	if err != nil {
		return fmt.Errorf("delete old attachments: %w", err)
	}
	for i, task := range tasks {
		_, err = tx.Exec(rebind(`INSERT INTO tasks
			(id, user_key, title, description, category, priority, time_estimate, due_date, cost_cents, cost_notes, completed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			task.ID, task.UserKey, task.Title,
			nilIfEmpty(task.Description), nilIfEmpty(task.Category), nilIfEmpty(task.Priority), nilIfEmpty(task.TimeEstimate),
			nullableTime(task.DueDate), nullableInt64(task.CostCents), nilIfEmpty(task.CostNotes),
			task.Completed, task.CreatedAt, task.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}
		_, err = tx.Exec(rebind(`INSERT INTO activity_tasks (activity_id, task_id, task_order) VALUES (?, ?, ?)`),
			activityID, task.ID, i)
		if err != nil {
			return fmt.Errorf("attach task %s: %w", task.ID, err)
		}
	}
	return nil
}

// postgresRebind converts ?-style placeholders to $1, $2, ... syntax.
func postgresRebind(query string) string {
	var out []byte
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// scanTask scans a task row with its nullable columns.
func scanTask(row rowScanner) (models.Task, error) {
	var task models.Task
	var description, category, priority, timeEstimate, costNotes sql.NullString
	var costCents sql.NullInt64
	var dueDate sql.NullTime
	err := row.Scan(
		&task.ID, &task.UserKey, &task.Title, &description, &category,
		&priority, &timeEstimate, &dueDate, &costCents, &costNotes,
		&task.Completed, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return task, fmt.Errorf("scan task failed: %w", err)
	}
	task.Description = description.String
	task.Category = category.String
	task.Priority = priority.String
	task.TimeEstimate = timeEstimate.String
	task.CostNotes = costNotes.String
	if costCents.Valid {
		task.CostCents = &costCents.Int64
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	return task, nil
}
