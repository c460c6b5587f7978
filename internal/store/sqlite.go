// Package store provides storage backends for PlanLoom.
//
// This file implements an SQLite-backed store for planning sessions,
// activities, and tasks.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/PlanLoom/PlanLoom/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists the planning engine's entities in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// CreateSession stores a new planning session.
func (s *SQLiteStore) CreateSession(session models.PlanningSession) error {
	historyJSON, slotsJSON, contextJSON, err := marshalSessionColumns(session)
	if err != nil {
		slog.Error("SQLiteStore CreateSession marshal failed", "error", err, "sessionID", session.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO planning_sessions
		(id, user_key, session_state, conversation_history, slots, external_context, is_complete, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserKey, session.SessionState,
		historyJSON, slotsJSON, contextJSON,
		session.IsComplete, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "sessionID", session.ID, "userKey", session.UserKey)
	return nil
}

const sessionColumns = `id, user_key, session_state, conversation_history, slots, external_context, is_complete, created_at, updated_at`

// GetSession retrieves a session by id scoped to the user key.
func (s *SQLiteStore) GetSession(id, userKey string) (*models.PlanningSession, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM planning_sessions WHERE id = ? AND user_key = ?`, id, userKey)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}
	return session, nil
}

// GetActiveSession returns the user's single non-complete session, if any.
func (s *SQLiteStore) GetActiveSession(userKey string) (*models.PlanningSession, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM planning_sessions
		WHERE user_key = ? AND is_complete = 0
		ORDER BY updated_at DESC LIMIT 1`, userKey)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetActiveSession not found", "userKey", userKey)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetActiveSession failed", "error", err, "userKey", userKey)
		return nil, err
	}
	return session, nil
}

// UpdateSession overwrites a stored session.
func (s *SQLiteStore) UpdateSession(session models.PlanningSession) error {
	historyJSON, slotsJSON, contextJSON, err := marshalSessionColumns(session)
	if err != nil {
		slog.Error("SQLiteStore UpdateSession marshal failed", "error", err, "sessionID", session.ID)
		return err
	}
	res, err := s.db.Exec(`UPDATE planning_sessions
		SET session_state = ?, conversation_history = ?, slots = ?, external_context = ?, is_complete = ?, updated_at = ?
		WHERE id = ? AND user_key = ?`,
		session.SessionState, historyJSON, slotsJSON, contextJSON,
		session.IsComplete, session.UpdatedAt, session.ID, session.UserKey)
	if err != nil {
		slog.Error("SQLiteStore UpdateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	slog.Debug("SQLiteStore UpdateSession succeeded", "sessionID", session.ID, "state", session.SessionState)
	return nil
}

// CreateActivity stores a new activity.
func (s *SQLiteStore) CreateActivity(activity models.Activity) error {
	_, err := s.db.Exec(`INSERT INTO activities
		(id, user_key, title, description, category, status, budget_total_cents, budget_buffer_cents, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.ID, activity.UserKey, activity.Title,
		nilIfEmpty(activity.Description), nilIfEmpty(activity.Category), activity.Status,
		nullableInt64(activity.BudgetTotalCents), nullableInt64(activity.BudgetBufferCents),
		nullableTime(activity.StartDate), nullableTime(activity.EndDate),
		activity.CreatedAt, activity.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateActivity failed", "error", err, "activityID", activity.ID)
		return fmt.Errorf("failed to insert activity %s: %w", activity.ID, err)
	}
	slog.Debug("SQLiteStore CreateActivity succeeded", "activityID", activity.ID)
	return nil
}

const activityColumns = `id, user_key, title, description, category, status, budget_total_cents, budget_buffer_cents, start_date, end_date, created_at, updated_at`

// GetActivity retrieves an activity by id scoped to the user key.
func (s *SQLiteStore) GetActivity(id, userKey string) (*models.Activity, error) {
	row := s.db.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE id = ? AND user_key = ?`, id, userKey)
	activity, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetActivity failed", "error", err, "activityID", id)
		return nil, err
	}
	return activity, nil
}

// UpdateActivity applies a patch in place; returns (nil, nil) if missing.
func (s *SQLiteStore) UpdateActivity(id string, patch models.ActivityPatch, userKey string) (*models.Activity, error) {
	activity, err := s.GetActivity(id, userKey)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, nil
	}
	applyPatch(activity, patch)
	activity.UpdatedAt = time.Now()

	_, err = s.db.Exec(`UPDATE activities
		SET title = ?, description = ?, category = ?, status = ?, budget_total_cents = ?, budget_buffer_cents = ?, start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ? AND user_key = ?`,
		activity.Title, nilIfEmpty(activity.Description), nilIfEmpty(activity.Category), activity.Status,
		nullableInt64(activity.BudgetTotalCents), nullableInt64(activity.BudgetBufferCents),
		nullableTime(activity.StartDate), nullableTime(activity.EndDate),
		activity.UpdatedAt, id, userKey)
	if err != nil {
		slog.Error("SQLiteStore UpdateActivity failed", "error", err, "activityID", id)
		return nil, fmt.Errorf("failed to update activity %s: %w", id, err)
	}
	slog.Debug("SQLiteStore UpdateActivity succeeded", "activityID", id)
	return activity, nil
}

// CreateTask stores a new task.
func (s *SQLiteStore) CreateTask(task models.Task) error {
	_, err := s.db.Exec(`INSERT INTO tasks
		(id, user_key, title, description, category, priority, time_estimate, due_date, cost_cents, cost_notes, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserKey, task.Title,
		nilIfEmpty(task.Description), nilIfEmpty(task.Category), nilIfEmpty(task.Priority), nilIfEmpty(task.TimeEstimate),
		nullableTime(task.DueDate), nullableInt64(task.CostCents), nilIfEmpty(task.CostNotes),
		task.Completed, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateTask failed", "error", err, "taskID", task.ID)
		return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
	}
	slog.Debug("SQLiteStore CreateTask succeeded", "taskID", task.ID)
	return nil
}

// DeleteTask removes a task row.
func (s *SQLiteStore) DeleteTask(id, userKey string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ? AND user_key = ?`, id, userKey)
	if err != nil {
		slog.Error("SQLiteStore DeleteTask failed", "error", err, "taskID", id)
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	slog.Debug("SQLiteStore DeleteTask succeeded", "taskID", id)
	return nil
}

// AttachTask links a task to an activity at the given order index.
func (s *SQLiteStore) AttachTask(activityID, taskID string, order int) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO activity_tasks (activity_id, task_id, task_order) VALUES (?, ?, ?)`,
		activityID, taskID, order)
	if err != nil {
		slog.Error("SQLiteStore AttachTask failed", "error", err, "activityID", activityID, "taskID", taskID)
		return fmt.Errorf("failed to attach task %s: %w", taskID, err)
	}
	return nil
}

// DetachTask unlinks a task from an activity.
func (s *SQLiteStore) DetachTask(activityID, taskID string) error {
	res, err := s.db.Exec(`DELETE FROM activity_tasks WHERE activity_id = ? AND task_id = ?`, activityID, taskID)
	if err != nil {
		slog.Error("SQLiteStore DetachTask failed", "error", err, "activityID", activityID, "taskID", taskID)
		return fmt.Errorf("failed to detach task %s: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns an activity's tasks in attachment order.
func (s *SQLiteStore) ListTasks(activityID, userKey string) ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT t.id, t.user_key, t.title, t.description, t.category, t.priority, t.time_estimate, t.due_date, t.cost_cents, t.cost_notes, t.completed, t.created_at, t.updated_at
		FROM tasks t
		JOIN activity_tasks at ON at.task_id = t.id
		WHERE at.activity_id = ? AND t.user_key = ?
		ORDER BY at.task_order ASC`, activityID, userKey)
	if err != nil {
		slog.Error("SQLiteStore ListTasks query failed", "error", err, "activityID", activityID)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			slog.Error("SQLiteStore ListTasks scan failed", "error", err, "activityID", activityID)
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	slog.Debug("SQLiteStore ListTasks succeeded", "activityID", activityID, "count", len(tasks))
	return tasks, nil
}

// ReplaceTaskSet atomically swaps an activity's task set inside a transaction.
// New tasks are inserted and attached in slice order; the previous tasks and
// attachments are removed. Either everything commits or nothing does.
func (s *SQLiteStore) ReplaceTaskSet(activityID, userKey string, tasks []models.Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceTaskSetTx(tx, sqliteRebind, activityID, userKey, tasks); err != nil {
		slog.Error("SQLiteStore ReplaceTaskSet failed", "error", err, "activityID", activityID)
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task replacement: %w", err)
	}
	slog.Debug("SQLiteStore ReplaceTaskSet succeeded", "activityID", activityID, "count", len(tasks))
	return nil
}

// sqliteRebind leaves ? placeholders untouched.
func sqliteRebind(query string) string { return query }
