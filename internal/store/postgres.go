// Package store provides storage backends for PlanLoom.
//
// This file implements a PostgreSQL-backed store for planning sessions,
// activities, and tasks.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/PlanLoom/PlanLoom/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists the planning engine's entities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

// CreateSession stores a new planning session.
func (s *PostgresStore) CreateSession(session models.PlanningSession) error {
	historyJSON, slotsJSON, contextJSON, err := marshalSessionColumns(session)
	if err != nil {
		slog.Error("PostgresStore CreateSession marshal failed", "error", err, "sessionID", session.ID)
		return err
	}
	_, err = s.db.Exec(postgresRebind(`INSERT INTO planning_sessions
		(id, user_key, session_state, conversation_history, slots, external_context, is_complete, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		session.ID, session.UserKey, session.SessionState,
		historyJSON, slotsJSON, contextJSON,
		session.IsComplete, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession retrieves a session by id scoped to the user key.
func (s *PostgresStore) GetSession(id, userKey string) (*models.PlanningSession, error) {
	row := s.db.QueryRow(postgresRebind(`SELECT `+sessionColumns+` FROM planning_sessions WHERE id = ? AND user_key = ?`), id, userKey)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}
	return session, nil
}

// GetActiveSession returns the user's single non-complete session, if any.
func (s *PostgresStore) GetActiveSession(userKey string) (*models.PlanningSession, error) {
	row := s.db.QueryRow(postgresRebind(`SELECT `+sessionColumns+` FROM planning_sessions
		WHERE user_key = ? AND is_complete = FALSE
		ORDER BY updated_at DESC LIMIT 1`), userKey)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetActiveSession failed", "error", err, "userKey", userKey)
		return nil, err
	}
	return session, nil
}

// UpdateSession overwrites a stored session.
func (s *PostgresStore) UpdateSession(session models.PlanningSession) error {
	historyJSON, slotsJSON, contextJSON, err := marshalSessionColumns(session)
	if err != nil {
		slog.Error("PostgresStore UpdateSession marshal failed", "error", err, "sessionID", session.ID)
		return err
	}
	res, err := s.db.Exec(postgresRebind(`UPDATE planning_sessions
		SET session_state = ?, conversation_history = ?, slots = ?, external_context = ?, is_complete = ?, updated_at = ?
		WHERE id = ? AND user_key = ?`),
		session.SessionState, historyJSON, slotsJSON, contextJSON,
		session.IsComplete, session.UpdatedAt, session.ID, session.UserKey)
	if err != nil {
		slog.Error("PostgresStore UpdateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateActivity stores a new activity.
func (s *PostgresStore) CreateActivity(activity models.Activity) error {
	_, err := s.db.Exec(postgresRebind(`INSERT INTO activities
		(id, user_key, title, description, category, status, budget_total_cents, budget_buffer_cents, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		activity.ID, activity.UserKey, activity.Title,
		nilIfEmpty(activity.Description), nilIfEmpty(activity.Category), activity.Status,
		nullableInt64(activity.BudgetTotalCents), nullableInt64(activity.BudgetBufferCents),
		nullableTime(activity.StartDate), nullableTime(activity.EndDate),
		activity.CreatedAt, activity.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateActivity failed", "error", err, "activityID", activity.ID)
		return fmt.Errorf("failed to insert activity %s: %w", activity.ID, err)
	}
	return nil
}

// GetActivity retrieves an activity by id scoped to the user key.
func (s *PostgresStore) GetActivity(id, userKey string) (*models.Activity, error) {
	row := s.db.QueryRow(postgresRebind(`SELECT `+activityColumns+` FROM activities WHERE id = ? AND user_key = ?`), id, userKey)
	activity, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetActivity failed", "error", err, "activityID", id)
		return nil, err
	}
	return activity, nil
}

// UpdateActivity applies a patch in place; returns (nil, nil) if missing.
func (s *PostgresStore) UpdateActivity(id string, patch models.ActivityPatch, userKey string) (*models.Activity, error) {
	activity, err := s.GetActivity(id, userKey)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, nil
	}
	applyPatch(activity, patch)
	activity.UpdatedAt = time.Now()

	_, err = s.db.Exec(postgresRebind(`UPDATE activities
		SET title = ?, description = ?, category = ?, status = ?, budget_total_cents = ?, budget_buffer_cents = ?, start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ? AND user_key = ?`),
		activity.Title, nilIfEmpty(activity.Description), nilIfEmpty(activity.Category), activity.Status,
		nullableInt64(activity.BudgetTotalCents), nullableInt64(activity.BudgetBufferCents),
		nullableTime(activity.StartDate), nullableTime(activity.EndDate),
		activity.UpdatedAt, id, userKey)
	if err != nil {
		slog.Error("PostgresStore UpdateActivity failed", "error", err, "activityID", id)
		return nil, fmt.Errorf("failed to update activity %s: %w", id, err)
	}
	return activity, nil
}

// CreateTask stores a new task.
func (s *PostgresStore) CreateTask(task models.Task) error {
	_, err := s.db.Exec(postgresRebind(`INSERT INTO tasks
		(id, user_key, title, description, category, priority, time_estimate, due_date, cost_cents, cost_notes, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		task.ID, task.UserKey, task.Title,
		nilIfEmpty(task.Description), nilIfEmpty(task.Category), nilIfEmpty(task.Priority), nilIfEmpty(task.TimeEstimate),
		nullableTime(task.DueDate), nullableInt64(task.CostCents), nilIfEmpty(task.CostNotes),
		task.Completed, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateTask failed", "error", err, "taskID", task.ID)
		return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes a task row.
func (s *PostgresStore) DeleteTask(id, userKey string) error {
	res, err := s.db.Exec(postgresRebind(`DELETE FROM tasks WHERE id = ? AND user_key = ?`), id, userKey)
	if err != nil {
		slog.Error("PostgresStore DeleteTask failed", "error", err, "taskID", id)
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachTask links a task to an activity at the given order index.
func (s *PostgresStore) AttachTask(activityID, taskID string, order int) error {
	_, err := s.db.Exec(postgresRebind(`INSERT INTO activity_tasks (activity_id, task_id, task_order) VALUES (?, ?, ?)
		ON CONFLICT (activity_id, task_id) DO UPDATE SET task_order = EXCLUDED.task_order`),
		activityID, taskID, order)
	if err != nil {
		slog.Error("PostgresStore AttachTask failed", "error", err, "activityID", activityID, "taskID", taskID)
		return fmt.Errorf("failed to attach task %s: %w", taskID, err)
	}
	return nil
}

// DetachTask unlinks a task from an activity.
func (s *PostgresStore) DetachTask(activityID, taskID string) error {
	res, err := s.db.Exec(postgresRebind(`DELETE FROM activity_tasks WHERE activity_id = ? AND task_id = ?`), activityID, taskID)
	if err != nil {
		slog.Error("PostgresStore DetachTask failed", "error", err, "activityID", activityID, "taskID", taskID)
		return fmt.Errorf("failed to detach task %s: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns an activity's tasks in attachment order.
func (s *PostgresStore) ListTasks(activityID, userKey string) ([]models.Task, error) {
	rows, err := s.db.Query(postgresRebind(`SELECT t.id, t.user_key, t.title, t.description, t.category, t.priority, t.time_estimate, t.due_date, t.cost_cents, t.cost_notes, t.completed, t.created_at, t.updated_at
		FROM tasks t
		JOIN activity_tasks at ON at.task_id = t.id
		WHERE at.activity_id = ? AND t.user_key = ?
		ORDER BY at.task_order ASC`), activityID, userKey)
	if err != nil {
		slog.Error("PostgresStore ListTasks query failed", "error", err, "activityID", activityID)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

// ReplaceTaskSet atomically swaps an activity's task set inside a transaction.
func (s *PostgresStore) ReplaceTaskSet(activityID, userKey string, tasks []models.Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceTaskSetTx(tx, postgresRebind, activityID, userKey, tasks); err != nil {
		slog.Error("PostgresStore ReplaceTaskSet failed", "error", err, "activityID", activityID)
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task replacement: %w", err)
	}
	slog.Debug("PostgresStore ReplaceTaskSet succeeded", "activityID", activityID, "count", len(tasks))
	return nil
}
