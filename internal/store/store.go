// Package store provides storage backends for PlanLoom.
//
// It persists planning sessions, activities, and tasks, with in-memory,
// SQLite, and PostgreSQL implementations behind a single interface.
package store

import (
	"errors"
	"strings"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

// ErrNotFound is returned by mutating operations whose target row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract of the planning engine.
//
// Read methods return (nil, nil) when the row does not exist; callers
// that need an error translate that themselves. All methods are scoped
// by the caller's principal storage key so one user can never read or
// mutate another user's rows.
type Store interface {
	// Planning sessions. Sessions are append-only: they are marked
	// complete via UpdateSession, never deleted.
	CreateSession(session models.PlanningSession) error
	GetSession(id, userKey string) (*models.PlanningSession, error)
	GetActiveSession(userKey string) (*models.PlanningSession, error)
	UpdateSession(session models.PlanningSession) error

	// Activities and tasks.
	CreateActivity(activity models.Activity) error
	GetActivity(id, userKey string) (*models.Activity, error)
	// UpdateActivity applies the patch and returns the updated row, or
	// (nil, nil) when the activity no longer exists.
	UpdateActivity(id string, patch models.ActivityPatch, userKey string) (*models.Activity, error)
	CreateTask(task models.Task) error
	DeleteTask(id, userKey string) error
	AttachTask(activityID, taskID string, order int) error
	DetachTask(activityID, taskID string) error
	// ListTasks returns the activity's tasks in attachment order.
	ListTasks(activityID, userKey string) ([]models.Task, error)

	Close() error
}

// TaskSetReplacer is implemented by backends that can swap an activity's
// entire task set atomically. The SQL backends run the swap inside a
// transaction; callers fall back to procedural create-before-delete with
// rollback when the backend does not implement this.
type TaskSetReplacer interface {
	ReplaceTaskSet(activityID, userKey string, tasks []models.Task) error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string: a file path for SQLite, a
	// connection URL for PostgreSQL.
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3". PostgreSQL
// DSNs use URL or key=value forms; anything else is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
