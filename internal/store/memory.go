// Package store provides storage backends for PlanLoom.
//
// This file implements an in-memory store used by tests and by
// deployments that do not need persistence.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

type attachment struct {
	taskID string
	order  int
}

// InMemoryStore is a mutex-guarded map-backed Store.
type InMemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]models.PlanningSession
	activities  map[string]models.Activity
	tasks       map[string]models.Task
	attachments map[string][]attachment // activityID -> ordered task refs
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:    make(map[string]models.PlanningSession),
		activities:  make(map[string]models.Activity),
		tasks:       make(map[string]models.Task),
		attachments: make(map[string][]attachment),
	}
}

// CreateSession stores a new planning session.
func (s *InMemoryStore) CreateSession(session models.PlanningSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

// GetSession retrieves a session by id for the given user key.
func (s *InMemoryStore) GetSession(id, userKey string) (*models.PlanningSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || session.UserKey != userKey {
		return nil, nil
	}
	copied := session
	return &copied, nil
}

// GetActiveSession returns the user's single non-complete session, if any.
func (s *InMemoryStore) GetActiveSession(userKey string) (*models.PlanningSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.PlanningSession
	for _, session := range s.sessions {
		if session.UserKey != userKey || session.IsComplete {
			continue
		}
		copied := session
		if latest == nil || copied.UpdatedAt.After(latest.UpdatedAt) {
			latest = &copied
		}
	}
	return latest, nil
}

// UpdateSession overwrites a stored session.
func (s *InMemoryStore) UpdateSession(session models.PlanningSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

// CreateActivity stores a new activity.
func (s *InMemoryStore) CreateActivity(activity models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[activity.ID] = activity
	return nil
}

// GetActivity retrieves an activity by id for the given user key.
func (s *InMemoryStore) GetActivity(id, userKey string) (*models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	activity, ok := s.activities[id]
	if !ok || activity.UserKey != userKey {
		return nil, nil
	}
	copied := activity
	return &copied, nil
}

// UpdateActivity applies a patch in place; returns (nil, nil) if missing.
func (s *InMemoryStore) UpdateActivity(id string, patch models.ActivityPatch, userKey string) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	activity, ok := s.activities[id]
	if !ok || activity.UserKey != userKey {
		return nil, nil
	}
	applyPatch(&activity, patch)
	activity.UpdatedAt = time.Now()
	s.activities[id] = activity
	copied := activity
	return &copied, nil
}

// CreateTask stores a new task.
func (s *InMemoryStore) CreateTask(task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

// DeleteTask removes a task row.
func (s *InMemoryStore) DeleteTask(id, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.UserKey != userKey {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// AttachTask links a task to an activity at the given order index.
func (s *InMemoryStore) AttachTask(activityID, taskID string, order int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := s.attachments[activityID]
	for _, ref := range refs {
		if ref.taskID == taskID {
			return nil // already attached
		}
	}
	s.attachments[activityID] = append(refs, attachment{taskID: taskID, order: order})
	return nil
}

// DetachTask unlinks a task from an activity without deleting the task row.
func (s *InMemoryStore) DetachTask(activityID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := s.attachments[activityID]
	for i, ref := range refs {
		if ref.taskID == taskID {
			s.attachments[activityID] = append(refs[:i], refs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ListTasks returns an activity's tasks in attachment order.
func (s *InMemoryStore) ListTasks(activityID, userKey string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := append([]attachment(nil), s.attachments[activityID]...)
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].order < refs[j].order })

	var tasks []models.Task
	for _, ref := range refs {
		task, ok := s.tasks[ref.taskID]
		if !ok || task.UserKey != userKey {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// applyPatch copies non-nil patch fields onto the activity.
func applyPatch(activity *models.Activity, patch models.ActivityPatch) {
	if patch.Title != nil {
		activity.Title = *patch.Title
	}
	if patch.Description != nil {
		activity.Description = *patch.Description
	}
	if patch.Category != nil {
		activity.Category = *patch.Category
	}
	if patch.Status != nil {
		activity.Status = *patch.Status
	}
	if patch.BudgetTotalCents != nil {
		activity.BudgetTotalCents = patch.BudgetTotalCents
	}
	if patch.BudgetBufferCents != nil {
		activity.BudgetBufferCents = patch.BudgetBufferCents
	}
	if patch.StartDate != nil {
		activity.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		activity.EndDate = patch.EndDate
	}
}
