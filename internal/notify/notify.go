// Package notify handles side effects of plan materialization.
//
// Materialization publishes a PlanMaterialized event; this package
// consumes it to schedule activity reminders and emit push
// notifications. Every consumer runs fire-and-forget: the response path
// never waits on it and its failures are logged, never surfaced.
package notify

import (
	"log/slog"
	"time"

	"github.com/PlanLoom/PlanLoom/internal/models"
	"github.com/PlanLoom/PlanLoom/internal/scheduler"
)

// PlanMaterialized is published after a confirmed plan has been
// committed to storage.
type PlanMaterialized struct {
	UserKey  string
	Activity models.Activity
	Tasks    []models.Task
	// Updated is true when an existing Activity was re-materialized.
	Updated bool
}

// Publisher decouples the planning flow from notification delivery.
type Publisher interface {
	PublishPlanMaterialized(event PlanMaterialized)
}

// Sender delivers a single push notification to a user.
type Sender interface {
	Send(userKey, title, body string) error
}

// Notifier schedules reminders and sends push notifications for
// materialized plans.
type Notifier struct {
	scheduler *scheduler.Scheduler
	sender    Sender
}

// NewNotifier creates a Notifier. sender may be nil, in which case only
// reminder scheduling happens.
func NewNotifier(sched *scheduler.Scheduler, sender Sender) *Notifier {
	return &Notifier{scheduler: sched, sender: sender}
}

// PublishPlanMaterialized handles the event on a separate goroutine so
// the caller's response path never blocks on notification delivery.
func (n *Notifier) PublishPlanMaterialized(event PlanMaterialized) {
	go n.handle(event)
}

func (n *Notifier) handle(event PlanMaterialized) {
	if n.sender != nil {
		body := "Your plan \"" + event.Activity.Title + "\" is ready."
		if event.Updated {
			body = "Your plan \"" + event.Activity.Title + "\" has been updated."
		}
		if err := n.sender.Send(event.UserKey, "Plan ready", body); err != nil {
			slog.Error("Notifier.handle: failed to send push notification", "error", err, "userKey", event.UserKey, "activityID", event.Activity.ID)
		}
	}
	n.scheduleReminders(event)
}

// scheduleReminders registers one-shot reminders for the activity start
// and for each task due date still in the future.
func (n *Notifier) scheduleReminders(event PlanMaterialized) {
	if n.scheduler == nil {
		return
	}
	if event.Activity.StartDate != nil && event.Activity.StartDate.After(time.Now()) {
		activity := event.Activity
		userKey := event.UserKey
		err := n.scheduler.AddOneTimeJob(*activity.StartDate, func() {
			n.remind(userKey, "Activity starting", activity.Title)
		})
		if err != nil {
			slog.Error("Notifier.scheduleReminders: failed to schedule activity reminder", "error", err, "activityID", activity.ID)
		}
	}
	for _, task := range event.Tasks {
		if task.DueDate == nil || !task.DueDate.After(time.Now()) {
			continue
		}
		task := task
		err := n.scheduler.AddOneTimeJob(*task.DueDate, func() {
			n.remind(event.UserKey, "Task due", task.Title)
		})
		if err != nil {
			slog.Error("Notifier.scheduleReminders: failed to schedule task reminder", "error", err, "taskID", task.ID)
		}
	}
	slog.Debug("Notifier.scheduleReminders: reminders registered", "activityID", event.Activity.ID, "tasks", len(event.Tasks))
}

func (n *Notifier) remind(userKey, title, body string) {
	if n.sender == nil {
		slog.Info("Notifier.remind: reminder fired", "userKey", userKey, "title", title, "body", body)
		return
	}
	if err := n.sender.Send(userKey, title, body); err != nil {
		slog.Error("Notifier.remind: failed to deliver reminder", "error", err, "userKey", userKey)
	}
}
