package materializer

import (
	"context"
	"errors"
	"testing"

	"github.com/PlanLoom/PlanLoom/internal/models"
	"github.com/PlanLoom/PlanLoom/internal/store"
)

func testPrincipal(t *testing.T) models.Principal {
	t.Helper()
	principal, err := models.NewAuthenticated("alice")
	if err != nil {
		t.Fatalf("NewAuthenticated failed: %v", err)
	}
	return principal
}

func testPlan(taskCount int) *models.CandidatePlan {
	plan := &models.CandidatePlan{
		Title:       "Birthday party",
		Description: "A surprise party for Sam",
		Domain:      "events",
	}
	titles := []string{"Book venue", "Order cake", "Send invitations", "Buy decorations", "Plan playlist"}
	for i := 0; i < taskCount; i++ {
		plan.Tasks = append(plan.Tasks, models.TaskDraft{
			Title:    titles[i%len(titles)],
			Category: "events",
			Priority: "medium",
		})
	}
	return plan
}

func TestMaterializeCreatePath(t *testing.T) {
	st := store.NewInMemoryStore()
	m := New(st)
	principal := testPrincipal(t)

	plan := testPlan(5)
	plan.Budget = &models.BudgetDraft{Total: 123.45, Buffer: 10}

	outcome, err := m.Materialize(context.Background(), principal, plan, "")
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if !outcome.Created {
		t.Error("expected create path outcome")
	}
	if len(outcome.Tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(outcome.Tasks))
	}
	if outcome.Activity.BudgetTotalCents == nil || *outcome.Activity.BudgetTotalCents != 12345 {
		t.Errorf("expected budget 12345 cents, got %v", outcome.Activity.BudgetTotalCents)
	}
	if outcome.Activity.Status != models.ActivityStatusPlanning {
		t.Errorf("expected planning status, got %s", outcome.Activity.Status)
	}

	persisted, err := st.ListTasks(outcome.Activity.ID, principal.Key())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(persisted) != 5 {
		t.Fatalf("expected 5 persisted tasks, got %d", len(persisted))
	}
	if persisted[0].Title != "Book venue" || persisted[4].Title != "Plan playlist" {
		t.Errorf("tasks not in draft order: first=%q last=%q", persisted[0].Title, persisted[4].Title)
	}
}

func TestMaterializeUpdatePathReplacesTasks(t *testing.T) {
	st := store.NewInMemoryStore()
	m := New(st)
	principal := testPrincipal(t)

	first, err := m.Materialize(context.Background(), principal, testPlan(3), "")
	if err != nil {
		t.Fatalf("initial Materialize failed: %v", err)
	}

	revised := testPlan(2)
	revised.Title = "Bigger birthday party"
	outcome, err := m.Materialize(context.Background(), principal, revised, first.Activity.ID)
	if err != nil {
		t.Fatalf("update Materialize failed: %v", err)
	}
	if outcome.Created {
		t.Error("expected update path outcome")
	}
	if outcome.Activity.ID != first.Activity.ID {
		t.Errorf("expected same activity id %s, got %s", first.Activity.ID, outcome.Activity.ID)
	}
	if outcome.Activity.Title != "Bigger birthday party" {
		t.Errorf("expected updated title, got %q", outcome.Activity.Title)
	}

	persisted, err := st.ListTasks(first.Activity.ID, principal.Key())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected 2 tasks after update, got %d", len(persisted))
	}
	for _, old := range first.Tasks {
		if err := st.DeleteTask(old.ID, principal.Key()); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("old task %s should be gone, delete returned %v", old.ID, err)
		}
	}
}

func TestMaterializeFallsBackToCreateWhenActivityMissing(t *testing.T) {
	st := store.NewInMemoryStore()
	m := New(st)
	principal := testPrincipal(t)

	outcome, err := m.Materialize(context.Background(), principal, testPlan(2), "deleted-out-of-band")
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if !outcome.Created {
		t.Error("expected transparent fallback to create path")
	}
	if outcome.Activity.ID == "deleted-out-of-band" {
		t.Error("expected a fresh activity id")
	}
}

// failingStore injects a CreateTask failure after a fixed number of
// successful calls. Embedding the interface keeps the wrapper on the
// procedural replacement path.
type failingStore struct {
	store.Store
	failAfter int
	calls     int
}

func (f *failingStore) CreateTask(task models.Task) error {
	f.calls++
	if f.calls > f.failAfter {
		return errors.New("disk full")
	}
	return f.Store.CreateTask(task)
}

func TestMaterializeUpdateRollbackRestoresOriginalTasks(t *testing.T) {
	mem := store.NewInMemoryStore()
	m := New(mem)
	principal := testPrincipal(t)

	first, err := m.Materialize(context.Background(), principal, testPlan(3), "")
	if err != nil {
		t.Fatalf("initial Materialize failed: %v", err)
	}
	original, err := mem.ListTasks(first.Activity.ID, principal.Key())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}

	// Fail at task 2 of 5 during the replacement.
	failing := &failingStore{Store: mem, failAfter: 1}
	m2 := New(failing)
	_, err = m2.Materialize(context.Background(), principal, testPlan(5), first.Activity.ID)
	if err == nil {
		t.Fatal("expected materialization to fail")
	}

	after, err := mem.ListTasks(first.Activity.ID, principal.Key())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(after) != len(original) {
		t.Fatalf("expected %d tasks after rollback, got %d", len(original), len(after))
	}
	for i := range original {
		if after[i].ID != original[i].ID || after[i].Title != original[i].Title {
			t.Errorf("position %d: expected task %s %q, got %s %q", i, original[i].ID, original[i].Title, after[i].ID, after[i].Title)
		}
	}
}

// detachFailingStore injects a DetachTask failure after a fixed number
// of successful calls.
type detachFailingStore struct {
	store.Store
	failAfter int
	calls     int
}

func (f *detachFailingStore) DetachTask(activityID, taskID string) error {
	f.calls++
	if f.calls > f.failAfter {
		return errors.New("connection reset")
	}
	return f.Store.DetachTask(activityID, taskID)
}

func TestMaterializeUpdateRollbackAfterDetachFailure(t *testing.T) {
	mem := store.NewInMemoryStore()
	m := New(mem)
	principal := testPrincipal(t)

	first, err := m.Materialize(context.Background(), principal, testPlan(3), "")
	if err != nil {
		t.Fatalf("initial Materialize failed: %v", err)
	}
	original, err := mem.ListTasks(first.Activity.ID, principal.Key())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}

	// All 5 replacement tasks are created, then the detach of the
	// second original task fails.
	failing := &detachFailingStore{Store: mem, failAfter: 1}
	m2 := New(failing)
	_, err = m2.Materialize(context.Background(), principal, testPlan(5), first.Activity.ID)
	if err == nil {
		t.Fatal("expected materialization to fail")
	}

	after, err := mem.ListTasks(first.Activity.ID, principal.Key())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(after) != len(original) {
		t.Fatalf("expected %d tasks after rollback, got %d", len(original), len(after))
	}
	for i := range original {
		if after[i].ID != original[i].ID || after[i].Title != original[i].Title {
			t.Errorf("position %d: expected task %s %q, got %s %q", i, original[i].ID, original[i].Title, after[i].ID, after[i].Title)
		}
	}
}

func TestMaterializeRejectsInvalidPlan(t *testing.T) {
	m := New(store.NewInMemoryStore())
	principal := testPrincipal(t)

	_, err := m.Materialize(context.Background(), principal, &models.CandidatePlan{Title: "No tasks"}, "")
	if !errors.Is(err, models.ErrPlanNoTasks) {
		t.Errorf("expected ErrPlanNoTasks, got %v", err)
	}
}

func TestDeriveDueDateDeadlinePhrase(t *testing.T) {
	draft := models.TaskDraft{
		Title:         "Meet caterer before 2 PM",
		ScheduledDate: "2025-06-01",
	}
	due := deriveDueDate(draft, 0, 1)
	if due == nil {
		t.Fatal("expected a derived due date")
	}
	if due.Hour() > 12 {
		t.Errorf("expected start time at or before 12:00, got %02d:%02d", due.Hour(), due.Minute())
	}
	if due.Format("2006-01-02") != "2025-06-01" {
		t.Errorf("expected date preserved, got %s", due.Format("2006-01-02"))
	}
}

func TestDeriveDueDateSiblingDistribution(t *testing.T) {
	draft := models.TaskDraft{Title: "Buy decorations", ScheduledDate: "2025-06-01"}
	due := deriveDueDate(draft, 2, 5)
	if due == nil {
		t.Fatal("expected a derived due date")
	}
	if due.Hour() <= 9 || due.Hour() >= 20 {
		t.Errorf("expected start time strictly between 09:00 and 20:00, got %02d:00", due.Hour())
	}
}

func TestDeriveDueDateExplicitStartTime(t *testing.T) {
	draft := models.TaskDraft{Title: "Book venue", ScheduledDate: "2025-06-01", StartTime: "14:30"}
	due := deriveDueDate(draft, 0, 3)
	if due == nil || due.Hour() != 14 || due.Minute() != 30 {
		t.Fatalf("expected 14:30, got %v", due)
	}
}

func TestDeriveDueDateClockPhrase(t *testing.T) {
	draft := models.TaskDraft{Title: "Call band at 7:30 pm", ScheduledDate: "2025-06-01"}
	due := deriveDueDate(draft, 0, 1)
	if due == nil || due.Hour() != 19 || due.Minute() != 30 {
		t.Fatalf("expected 19:30, got %v", due)
	}
}

func TestDeriveDueDateNamedPeriod(t *testing.T) {
	draft := models.TaskDraft{Title: "Set up in the evening", ScheduledDate: "2025-06-01"}
	due := deriveDueDate(draft, 0, 1)
	if due == nil || due.Hour() != 18 {
		t.Fatalf("expected 18:00, got %v", due)
	}
}

func TestDeriveDueDateNoSchedule(t *testing.T) {
	if due := deriveDueDate(models.TaskDraft{Title: "Whenever"}, 0, 1); due != nil {
		t.Errorf("expected nil due date, got %v", due)
	}
}

func TestToCentsRounding(t *testing.T) {
	cases := map[float64]int64{
		123.45: 12345,
		0:      0,
		19.999: 2000,
		1000:   100000,
	}
	for in, want := range cases {
		if got := toCents(in); got != want {
			t.Errorf("toCents(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestMatchBudgetLine(t *testing.T) {
	lines := []models.BudgetLine{
		{Category: "Venue", Amount: 500},
		{Category: "food & catering", Amount: 300, Notes: "includes cake"},
	}

	if line := matchBudgetLine(lines, models.TaskDraft{Title: "Order catering", Category: "food"}); line == nil || line.Amount != 300 {
		t.Errorf("expected catering line, got %v", line)
	}
	if line := matchBudgetLine(lines, models.TaskDraft{Title: "Book the venue hall"}); line == nil || line.Amount != 500 {
		t.Errorf("expected venue line via title match, got %v", line)
	}
	if line := matchBudgetLine(lines, models.TaskDraft{Title: "Send invitations", Category: "logistics"}); line != nil {
		t.Errorf("expected no match, got %v", line)
	}
}
