package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

type mockSender struct {
	mu    sync.Mutex
	sent  []string
	err   error
	fired chan struct{}
}

func newMockSender(err error) *mockSender {
	return &mockSender{err: err, fired: make(chan struct{}, 10)}
}

func (m *mockSender) Send(userKey, title, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, title+": "+body)
	m.mu.Unlock()
	m.fired <- struct{}{}
	return m.err
}

func TestPublishPlanMaterializedSendsNotification(t *testing.T) {
	sender := newMockSender(nil)
	n := NewNotifier(nil, sender)

	n.PublishPlanMaterialized(PlanMaterialized{
		UserKey:  "user:alice",
		Activity: models.Activity{ID: "act-1", Title: "Weekend trip"},
	})

	select {
	case <-sender.fired:
	case <-time.After(time.Second):
		t.Fatal("expected notification to be sent")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sender.sent))
	}
}

func TestPublishPlanMaterializedSenderFailureIsSwallowed(t *testing.T) {
	sender := newMockSender(errors.New("push gateway down"))
	n := NewNotifier(nil, sender)

	// Must not panic or block; delivery failure is logged only.
	n.PublishPlanMaterialized(PlanMaterialized{
		UserKey:  "user:alice",
		Activity: models.Activity{ID: "act-1", Title: "Weekend trip"},
	})

	select {
	case <-sender.fired:
	case <-time.After(time.Second):
		t.Fatal("expected send attempt despite failure")
	}
}

func TestPublishPlanMaterializedNilSender(t *testing.T) {
	n := NewNotifier(nil, nil)
	start := time.Now().Add(24 * time.Hour)
	// No sender and no scheduler: the event is a no-op and must not panic.
	n.PublishPlanMaterialized(PlanMaterialized{
		UserKey:  "guest:g_1",
		Activity: models.Activity{ID: "act-1", Title: "Trip", StartDate: &start},
	})
	time.Sleep(10 * time.Millisecond)
}
