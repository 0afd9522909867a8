package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/pkg/queue"
)

type fakeNotifStore struct {
	created []*models.Notification
	err     error
}

func (f *fakeNotifStore) Create(_ context.Context, n *models.Notification) error {
	if f.err != nil {
		return f.err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	f.created = append(f.created, n)
	return nil
}

type fakeUnicaster struct {
	online bool
	sent   []uuid.UUID
	events []string
}

func (f *fakeUnicaster) SendToUser(userID uuid.UUID, event string, _ interface{}) bool {
	f.sent = append(f.sent, userID)
	f.events = append(f.events, event)
	return f.online
}

type fakeEnqueuer struct {
	jobs []queue.NotificationEmailPayload
}

func (f *fakeEnqueuer) EnqueueNotificationEmail(_ context.Context, p queue.NotificationEmailPayload) error {
	f.jobs = append(f.jobs, p)
	return nil
}

func TestDispatchPersistsThenPushes(t *testing.T) {
	repo := &fakeNotifStore{}
	hub := &fakeUnicaster{online: true}
	jobs := &fakeEnqueuer{}
	d := NewDispatcher(repo, hub, jobs, nil)

	n := &models.Notification{
		RecipientID: uuid.New(),
		Type:        models.NotificationSessionInvite,
		Title:       "Class session starting",
	}
	if err := d.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 persisted notification, got %d", len(repo.created))
	}
	if len(hub.sent) != 1 || hub.sent[0] != n.RecipientID || hub.events[0] != "notification:new" {
		t.Fatalf("unexpected push: users=%v events=%v", hub.sent, hub.events)
	}
	if len(jobs.jobs) != 0 {
		t.Fatal("online recipient should not get an email job")
	}
}

func TestDispatchOfflineInviteFallsBackToEmail(t *testing.T) {
	repo := &fakeNotifStore{}
	hub := &fakeUnicaster{online: false}
	jobs := &fakeEnqueuer{}
	d := NewDispatcher(repo, hub, jobs, nil)

	n := &models.Notification{
		RecipientID: uuid.New(),
		Type:        models.NotificationSessionInvite,
		Title:       "Class session starting",
		Message:     "Algebra II",
	}
	if err := d.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected 1 email job, got %d", len(jobs.jobs))
	}
	job := jobs.jobs[0]
	if job.RecipientID != n.RecipientID || job.Title != n.Title || job.Type != string(models.NotificationSessionInvite) {
		t.Fatalf("email job payload mismatch: %+v", job)
	}
}

func TestDispatchOfflineGenericSkipsEmail(t *testing.T) {
	repo := &fakeNotifStore{}
	hub := &fakeUnicaster{online: false}
	jobs := &fakeEnqueuer{}
	d := NewDispatcher(repo, hub, jobs, nil)

	n := &models.Notification{
		RecipientID: uuid.New(),
		Type:        models.NotificationGeneric,
		Title:       "hello",
	}
	if err := d.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(jobs.jobs) != 0 {
		t.Fatal("generic notifications should not fall back to email")
	}
	if len(repo.created) != 1 {
		t.Fatal("notification should still be persisted")
	}
}

func TestDispatchStoreErrorFailsWithoutPush(t *testing.T) {
	repo := &fakeNotifStore{err: errors.New("insert failed")}
	hub := &fakeUnicaster{online: true}
	d := NewDispatcher(repo, hub, nil, nil)

	n := &models.Notification{RecipientID: uuid.New(), Type: models.NotificationGeneric}
	if err := d.Dispatch(context.Background(), n); err == nil {
		t.Fatal("expected error")
	}
	if len(hub.sent) != 0 {
		t.Fatal("failed persist must not push")
	}
}
