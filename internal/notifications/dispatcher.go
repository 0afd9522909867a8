package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/pkg/queue"
)

// store is the durable side of dispatch.
type store interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Unicaster pushes an event to a single online user; returns false when
// the user holds no live connection. Implemented by realtime.Hub.
type Unicaster interface {
	SendToUser(userID uuid.UUID, event string, payload interface{}) bool
}

// Enqueuer hands offline-recipient notifications to the background worker
// for the email fallback. Implemented by queue.Queue.
type Enqueuer interface {
	EnqueueNotificationEmail(ctx context.Context, payload queue.NotificationEmailPayload) error
}

// Dispatcher delivers notifications with a durability guarantee: every
// dispatch is persisted first, so an offline recipient can pull it later,
// and additionally pushed live when the recipient is online. Offline
// recipients of invite and session-end notifications also get an email job.
type Dispatcher struct {
	repo    store
	hub     Unicaster
	jobs    Enqueuer
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. jobs may be nil (no email fallback).
func NewDispatcher(repo store, hub Unicaster, jobs Enqueuer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{repo: repo, hub: hub, jobs: jobs, logger: logger}
}

// Dispatch persists the notification, then pushes it live. The persist is
// the guarantee; the push is best-effort.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) error {
	if err := d.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	online := d.hub.SendToUser(n.RecipientID, "notification:new", n)
	if online {
		return nil
	}

	// Offline recipient: queue the email fallback for event types that
	// must survive a disconnect.
	if d.jobs != nil && (n.Type == models.NotificationSessionInvite || n.Type == models.NotificationSessionEnded) {
		err := d.jobs.EnqueueNotificationEmail(ctx, queue.NotificationEmailPayload{
			NotificationID: n.ID,
			RecipientID:    n.RecipientID,
			Type:           string(n.Type),
			Title:          n.Title,
			Message:        n.Message,
		})
		if err != nil {
			d.logger.Warn("enqueue notification email failed",
				zap.String("notification_id", n.ID.String()), zap.Error(err))
		}
	}
	return nil
}
