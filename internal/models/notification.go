package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType identifies the notification kind.
type NotificationType string

const (
	NotificationSessionInvite NotificationType = "session_invite"
	NotificationSessionEnded  NotificationType = "session_ended"
	NotificationReward        NotificationType = "reward"
	NotificationGeneric       NotificationType = "generic"
)

// Notification is a durable per-recipient message. It is persisted before
// any live push so an offline recipient can pull it later.
type Notification struct {
	ID          uuid.UUID        `json:"id"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ActionURL   string           `json:"action_url,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
}
