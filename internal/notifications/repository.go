package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// ErrNotFound is returned when a notification row does not exist.
var ErrNotFound = errors.New("notification not found")

// Repository handles notification persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notifications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new notification.
func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	const query = `INSERT INTO notifications (id, recipient_id, type, title, message, action_url, read)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, FALSE)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, n.RecipientID, n.Type, n.Title, n.Message, n.ActionURL).
		Scan(&n.ID, &n.CreatedAt)
}

// GetByID returns a notification by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	const query = `SELECT id, recipient_id, type, title, message, action_url, read, created_at
		FROM notifications WHERE id = $1`
	var n models.Notification
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.ActionURL, &n.Read, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *Repository) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]models.Notification, error) {
	const query = `SELECT id, recipient_id, type, title, message, action_url, read, created_at
		FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.ActionURL, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadCount returns the number of unread notifications for the recipient.
func (r *Repository) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`
	var count int
	err := r.pool.QueryRow(ctx, query, recipientID).Scan(&count)
	return count, err
}

// MarkRead sets the read flag. Idempotent: marking an already-read
// notification is a no-op.
func (r *Repository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the notification. Idempotent against missing rows at the
// handler layer; here a miss is reported so ownership checks stay honest.
func (r *Repository) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	const query = `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
