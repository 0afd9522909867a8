package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository handles chat message persistence. Messages are persisted
// before being appended to the in-memory session log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new chat message.
func (r *Repository) Create(ctx context.Context, m *models.ChatMessage) error {
	const query = `INSERT INTO chat_messages (id, session_id, user_id, user_name, content)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, m.SessionID, m.UserID, m.UserName, m.Content).
		Scan(&m.ID, &m.CreatedAt)
}

// ListBySession returns a session's chat log, oldest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	const query = `SELECT id, session_id, user_id, user_name, content, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.UserName, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
