package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is one attendee entry for GET /sessions/:id/attendance.
type Row struct {
	UserID       uuid.UUID  `json:"user_id"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	WatchSeconds int64      `json:"watch_seconds"`
}

// Repository handles session_attendance rows: one row per join/leave pair,
// written by the hub's session join/leave callbacks.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogJoin inserts a row when a client joins a session room.
func (r *Repository) LogJoin(ctx context.Context, sessionID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_attendance (session_id, user_id, joined_at) VALUES ($1, $2, NOW())`,
		sessionID, userID)
	return err
}

// LogLeave closes the most recent open row for this user in this session.
func (r *Repository) LogLeave(ctx context.Context, sessionID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE session_attendance a SET left_at = NOW(), watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - a.joined_at))::BIGINT)
		 FROM (SELECT id FROM session_attendance WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL ORDER BY joined_at DESC LIMIT 1) AS sub
		 WHERE a.id = sub.id`,
		sessionID, userID)
	return err
}

// ListBySession returns attendance rows for a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Row, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, joined_at, left_at, watch_seconds
		 FROM session_attendance WHERE session_id = $1 ORDER BY joined_at DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.UserID, &row.JoinedAt, &row.LeftAt, &row.WatchSeconds); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}
