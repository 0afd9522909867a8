package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository is the PostgreSQL-backed durable record of sessions. The full
// state is kept as a JSONB snapshot for recovery; participant and reward
// rows are additionally maintained for reporting queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts the session row, its initial snapshot, and the
// participant rows.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	snapshot, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	const query = `INSERT INTO sessions (id, host_id, kind, class_id, status, started_at, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.pool.Exec(ctx, query, s.ID, s.HostID, s.Kind, s.ClassID, s.Status, s.StartedAt, snapshot); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for _, p := range s.Participants {
		if err := r.upsertParticipant(ctx, s.ID, p); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot overwrites the session's snapshot and refreshes the
// participant rows.
func (r *Repository) SaveSnapshot(ctx context.Context, s *models.Session) error {
	snapshot, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	const query = `UPDATE sessions SET snapshot = $2, status = $3, ended_at = $4, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, s.ID, snapshot, s.Status, s.EndedAt); err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	for _, p := range s.Participants {
		if err := r.upsertParticipant(ctx, s.ID, p); err != nil {
			return err
		}
	}
	return nil
}

// LoadSession reads the durable record back into a session. Returns
// ErrSessionNotFound when no row exists.
func (r *Repository) LoadSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const query = `SELECT snapshot FROM sessions WHERE id = $1`
	var snapshot []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(&snapshot); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// MarkEnded sets the terminal status and end time on the session row.
func (r *Repository) MarkEnded(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	const query = `UPDATE sessions SET status = $2, ended_at = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.SessionStatusEnded, endedAt)
	return err
}

// AppendReward inserts one reward action row; the log is append-only.
func (r *Repository) AppendReward(ctx context.Context, a *models.RewardAction) error {
	const query = `INSERT INTO reward_actions (id, session_id, participant_id, type, points, badge, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, a.ID, a.SessionID, a.ParticipantID, a.Type, a.Points, a.Badge, a.Reason, a.CreatedAt)
	return err
}

// ListRewards returns the reward log for a session, oldest first.
func (r *Repository) ListRewards(ctx context.Context, sessionID uuid.UUID) ([]models.RewardAction, error) {
	const query = `SELECT id, session_id, participant_id, type, points, badge, reason, created_at
		FROM reward_actions WHERE session_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RewardAction
	for rows.Next() {
		var a models.RewardAction
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ParticipantID, &a.Type, &a.Points, &a.Badge, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListByHost returns session summaries for a host, newest first.
func (r *Repository) ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Session, error) {
	const query = `SELECT snapshot FROM sessions WHERE host_id = $1 ORDER BY started_at DESC`
	rows, err := r.pool.Query(ctx, query, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, err
		}
		var s models.Session
		if err := json.Unmarshal(snapshot, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) upsertParticipant(ctx context.Context, sessionID uuid.UUID, p *models.Participant) error {
	const query = `INSERT INTO session_participants (session_id, user_id, name, role, points, removed, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, user_id) DO UPDATE SET points = EXCLUDED.points, removed = EXCLUDED.removed`
	_, err := r.pool.Exec(ctx, query, sessionID, p.UserID, p.Name, p.Role, p.Points, p.Removed, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}
