package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one message in a session's chat log. Messages are persisted
// first, then appended to the in-memory session log and broadcast.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
