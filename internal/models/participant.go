package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is one member of a session, keyed by the stable user id so
// reconnects map back to the same entry. Participants are never deleted
// from the roster while the session lives; removal by the host is a
// terminal flag so point/reward history stays accountable.
type Participant struct {
	UserID        uuid.UUID  `json:"user_id"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	Online        bool       `json:"online"`
	InSession     bool       `json:"in_session"`
	Points        int        `json:"points"`
	Badges        []string   `json:"badges"`
	Muted         bool       `json:"muted"`
	HasRaisedHand bool       `json:"has_raised_hand"`
	RaisedHandAt  *time.Time `json:"raised_hand_at,omitempty"`
	BreakoutRoom  int        `json:"breakout_room"` // 0 = unassigned
	Removed       bool       `json:"removed"`
	JoinedAt      time.Time  `json:"joined_at"`
}
