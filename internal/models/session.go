package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionKind distinguishes class-wide sessions from ad-hoc ones.
type SessionKind string

const (
	SessionKindClass SessionKind = "class"
	SessionKindAdHoc SessionKind = "adhoc"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// ClassTimer is the single shared countdown of a session.
type ClassTimer struct {
	DurationSeconds  int  `json:"duration_seconds"`
	RemainingSeconds int  `json:"remaining_seconds"`
	IsActive         bool `json:"is_active"`
}

// Reaction is one emoji reaction posted during a session.
type Reaction struct {
	UserID uuid.UUID `json:"user_id"`
	Emoji  string    `json:"emoji"`
	At     time.Time `json:"at"`
}

// BreakoutAssignment records a partition of participants into rooms.
type BreakoutAssignment struct {
	NumRooms   int       `json:"num_rooms"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Session is the in-memory authoritative state of one live class session.
// All mutation goes through the session actor (internal/session), which
// serializes commands; fields must not be touched from outside that loop.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	HostID      uuid.UUID     `json:"host_id"`
	Kind        SessionKind   `json:"kind"`
	ClassID     *uuid.UUID    `json:"class_id,omitempty"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`

	Participants []*Participant `json:"participants"`

	Polls        []*Poll   `json:"polls"`
	ActivePollID uuid.UUID `json:"active_poll_id,omitempty"`

	Quizzes      []*Quiz   `json:"quizzes"`
	ActiveQuizID uuid.UUID `json:"active_quiz_id,omitempty"`

	RaisedHands []uuid.UUID    `json:"raised_hands"`
	Reactions   []Reaction     `json:"reactions"`
	RewardLog   []RewardAction `json:"reward_log"`

	ClassTimer    *ClassTimer         `json:"class_timer,omitempty"`
	SpotlightedID *uuid.UUID          `json:"spotlighted_id,omitempty"`
	Breakout      *BreakoutAssignment `json:"breakout,omitempty"`

	Chat []ChatMessage `json:"chat"`
}

// Participant returns the participant with the given user id, or nil.
func (s *Session) Participant(userID uuid.UUID) *Participant {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// ActivePoll returns the poll referenced by ActivePollID, or nil.
func (s *Session) ActivePoll() *Poll {
	if s.ActivePollID == uuid.Nil {
		return nil
	}
	for _, p := range s.Polls {
		if p.ID == s.ActivePollID {
			return p
		}
	}
	return nil
}

// ActiveQuiz returns the quiz referenced by ActiveQuizID, or nil.
func (s *Session) ActiveQuiz() *Quiz {
	if s.ActiveQuizID == uuid.Nil {
		return nil
	}
	for _, q := range s.Quizzes {
		if q.ID == s.ActiveQuizID {
			return q
		}
	}
	return nil
}
