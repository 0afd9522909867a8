package models

import (
	"time"

	"github.com/google/uuid"
)

// RewardType identifies why points were granted.
type RewardType string

const (
	RewardManual        RewardType = "manual"
	RewardParticipation RewardType = "participation"
	RewardPollVote      RewardType = "poll_vote"
	RewardQuizCorrect   RewardType = "quiz_correct"
)

// PollVotePoints is the fixed grant for a voter's first vote on a poll in a
// class-type session.
const PollVotePoints = 2

// RewardAction is one append-only entry in a session's reward log. Entries
// are never mutated or deleted; a participant's Points field is the running
// sum of their entries and is updated in the same step as the append.
type RewardAction struct {
	ID            uuid.UUID  `json:"id"`
	SessionID     uuid.UUID  `json:"session_id"`
	ParticipantID uuid.UUID  `json:"participant_id"`
	Type          RewardType `json:"type"`
	Points        int        `json:"points"`
	Badge         string     `json:"badge,omitempty"`
	Reason        string     `json:"reason"`
	CreatedAt     time.Time  `json:"created_at"`
}
