package models

import (
	"time"

	"github.com/google/uuid"
)

// PollOption is one choice in a poll; Votes holds the ids of voters who
// currently have this option selected.
type PollOption struct {
	ID    uuid.UUID   `json:"id"`
	Text  string      `json:"text"`
	Votes []uuid.UUID `json:"votes"`
}

// Poll is a single-choice voting round. A voter id appears in the Votes of
// at most one option; TotalVotes is derived from the option sets and is
// recomputed after every vote.
type Poll struct {
	ID         uuid.UUID    `json:"id"`
	SessionID  uuid.UUID    `json:"session_id"`
	Question   string       `json:"question"`
	Options    []PollOption `json:"options"`
	IsActive   bool         `json:"is_active"`
	TotalVotes int          `json:"total_votes"`
	CreatedAt  time.Time    `json:"created_at"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
}

// HasVoted reports whether the voter currently holds a vote in any option.
func (p *Poll) HasVoted(voterID uuid.UUID) bool {
	for i := range p.Options {
		for _, v := range p.Options[i].Votes {
			if v == voterID {
				return true
			}
		}
	}
	return false
}

// CountVotes sums the option vote sets.
func (p *Poll) CountVotes() int {
	n := 0
	for i := range p.Options {
		n += len(p.Options[i].Votes)
	}
	return n
}
