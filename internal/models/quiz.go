package models

import (
	"time"

	"github.com/google/uuid"
)

// QuizQuestion is one timed multiple-choice question.
type QuizQuestion struct {
	ID                 uuid.UUID `json:"id"`
	Text               string    `json:"text"`
	Options            []string  `json:"options"`
	CorrectOptionIndex int       `json:"correct_option_index"`
	TimeLimitSeconds   int       `json:"time_limit_seconds"`
}

// QuizAnswer is one recorded submission: at most one per (participant,
// question) pair, first submission wins.
type QuizAnswer struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	OptionIndex   int       `json:"option_index"`
	Correct       bool      `json:"correct"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Quiz is a sequenced, timed question round. Progression is host-driven:
// CurrentQuestionIndex only moves forward and never past the last question.
type Quiz struct {
	ID                   uuid.UUID      `json:"id"`
	SessionID            uuid.UUID      `json:"session_id"`
	Title                string         `json:"title"`
	Questions            []QuizQuestion `json:"questions"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	TimeRemaining        int            `json:"time_remaining"`
	IsActive             bool           `json:"is_active"`
	Answers              []QuizAnswer   `json:"answers"`
	CreatedAt            time.Time      `json:"created_at"`
	EndedAt              *time.Time     `json:"ended_at,omitempty"`
}

// CurrentQuestion returns the question at CurrentQuestionIndex, or nil.
func (q *Quiz) CurrentQuestion() *QuizQuestion {
	if q.CurrentQuestionIndex < 0 || q.CurrentQuestionIndex >= len(q.Questions) {
		return nil
	}
	return &q.Questions[q.CurrentQuestionIndex]
}

// HasAnswered reports whether the participant already answered the question.
func (q *Quiz) HasAnswered(participantID, questionID uuid.UUID) bool {
	for _, a := range q.Answers {
		if a.ParticipantID == participantID && a.QuestionID == questionID {
			return true
		}
	}
	return false
}
