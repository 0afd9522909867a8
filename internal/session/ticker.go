package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// Broadcaster fans out a state-change event to every connection in a
// session. Implemented by realtime.Hub.
type Broadcaster interface {
	BroadcastToSession(sessionID uuid.UUID, event string, payload interface{})
}

// Ticker drives the shared countdowns. Once per interval it dispatches a
// tick command to every live session; the decrement itself runs inside the
// session's actor like any other serialized action. A session whose queue
// is momentarily full skips the tick and catches up on the next one.
type Ticker struct {
	registry *Registry
	events   Broadcaster
	interval time.Duration
	logger   *zap.Logger
}

// NewTicker creates a ticker over the registry. interval is typically one
// second.
func NewTicker(registry *Registry, events Broadcaster, interval time.Duration, logger *zap.Logger) *Ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{registry: registry, events: events, interval: interval, logger: logger}
}

// Run loops until ctx is done.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	delta := int(t.interval / time.Second)
	if delta < 1 {
		delta = 1
	}
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("session ticker stopping")
			return
		case <-ticker.C:
			for _, id := range t.registry.LiveIDs() {
				sessionID := id
				t.registry.tick(sessionID, func(s *models.Session) {
					res := Tick(s, delta)
					if res.TimerChanged {
						t.events.BroadcastToSession(sessionID, "timer:update", s.ClassTimer)
					}
					if res.QuizChanged {
						if q := s.ActiveQuiz(); q != nil {
							t.events.BroadcastToSession(sessionID, "quiz:update", quizTickPayload(q))
						}
					}
				})
			}
		}
	}
}

func quizTickPayload(q *models.Quiz) map[string]interface{} {
	return map[string]interface{}{
		"quiz_id":                q.ID,
		"current_question_index": q.CurrentQuestionIndex,
		"time_remaining":         q.TimeRemaining,
		"is_active":              q.IsActive,
	}
}
