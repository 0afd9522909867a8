package session

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/pkg/queue"
	"github.com/classpulse/backend/pkg/response"
)

// EventBus is the slice of the realtime hub the handler needs.
type EventBus interface {
	Broadcaster
	BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{})
	PublishToSessionOnly(sessionID uuid.UUID, event string, payload interface{})
	SendToUser(userID uuid.UUID, event string, payload interface{}) bool
}

// Notifier is the notification dispatcher boundary.
type Notifier interface {
	Dispatch(ctx context.Context, n *models.Notification) error
}

// UserDirectory resolves user identities for rosters and invites.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ChatStore persists chat messages before they enter the in-memory log.
type ChatStore interface {
	Create(ctx context.Context, m *models.ChatMessage) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error)
}

// ReportEnqueuer queues the end-of-session report archive job.
type ReportEnqueuer interface {
	EnqueueSessionReport(ctx context.Context, payload queue.SessionReportPayload) error
}

// Handler exposes the session engine over HTTP. Authorization here is
// host/participant role checking only; identity is already resolved by the
// JWT middleware. Not-found and unauthorized outcomes are always distinct.
type Handler struct {
	registry *Registry
	repo     *Repository
	hub      EventBus
	notifier Notifier
	users    UserDirectory
	chat     ChatStore
	jobs     ReportEnqueuer
	logger   *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(registry *Registry, repo *Repository, hub EventBus, notifier Notifier, users UserDirectory, chat ChatStore, jobs ReportEnqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		repo:     repo,
		hub:      hub,
		notifier: notifier,
		users:    users,
		chat:     chat,
		jobs:     jobs,
		logger:   logger,
	}
}

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	Kind         models.SessionKind `json:"kind" binding:"required,oneof=class adhoc"`
	ClassID      *uuid.UUID         `json:"class_id"`
	Title        string             `json:"title"`
	Participants []uuid.UUID        `json:"participants"`
}

// Create handles POST /sessions (teacher/admin). The session is persisted,
// registered in memory, and every named participant gets a session:invite
// unicast plus a durable invite notification.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role := models.Role(c.MustGet(middleware.ContextUserRole).(string))
	if !role.IsHostRole() {
		response.Forbidden(c, "only teachers or admins can start sessions")
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	host, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil || host == nil {
		response.Unauthorized(c, "unknown caller")
		return
	}

	now := time.Now()
	s := &models.Session{
		ID:        uuid.New(),
		HostID:    userID,
		Kind:      req.Kind,
		ClassID:   req.ClassID,
		Status:    models.SessionStatusActive,
		StartedAt: now,
	}
	Join(s, host.ToPublic(), now)

	roster := make([]models.UserPublic, 0, len(req.Participants))
	for _, pid := range req.Participants {
		if pid == userID {
			continue
		}
		u, err := h.users.GetByID(c.Request.Context(), pid)
		if err != nil || u == nil {
			continue
		}
		p := Join(s, u.ToPublic(), now)
		p.Online = false
		p.InSession = false
		roster = append(roster, u.ToPublic())
	}

	if err := h.registry.Create(c.Request.Context(), s); err != nil {
		if errors.Is(err, ErrSessionExists) {
			response.Conflict(c, "session already exists")
			return
		}
		response.Internal(c, "failed to create session")
		return
	}

	for _, u := range roster {
		invite := gin.H{"session_id": s.ID, "title": req.Title, "host": host.ToPublic()}
		h.hub.SendToUser(u.ID, "session:invite", invite)
		_ = h.notifier.Dispatch(c.Request.Context(), &models.Notification{
			RecipientID: u.ID,
			Type:        models.NotificationSessionInvite,
			Title:       "Class session starting",
			Message:     req.Title,
			ActionURL:   "/sessions/" + s.ID.String(),
		})
	}
	response.Created(c, s)
}

// Get handles GET /sessions/:id. Serves the in-memory copy, falling back
// to recreation from the durable record. An ended session is read-only but
// its final snapshot is still served for reporting.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	snap, err := h.registry.Snapshot(c.Request.Context(), id)
	if errors.Is(err, ErrSessionEnded) {
		stored, lerr := h.repo.LoadSession(c.Request.Context(), id)
		if lerr != nil || stored == nil {
			response.NotFound(c, "session not found")
			return
		}
		response.OK(c, stored)
		return
	}
	if err != nil {
		h.writeErr(c, err)
		return
	}
	response.OK(c, snap)
}

// ListMine handles GET /sessions (sessions the caller hosted).
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByHost(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, list)
}

// End handles POST /sessions/:id/end (host only). Ending twice is a safe
// no-op; the final snapshot is returned either way.
func (h *Handler) End(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.requireHost(c.Request.Context(), id, userID); err != nil {
		h.writeErr(c, err)
		return
	}

	final, err := h.registry.End(c.Request.Context(), id)
	if err != nil {
		h.writeErr(c, err)
		return
	}

	h.hub.BroadcastToSessionAndPublish(id, "session:ended", gin.H{"session_id": id})
	for _, p := range final.Participants {
		if p.UserID == final.HostID || p.Removed {
			continue
		}
		_ = h.notifier.Dispatch(c.Request.Context(), &models.Notification{
			RecipientID: p.UserID,
			Type:        models.NotificationSessionEnded,
			Title:       "Class session ended",
			Message:     "The session you joined has ended.",
			ActionURL:   "/sessions/" + id.String(),
		})
	}
	if h.jobs != nil && final.EndedAt != nil {
		if err := h.jobs.EnqueueSessionReport(c.Request.Context(), queue.SessionReportPayload{
			SessionID: id,
			HostID:    final.HostID,
			EndedAt:   *final.EndedAt,
		}); err != nil {
			h.logger.Warn("enqueue session report failed", zap.String("session_id", id.String()), zap.Error(err))
		}
	}
	response.OK(c, final)
}

// Join handles POST /sessions/:id/join. No body; the caller joins as
// themselves.
func (h *Handler) Join(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	u, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil || u == nil {
		response.Unauthorized(c, "unknown caller")
		return
	}

	var joined *models.Participant
	err = h.registry.Do(c.Request.Context(), id, func(s *models.Session) {
		joined = Join(s, u.ToPublic(), time.Now())
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if joined == nil {
		response.Forbidden(c, "you were removed from this session")
		return
	}
	h.registry.Persist(id)
	h.hub.BroadcastToSessionAndPublish(id, "participant:update", joined)
	response.OK(c, joined)
}

// RaiseHand handles POST /sessions/:id/hand.
func (h *Handler) RaiseHand(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var changed bool
	var position int
	err := h.doAsParticipant(c.Request.Context(), id, userID, func(s *models.Session) {
		changed = RaiseHand(s, userID, time.Now())
		position = HandPosition(s, userID)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if changed {
		h.registry.Persist(id)
		h.broadcastHands(c.Request.Context(), id)
	}
	response.OK(c, gin.H{"raised": true, "position": position})
}

// LowerHand handles DELETE /sessions/:id/hand.
func (h *Handler) LowerHand(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var changed bool
	err := h.doAsParticipant(c.Request.Context(), id, userID, func(s *models.Session) {
		changed = LowerHand(s, userID)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if changed {
		h.registry.Persist(id)
		h.broadcastHands(c.Request.Context(), id)
	}
	response.OK(c, gin.H{"raised": false})
}

// ClearHands handles POST /sessions/:id/hands/clear (host only).
func (h *Handler) ClearHands(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		ClearHands(s)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.registry.Persist(id)
	h.broadcastHands(c.Request.Context(), id)
	response.OK(c, gin.H{"cleared": true})
}

// CreatePollRequest is the body for POST /sessions/:id/polls.
type CreatePollRequest struct {
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required,min=2,dive,required"`
}

// CreatePoll handles POST /sessions/:id/polls (host only). A still-active
// prior poll is force-ended so only one poll is ever live.
func (h *Handler) CreatePoll(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var poll *models.Poll
	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		poll = CreatePoll(s, req.Question, req.Options, time.Now())
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.registry.Persist(id)
	h.hub.BroadcastToSessionAndPublish(id, "poll:update", poll)
	response.Created(c, poll)
}

// VoteRequest is the body for POST /sessions/:id/polls/:pollId/vote.
type VoteRequest struct {
	OptionID uuid.UUID `json:"option_id" binding:"required"`
}

// Vote handles POST /sessions/:id/polls/:pollId/vote. A revote moves the
// voter's id between options; only the first vote on a poll in a class
// session earns participation points.
func (h *Handler) Vote(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	pollID, err := uuid.Parse(c.Param("pollId"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var res VoteResult
	var reward *models.RewardAction
	err = h.doAsParticipant(c.Request.Context(), id, userID, func(s *models.Session) {
		res, reward = VoteAndReward(s, pollID, req.OptionID, userID, time.Now())
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !res.Applied {
		// Inactive poll or unknown option: absorbed, state unchanged.
		response.OK(c, gin.H{"applied": false})
		return
	}
	h.registry.Persist(id)
	if reward != nil {
		h.appendReward(reward)
		h.hub.BroadcastToSessionAndPublish(id, "reward:new", reward)
	}
	h.hub.BroadcastToSessionAndPublish(id, "poll:update", res.Poll)
	response.OK(c, gin.H{"applied": true, "poll": res.Poll})
}

// EndPoll handles POST /sessions/:id/polls/:pollId/end (host only).
func (h *Handler) EndPoll(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	pollID, err := uuid.Parse(c.Param("pollId"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var poll *models.Poll
	err = h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		if EndPoll(s, pollID, time.Now()) {
			for _, p := range s.Polls {
				if p.ID == pollID {
					poll = p
				}
			}
		}
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if poll != nil {
		h.registry.Persist(id)
		h.hub.BroadcastToSessionAndPublish(id, "poll:update", poll)
	}
	response.OK(c, gin.H{"id": pollID, "ended": poll != nil})
}

// QuizQuestionRequest is one question in a CreateQuizRequest.
type QuizQuestionRequest struct {
	Text               string   `json:"text" binding:"required"`
	Options            []string `json:"options" binding:"required,min=2,dive,required"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	TimeLimitSeconds   int      `json:"time_limit_seconds" binding:"required,min=5"`
}

// CreateQuizRequest is the body for POST /sessions/:id/quizzes.
type CreateQuizRequest struct {
	Title     string                `json:"title" binding:"required"`
	Questions []QuizQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// CreateQuiz handles POST /sessions/:id/quizzes (host only). The quiz
// becomes active immediately with its first question current.
func (h *Handler) CreateQuiz(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	questions := make([]models.QuizQuestion, 0, len(req.Questions))
	for _, q := range req.Questions {
		if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
			response.BadRequest(c, "correct_option_index out of range")
			return
		}
		questions = append(questions, models.QuizQuestion{
			Text:               q.Text,
			Options:            q.Options,
			CorrectOptionIndex: q.CorrectOptionIndex,
			TimeLimitSeconds:   q.TimeLimitSeconds,
		})
	}

	var quiz *models.Quiz
	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		quiz = CreateQuiz(s, req.Title, questions, time.Now())
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.registry.Persist(id)
	h.hub.BroadcastToSessionAndPublish(id, "quiz:update", quiz)
	response.Created(c, quiz)
}

// NextQuestion handles POST /sessions/:id/quizzes/:quizId/next (host only).
// Advancing past the last question is absorbed; the host ends the quiz
// explicitly.
func (h *Handler) NextQuestion(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	quizID, err := uuid.Parse(c.Param("quizId"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var advanced bool
	var quiz *models.Quiz
	err = h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		advanced = NextQuestion(s, quizID)
		quiz = s.ActiveQuiz()
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if advanced {
		h.registry.Persist(id)
		h.hub.BroadcastToSessionAndPublish(id, "quiz:update", quiz)
	}
	response.OK(c, gin.H{"advanced": advanced})
}

// SubmitAnswerRequest is the body for POST /sessions/:id/quizzes/:quizId/answers.
type SubmitAnswerRequest struct {
	QuestionID  uuid.UUID `json:"question_id" binding:"required"`
	OptionIndex *int      `json:"option_index" binding:"required"`
}

// SubmitAnswer handles POST /sessions/:id/quizzes/:quizId/answers. First
// submission wins; duplicates and answers to non-current questions are
// absorbed without effect.
func (h *Handler) SubmitAnswer(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	quizID, err := uuid.Parse(c.Param("quizId"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var res AnswerResult
	var reward *models.RewardAction
	err = h.doAsParticipant(c.Request.Context(), id, userID, func(s *models.Session) {
		res = SubmitAnswer(s, quizID, req.QuestionID, userID, *req.OptionIndex, time.Now())
		if res.Applied && res.Correct {
			reward = GrantReward(s, userID, models.RewardQuizCorrect, 1, "", "correct quiz answer", time.Now())
		}
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !res.Applied {
		response.OK(c, gin.H{"applied": false})
		return
	}
	h.registry.Persist(id)
	if reward != nil {
		h.appendReward(reward)
	}
	h.hub.BroadcastToSessionAndPublish(id, "quiz:answer", gin.H{
		"quiz_id": quizID, "question_id": req.QuestionID, "participant_id": userID,
	})
	response.OK(c, gin.H{"applied": true, "correct": res.Correct})
}

// EndQuiz handles POST /sessions/:id/quizzes/:quizId/end (host only).
func (h *Handler) EndQuiz(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	quizID, err := uuid.Parse(c.Param("quizId"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var ended bool
	var quiz *models.Quiz
	err = h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		ended = EndQuiz(s, quizID, time.Now())
		for _, q := range s.Quizzes {
			if q.ID == quizID {
				quiz = q
			}
		}
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if ended {
		h.registry.Persist(id)
		h.hub.BroadcastToSessionAndPublish(id, "quiz:update", quiz)
	}
	response.OK(c, gin.H{"id": quizID, "ended": ended})
}

// TimerRequest is the body for POST /sessions/:id/timer.
type TimerRequest struct {
	DurationSeconds int `json:"duration_seconds" binding:"required,min=1"`
}

// SetTimer handles POST /sessions/:id/timer (host only).
func (h *Handler) SetTimer(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req TimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var timer *models.ClassTimer
	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		timer = SetTimer(s, req.DurationSeconds)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.hub.BroadcastToSessionAndPublish(id, "timer:update", timer)
	response.OK(c, timer)
}

// ToggleTimer handles POST /sessions/:id/timer/toggle (host only).
func (h *Handler) ToggleTimer(c *gin.Context) {
	h.timerAction(c, func(s *models.Session) bool { return ToggleTimer(s) })
}

// ResetTimer handles POST /sessions/:id/timer/reset (host only).
func (h *Handler) ResetTimer(c *gin.Context) {
	h.timerAction(c, func(s *models.Session) bool { return ResetTimer(s) })
}

// StopTimer handles DELETE /sessions/:id/timer (host only).
func (h *Handler) StopTimer(c *gin.Context) {
	h.timerAction(c, func(s *models.Session) bool { return StopTimer(s) })
}

func (h *Handler) timerAction(c *gin.Context, fn func(*models.Session) bool) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var changed bool
	var timer *models.ClassTimer
	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		changed = fn(s)
		timer = s.ClassTimer
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if changed {
		h.hub.BroadcastToSessionAndPublish(id, "timer:update", timer)
	}
	response.OK(c, gin.H{"changed": changed, "timer": timer})
}

// SpotlightRequest is the body for POST /sessions/:id/spotlight.
type SpotlightRequest struct {
	ParticipantID uuid.UUID `json:"participant_id" binding:"required"`
}

// ToggleSpotlight handles POST /sessions/:id/spotlight (host only).
// Spotlighting the current spotlight clears it; any other id replaces it.
func (h *Handler) ToggleSpotlight(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req SpotlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var spotlighted *uuid.UUID
	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		ToggleSpotlight(s, req.ParticipantID)
		spotlighted = s.SpotlightedID
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.registry.Persist(id)
	h.hub.BroadcastToSessionAndPublish(id, "spotlight:update", gin.H{"spotlighted_id": spotlighted})
	response.OK(c, gin.H{"spotlighted_id": spotlighted})
}

// RewardRequest is the body for POST /sessions/:id/rewards.
type RewardRequest struct {
	ParticipantID uuid.UUID `json:"participant_id" binding:"required"`
	Points        int       `json:"points"`
	Badge         string    `json:"badge"`
	Reason        string    `json:"reason" binding:"required"`
}

// GrantReward handles POST /sessions/:id/rewards (host only).
func (h *Handler) GrantReward(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req RewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var reward *models.RewardAction
	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		reward = GrantReward(s, req.ParticipantID, models.RewardManual, req.Points, req.Badge, req.Reason, time.Now())
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if reward == nil {
		response.NotFound(c, "participant not found")
		return
	}
	h.registry.Persist(id)
	h.appendReward(reward)
	h.hub.BroadcastToSessionAndPublish(id, "reward:new", reward)
	response.Created(c, reward)
}

// BreakoutRequest is the body for POST /sessions/:id/breakout.
type BreakoutRequest struct {
	NumRooms int `json:"num_rooms" binding:"required,min=1"`
}

// AssignBreakout handles POST /sessions/:id/breakout (host only).
func (h *Handler) AssignBreakout(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req BreakoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var snap *models.Session
	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		AssignBreakout(s, req.NumRooms, time.Now())
		snap = cloneSession(s)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.registry.Persist(id)
	h.hub.BroadcastToSessionAndPublish(id, "breakout:update", gin.H{
		"breakout": snap.Breakout, "participants": snap.Participants,
	})
	response.OK(c, snap.Breakout)
}

// ClearBreakout handles DELETE /sessions/:id/breakout (host only).
func (h *Handler) ClearBreakout(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	err := h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		ClearBreakout(s)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.registry.Persist(id)
	h.hub.BroadcastToSessionAndPublish(id, "breakout:update", gin.H{"breakout": nil})
	response.NoContent(c)
}

// ChatRequest is the body for POST /sessions/:id/chat.
type ChatRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

// PostChat handles POST /sessions/:id/chat. The message is persisted first,
// then appended to the in-memory log and broadcast.
func (h *Handler) PostChat(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	u, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil || u == nil {
		response.Unauthorized(c, "unknown caller")
		return
	}

	msg := models.ChatMessage{
		SessionID: id,
		UserID:    userID,
		UserName:  u.FullName,
		Content:   req.Content,
	}
	if err := h.chat.Create(c.Request.Context(), &msg); err != nil {
		response.Internal(c, "failed to persist message")
		return
	}

	err = h.doAsParticipant(c.Request.Context(), id, userID, func(s *models.Session) {
		AppendChat(s, msg)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.hub.PublishToSessionOnly(id, "chat:new", msg)
	response.Created(c, msg)
}

// ListChat handles GET /sessions/:id/chat.
func (h *Handler) ListChat(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	list, err := h.chat.ListBySession(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list messages")
		return
	}
	response.OK(c, list)
}

// ReactionRequest is the body for POST /sessions/:id/reactions.
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=16"`
}

// PostReaction handles POST /sessions/:id/reactions.
func (h *Handler) PostReaction(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	now := time.Now()
	err := h.doAsParticipant(c.Request.Context(), id, userID, func(s *models.Session) {
		AddReaction(s, userID, req.Emoji, now)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.hub.BroadcastToSessionAndPublish(id, "reaction:new", models.Reaction{UserID: userID, Emoji: req.Emoji, At: now})
	response.OK(c, gin.H{"posted": true})
}

// RemoveParticipant handles DELETE /sessions/:id/participants/:userId
// (host only). Removal is terminal but the roster entry survives.
func (h *Handler) RemoveParticipant(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var removed bool
	err = h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		removed = Remove(s, targetID)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !removed {
		response.NotFound(c, "participant not found")
		return
	}
	h.registry.Persist(id)
	h.hub.BroadcastToSessionAndPublish(id, "participant:removed", gin.H{"user_id": targetID})
	h.hub.SendToUser(targetID, "session:removed", gin.H{"session_id": id})
	response.OK(c, gin.H{"user_id": targetID, "removed": true})
}

// ToggleMute handles POST /sessions/:id/participants/:userId/mute (host only).
func (h *Handler) ToggleMute(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var muted, found bool
	err = h.doAsHost(c.Request.Context(), id, userID, func(s *models.Session) {
		muted, found = ToggleMute(s, targetID)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !found {
		response.NotFound(c, "participant not found")
		return
	}
	h.registry.Persist(id)
	h.hub.BroadcastToSessionAndPublish(id, "participant:muted", gin.H{"user_id": targetID, "muted": muted})
	response.OK(c, gin.H{"user_id": targetID, "muted": muted})
}

// HandPosition handles GET /sessions/:id/hand.
func (h *Handler) HandPosition(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var position int
	err := h.registry.Do(c.Request.Context(), id, func(s *models.Session) {
		position = HandPosition(s, userID)
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	response.OK(c, gin.H{"position": position})
}

// --- helpers ---

func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// requireHost verifies the caller hosts the session. For an already-ended
// session the check falls back to the durable record so that ending twice
// stays an authorized no-op.
func (h *Handler) requireHost(ctx context.Context, id, userID uuid.UUID) error {
	err := h.doAsHost(ctx, id, userID, func(*models.Session) {})
	if errors.Is(err, ErrSessionEnded) {
		stored, lerr := h.repo.LoadSession(ctx, id)
		if lerr != nil || stored == nil {
			return ErrSessionNotFound
		}
		if stored.HostID != userID {
			return ErrNotHost
		}
		return nil
	}
	return err
}

// doAsHost runs fn when the caller is the session host, otherwise ErrNotHost.
func (h *Handler) doAsHost(ctx context.Context, id, userID uuid.UUID, fn func(*models.Session)) error {
	var authErr error
	err := h.registry.Do(ctx, id, func(s *models.Session) {
		if s.HostID != userID {
			authErr = ErrNotHost
			return
		}
		fn(s)
	})
	if err != nil {
		return err
	}
	return authErr
}

// doAsParticipant runs fn when the caller is a non-removed participant.
func (h *Handler) doAsParticipant(ctx context.Context, id, userID uuid.UUID, fn func(*models.Session)) error {
	var authErr error
	err := h.registry.Do(ctx, id, func(s *models.Session) {
		p := s.Participant(userID)
		if p == nil || p.Removed {
			authErr = ErrNotParticipant
			return
		}
		fn(s)
	})
	if err != nil {
		return err
	}
	return authErr
}

func (h *Handler) broadcastHands(ctx context.Context, id uuid.UUID) {
	var hands []uuid.UUID
	if err := h.registry.Do(ctx, id, func(s *models.Session) {
		hands = append([]uuid.UUID(nil), s.RaisedHands...)
	}); err != nil {
		return
	}
	h.hub.BroadcastToSessionAndPublish(id, "hand:update", gin.H{"raised_hands": hands})
}

// appendReward writes the reward action to the durable log, fire-and-forget.
func (h *Handler) appendReward(a *models.RewardAction) {
	action := *a
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.repo.AppendReward(ctx, &action); err != nil {
			h.logger.Warn("append reward failed", zap.String("reward_id", action.ID.String()), zap.Error(err))
		}
	}()
}

func (h *Handler) writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, ErrSessionEnded):
		response.Conflict(c, "session has ended")
	case errors.Is(err, ErrNotHost):
		response.Forbidden(c, "only the session host can do this")
	case errors.Is(err, ErrNotParticipant):
		response.Forbidden(c, "you are not a participant of this session")
	default:
		response.Internal(c, "session action failed")
	}
}
