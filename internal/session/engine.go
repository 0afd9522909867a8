package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
)

// Engine holds the pure state-transition functions of the live session.
// Every function mutates the session in place and must only be invoked from
// inside the session's actor loop, which serializes all mutation. Invalid
// actions (voting on an inactive poll, advancing past the last question)
// are absorbed as no-ops: stale client state is routine in a real-time
// system, so availability wins over strict rejection.

// Join adds the user to the roster or marks an existing entry back online.
// A participant removed by the host stays removed.
func Join(s *models.Session, user models.UserPublic, now time.Time) *models.Participant {
	if p := s.Participant(user.ID); p != nil {
		if p.Removed {
			return nil
		}
		p.Online = true
		p.InSession = true
		return p
	}
	p := &models.Participant{
		UserID:    user.ID,
		Name:      user.FullName,
		Role:      user.Role,
		Online:    true,
		InSession: true,
		JoinedAt:  now,
	}
	s.Participants = append(s.Participants, p)
	return p
}

// Leave marks the participant offline without touching the roster.
func Leave(s *models.Session, userID uuid.UUID) {
	if p := s.Participant(userID); p != nil {
		p.Online = false
		p.InSession = false
	}
}

// Remove marks the participant as removed by the host. The roster entry
// survives so point history stays accountable; removed is terminal.
func Remove(s *models.Session, userID uuid.UUID) bool {
	p := s.Participant(userID)
	if p == nil || p.Removed {
		return false
	}
	p.Removed = true
	p.Online = false
	p.InSession = false
	LowerHand(s, userID)
	if s.SpotlightedID != nil && *s.SpotlightedID == userID {
		s.SpotlightedID = nil
	}
	return true
}

// ToggleMute flips the participant's muted flag and returns the new value.
func ToggleMute(s *models.Session, userID uuid.UUID) (muted, ok bool) {
	p := s.Participant(userID)
	if p == nil || p.Removed {
		return false, false
	}
	p.Muted = !p.Muted
	return p.Muted, true
}

// RaiseHand appends the participant to the raised-hand queue if absent.
func RaiseHand(s *models.Session, userID uuid.UUID, now time.Time) bool {
	p := s.Participant(userID)
	if p == nil || p.Removed {
		return false
	}
	for _, id := range s.RaisedHands {
		if id == userID {
			return false
		}
	}
	s.RaisedHands = append(s.RaisedHands, userID)
	p.HasRaisedHand = true
	t := now
	p.RaisedHandAt = &t
	return true
}

// LowerHand removes the participant from the raised-hand queue.
func LowerHand(s *models.Session, userID uuid.UUID) bool {
	idx := -1
	for i, id := range s.RaisedHands {
		if id == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s.RaisedHands = append(s.RaisedHands[:idx], s.RaisedHands[idx+1:]...)
	if p := s.Participant(userID); p != nil {
		p.HasRaisedHand = false
		p.RaisedHandAt = nil
	}
	return true
}

// HandPosition returns the 1-based queue position, or 0 if not raised.
func HandPosition(s *models.Session, userID uuid.UUID) int {
	for i, id := range s.RaisedHands {
		if id == userID {
			return i + 1
		}
	}
	return 0
}

// ClearHands empties the queue and clears every participant's flag.
func ClearHands(s *models.Session) {
	s.RaisedHands = nil
	for _, p := range s.Participants {
		p.HasRaisedHand = false
		p.RaisedHandAt = nil
	}
}

// CreatePoll adds a new poll and makes it the active one. A still-active
// prior poll is force-ended first so at most one poll carries is_active at
// any time.
func CreatePoll(s *models.Session, question string, options []string, now time.Time) *models.Poll {
	if prior := s.ActivePoll(); prior != nil {
		endPoll(prior, now)
	}
	p := &models.Poll{
		ID:        uuid.New(),
		SessionID: s.ID,
		Question:  question,
		IsActive:  true,
		CreatedAt: now,
	}
	for _, text := range options {
		p.Options = append(p.Options, models.PollOption{ID: uuid.New(), Text: text})
	}
	s.Polls = append(s.Polls, p)
	s.ActivePollID = p.ID
	return p
}

// VoteResult reports what a Vote call did.
type VoteResult struct {
	Applied   bool
	FirstVote bool
	Poll      *models.Poll
}

// Vote records voterID's choice on the poll. The voter's id is retracted
// from every option before being added to the chosen one, so a voter holds
// at most one vote per poll and may change it freely. No-op if the poll is
// missing, inactive, or the option id is unknown.
func Vote(s *models.Session, pollID, optionID, voterID uuid.UUID) VoteResult {
	var poll *models.Poll
	for _, p := range s.Polls {
		if p.ID == pollID {
			poll = p
			break
		}
	}
	if poll == nil || !poll.IsActive {
		return VoteResult{}
	}
	var target *models.PollOption
	for i := range poll.Options {
		if poll.Options[i].ID == optionID {
			target = &poll.Options[i]
			break
		}
	}
	if target == nil {
		return VoteResult{}
	}

	// Membership check before retraction decides the first-vote reward.
	first := !poll.HasVoted(voterID)
	for i := range poll.Options {
		votes := poll.Options[i].Votes
		for j, v := range votes {
			if v == voterID {
				poll.Options[i].Votes = append(votes[:j], votes[j+1:]...)
				break
			}
		}
	}
	target.Votes = append(target.Votes, voterID)
	poll.TotalVotes = poll.CountVotes()
	return VoteResult{Applied: true, FirstVote: first, Poll: poll}
}

// VoteAndReward applies a poll vote and grants the participation reward
// when it is the voter's first vote on that poll in a class session. Ad-hoc
// sessions and revotes never earn points.
func VoteAndReward(s *models.Session, pollID, optionID, voterID uuid.UUID, now time.Time) (VoteResult, *models.RewardAction) {
	res := Vote(s, pollID, optionID, voterID)
	if res.Applied && res.FirstVote && s.Kind == models.SessionKindClass {
		return res, GrantReward(s, voterID, models.RewardPollVote, models.PollVotePoints, "", "poll participation", now)
	}
	return res, nil
}

// EndPoll deactivates the poll and stamps its end time. Clears the active
// reference when it pointed at this poll. No-op on unknown or ended polls.
func EndPoll(s *models.Session, pollID uuid.UUID, now time.Time) bool {
	for _, p := range s.Polls {
		if p.ID == pollID {
			if !p.IsActive {
				return false
			}
			endPoll(p, now)
			if s.ActivePollID == pollID {
				s.ActivePollID = uuid.Nil
			}
			return true
		}
	}
	return false
}

func endPoll(p *models.Poll, now time.Time) {
	p.IsActive = false
	t := now
	p.EndedAt = &t
}

// CreateQuiz adds a new quiz and makes it the active one, force-ending any
// still-active prior quiz. The first question becomes current with its
// full time limit.
func CreateQuiz(s *models.Session, title string, questions []models.QuizQuestion, now time.Time) *models.Quiz {
	if prior := s.ActiveQuiz(); prior != nil {
		endQuiz(prior, now)
	}
	q := &models.Quiz{
		ID:        uuid.New(),
		SessionID: s.ID,
		Title:     title,
		Questions: questions,
		IsActive:  true,
		CreatedAt: now,
	}
	for i := range q.Questions {
		if q.Questions[i].ID == uuid.Nil {
			q.Questions[i].ID = uuid.New()
		}
	}
	if cur := q.CurrentQuestion(); cur != nil {
		q.TimeRemaining = cur.TimeLimitSeconds
	}
	s.Quizzes = append(s.Quizzes, q)
	s.ActiveQuizID = q.ID
	return q
}

// NextQuestion advances the quiz to the next question and resets the
// countdown. Advancing past the last question is a no-op: the host must
// end the quiz explicitly.
func NextQuestion(s *models.Session, quizID uuid.UUID) bool {
	q := s.ActiveQuiz()
	if q == nil || q.ID != quizID {
		return false
	}
	if q.CurrentQuestionIndex >= len(q.Questions)-1 {
		return false
	}
	q.CurrentQuestionIndex++
	q.TimeRemaining = q.Questions[q.CurrentQuestionIndex].TimeLimitSeconds
	return true
}

// AnswerResult reports what a SubmitAnswer call did.
type AnswerResult struct {
	Applied bool
	Correct bool
	Quiz    *models.Quiz
}

// SubmitAnswer records a participant's answer to the current question.
// First submission wins: a duplicate for the same (participant, question)
// pair is a no-op, as is answering a non-current question or an inactive
// quiz. Correctness is fixed at submission time.
func SubmitAnswer(s *models.Session, quizID, questionID, participantID uuid.UUID, optionIndex int, now time.Time) AnswerResult {
	q := s.ActiveQuiz()
	if q == nil || q.ID != quizID || !q.IsActive {
		return AnswerResult{}
	}
	cur := q.CurrentQuestion()
	if cur == nil || cur.ID != questionID {
		return AnswerResult{}
	}
	if q.HasAnswered(participantID, questionID) {
		return AnswerResult{}
	}
	correct := optionIndex == cur.CorrectOptionIndex
	q.Answers = append(q.Answers, models.QuizAnswer{
		ParticipantID: participantID,
		QuestionID:    questionID,
		OptionIndex:   optionIndex,
		Correct:       correct,
		SubmittedAt:   now,
	})
	return AnswerResult{Applied: true, Correct: correct, Quiz: q}
}

// EndQuiz deactivates the quiz and clears the active reference when it
// pointed at this quiz.
func EndQuiz(s *models.Session, quizID uuid.UUID, now time.Time) bool {
	for _, q := range s.Quizzes {
		if q.ID == quizID {
			if !q.IsActive {
				return false
			}
			endQuiz(q, now)
			if s.ActiveQuizID == quizID {
				s.ActiveQuizID = uuid.Nil
			}
			return true
		}
	}
	return false
}

func endQuiz(q *models.Quiz, now time.Time) {
	q.IsActive = false
	t := now
	q.EndedAt = &t
}

// SetTimer replaces any existing class timer with a fresh, inactive one.
func SetTimer(s *models.Session, durationSeconds int) *models.ClassTimer {
	s.ClassTimer = &models.ClassTimer{
		DurationSeconds:  durationSeconds,
		RemainingSeconds: durationSeconds,
	}
	return s.ClassTimer
}

// ToggleTimer flips the timer between running and paused.
func ToggleTimer(s *models.Session) bool {
	if s.ClassTimer == nil {
		return false
	}
	s.ClassTimer.IsActive = !s.ClassTimer.IsActive
	return true
}

// ResetTimer restores the timer to its full duration, paused.
func ResetTimer(s *models.Session) bool {
	if s.ClassTimer == nil {
		return false
	}
	s.ClassTimer.RemainingSeconds = s.ClassTimer.DurationSeconds
	s.ClassTimer.IsActive = false
	return true
}

// StopTimer discards the timer entirely.
func StopTimer(s *models.Session) bool {
	if s.ClassTimer == nil {
		return false
	}
	s.ClassTimer = nil
	return true
}

// TickResult reports which countdowns a Tick call changed.
type TickResult struct {
	TimerChanged bool
	TimerExpired bool
	QuizChanged  bool
	QuizExpired  bool
}

// Tick advances the session's countdowns by delta seconds. The class timer
// and the active quiz question's countdown both decrement while running;
// reaching zero clamps and deactivates. Scheduled by the external ticker,
// executed inside the actor like any other command.
func Tick(s *models.Session, delta int) TickResult {
	var res TickResult
	if t := s.ClassTimer; t != nil && t.IsActive {
		t.RemainingSeconds -= delta
		res.TimerChanged = true
		if t.RemainingSeconds <= 0 {
			t.RemainingSeconds = 0
			t.IsActive = false
			res.TimerExpired = true
		}
	}
	if q := s.ActiveQuiz(); q != nil && q.IsActive && q.TimeRemaining > 0 {
		q.TimeRemaining -= delta
		res.QuizChanged = true
		if q.TimeRemaining <= 0 {
			q.TimeRemaining = 0
			res.QuizExpired = true
		}
	}
	return res
}

// GrantReward appends a reward action and updates the participant's points
// in the same step, keeping the log and the aggregate in agreement. Returns
// nil when the participant is unknown or removed.
func GrantReward(s *models.Session, participantID uuid.UUID, typ models.RewardType, points int, badge, reason string, now time.Time) *models.RewardAction {
	p := s.Participant(participantID)
	if p == nil || p.Removed {
		return nil
	}
	action := models.RewardAction{
		ID:            uuid.New(),
		SessionID:     s.ID,
		ParticipantID: participantID,
		Type:          typ,
		Points:        points,
		Badge:         badge,
		Reason:        reason,
		CreatedAt:     now,
	}
	s.RewardLog = append(s.RewardLog, action)
	p.Points += points
	if badge != "" {
		p.Badges = append(p.Badges, badge)
	}
	return &s.RewardLog[len(s.RewardLog)-1]
}

// ToggleSpotlight is an exclusive toggle: spotlighting the currently
// spotlighted participant clears the spotlight, any other id replaces it.
func ToggleSpotlight(s *models.Session, participantID uuid.UUID) {
	if s.SpotlightedID != nil && *s.SpotlightedID == participantID {
		s.SpotlightedID = nil
		return
	}
	id := participantID
	s.SpotlightedID = &id
}

// AssignBreakout partitions the non-removed participants round-robin into
// numRooms rooms. The host is left unassigned (room 0).
func AssignBreakout(s *models.Session, numRooms int, now time.Time) bool {
	if numRooms < 1 {
		return false
	}
	room := 0
	for _, p := range s.Participants {
		if p.Removed || p.UserID == s.HostID {
			continue
		}
		p.BreakoutRoom = room%numRooms + 1
		room++
	}
	s.Breakout = &models.BreakoutAssignment{NumRooms: numRooms, AssignedAt: now}
	return true
}

// ClearBreakout dissolves the breakout assignment.
func ClearBreakout(s *models.Session) {
	s.Breakout = nil
	for _, p := range s.Participants {
		p.BreakoutRoom = 0
	}
}

// AddReaction appends an emoji reaction to the session log.
func AddReaction(s *models.Session, userID uuid.UUID, emoji string, now time.Time) {
	s.Reactions = append(s.Reactions, models.Reaction{UserID: userID, Emoji: emoji, At: now})
}

// AppendChat appends an already-persisted chat message to the in-memory log.
func AppendChat(s *models.Session, msg models.ChatMessage) {
	s.Chat = append(s.Chat, msg)
}

// End marks the session ended. Idempotent: ending an already-ended session
// leaves it untouched, since the trigger can arrive from both a client
// action and the recovery path. The active poll/quiz references are
// cleared but the historical lists stay intact.
func End(s *models.Session, now time.Time) bool {
	if s.Status == models.SessionStatusEnded {
		return false
	}
	if p := s.ActivePoll(); p != nil {
		endPoll(p, now)
	}
	if q := s.ActiveQuiz(); q != nil {
		endQuiz(q, now)
	}
	s.ActivePollID = uuid.Nil
	s.ActiveQuizID = uuid.Nil
	s.ClassTimer = nil
	s.Status = models.SessionStatusEnded
	t := now
	s.EndedAt = &t
	return true
}
