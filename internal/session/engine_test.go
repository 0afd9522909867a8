package session

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
)

func newTestSession(t *testing.T, students int) (*models.Session, []uuid.UUID) {
	t.Helper()
	now := time.Now()
	host := models.UserPublic{ID: uuid.New(), FullName: "Teacher", Role: models.RoleTeacher}
	s := &models.Session{
		ID:        uuid.New(),
		HostID:    host.ID,
		Kind:      models.SessionKindClass,
		Status:    models.SessionStatusActive,
		StartedAt: now,
	}
	Join(s, host, now)
	ids := make([]uuid.UUID, students)
	for i := range ids {
		u := models.UserPublic{ID: uuid.New(), FullName: "Student", Role: models.RoleStudent}
		Join(s, u, now)
		ids[i] = u.ID
	}
	return s, ids
}

func TestJoinRejoinAndRemovedStaysRemoved(t *testing.T) {
	s, ids := newTestSession(t, 1)
	now := time.Now()

	Leave(s, ids[0])
	p := s.Participant(ids[0])
	if p.Online || p.InSession {
		t.Fatalf("leave should mark offline, got online=%v in_session=%v", p.Online, p.InSession)
	}
	if got := Join(s, models.UserPublic{ID: ids[0], FullName: "Student"}, now); got == nil {
		t.Fatal("rejoin returned nil")
	}
	if !p.Online {
		t.Fatal("rejoin should mark online")
	}
	if len(s.Participants) != 2 {
		t.Fatalf("rejoin must not duplicate roster entry, got %d", len(s.Participants))
	}

	if !Remove(s, ids[0]) {
		t.Fatal("remove failed")
	}
	if got := Join(s, models.UserPublic{ID: ids[0], FullName: "Student"}, now); got != nil {
		t.Fatal("removed participant must not rejoin")
	}
	if Remove(s, ids[0]) {
		t.Fatal("second remove should be a no-op")
	}
}

func TestHandQueueOrderAndClear(t *testing.T) {
	s, ids := newTestSession(t, 3)
	now := time.Now()

	for _, id := range ids {
		if !RaiseHand(s, id, now) {
			t.Fatalf("raise hand failed for %s", id)
		}
	}
	if RaiseHand(s, ids[0], now) {
		t.Fatal("double raise should be a no-op")
	}
	if got := HandPosition(s, ids[1]); got != 2 {
		t.Fatalf("expected position 2, got %d", got)
	}

	// Lowering the first hand shifts everyone up.
	if !LowerHand(s, ids[0]) {
		t.Fatal("lower hand failed")
	}
	if got := HandPosition(s, ids[1]); got != 1 {
		t.Fatalf("expected position 1 after shift, got %d", got)
	}
	if got := HandPosition(s, ids[0]); got != 0 {
		t.Fatalf("lowered hand should have position 0, got %d", got)
	}
	if LowerHand(s, ids[0]) {
		t.Fatal("lowering an unraised hand should be a no-op")
	}

	ClearHands(s)
	if len(s.RaisedHands) != 0 {
		t.Fatalf("clear left %d hands", len(s.RaisedHands))
	}
	for _, p := range s.Participants {
		if p.HasRaisedHand || p.RaisedHandAt != nil {
			t.Fatalf("participant %s still flagged after clear", p.UserID)
		}
	}
}

func TestVoteChangeCountsOnce(t *testing.T) {
	s, ids := newTestSession(t, 2)
	now := time.Now()
	poll := CreatePoll(s, "favorite color?", []string{"red", "blue"}, now)

	res := Vote(s, poll.ID, poll.Options[0].ID, ids[0])
	if !res.Applied || !res.FirstVote {
		t.Fatalf("first vote: applied=%v first=%v", res.Applied, res.FirstVote)
	}
	// Changing the vote retracts the old one and is not a first vote.
	res = Vote(s, poll.ID, poll.Options[1].ID, ids[0])
	if !res.Applied || res.FirstVote {
		t.Fatalf("changed vote: applied=%v first=%v", res.Applied, res.FirstVote)
	}
	if n := len(poll.Options[0].Votes); n != 0 {
		t.Fatalf("old option still holds %d votes", n)
	}
	if poll.TotalVotes != 1 {
		t.Fatalf("expected 1 total vote, got %d", poll.TotalVotes)
	}

	Vote(s, poll.ID, poll.Options[1].ID, ids[1])
	sum := 0
	for _, o := range poll.Options {
		sum += len(o.Votes)
	}
	if poll.TotalVotes != sum || sum != 2 {
		t.Fatalf("total votes %d != option sum %d", poll.TotalVotes, sum)
	}
}

func TestVoteOnEndedPollIsNoOp(t *testing.T) {
	s, ids := newTestSession(t, 1)
	now := time.Now()
	poll := CreatePoll(s, "q", []string{"a", "b"}, now)

	if !EndPoll(s, poll.ID, now) {
		t.Fatal("end poll failed")
	}
	if EndPoll(s, poll.ID, now) {
		t.Fatal("ending an ended poll should be a no-op")
	}
	if s.ActivePollID != uuid.Nil {
		t.Fatal("active poll reference not cleared")
	}
	if res := Vote(s, poll.ID, poll.Options[0].ID, ids[0]); res.Applied {
		t.Fatal("vote on ended poll should be a no-op")
	}
}

func TestCreatePollSupersedesActiveOne(t *testing.T) {
	s, _ := newTestSession(t, 1)
	now := time.Now()
	first := CreatePoll(s, "first", []string{"a", "b"}, now)
	second := CreatePoll(s, "second", []string{"x", "y"}, now)

	if first.IsActive {
		t.Fatal("prior poll should be force-ended")
	}
	if first.EndedAt == nil {
		t.Fatal("prior poll missing end time")
	}
	if s.ActivePollID != second.ID {
		t.Fatal("new poll should be the active one")
	}
	active := 0
	for _, p := range s.Polls {
		if p.IsActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly 1 active poll, got %d", active)
	}
}

func quizQuestions(n int) []models.QuizQuestion {
	qs := make([]models.QuizQuestion, n)
	for i := range qs {
		qs[i] = models.QuizQuestion{
			Text:               "q",
			Options:            []string{"a", "b", "c"},
			CorrectOptionIndex: 1,
			TimeLimitSeconds:   30,
		}
	}
	return qs
}

func TestQuizFirstSubmissionWins(t *testing.T) {
	s, ids := newTestSession(t, 1)
	now := time.Now()
	quiz := CreateQuiz(s, "round one", quizQuestions(2), now)
	q1 := quiz.Questions[0].ID

	res := SubmitAnswer(s, quiz.ID, q1, ids[0], 1, now)
	if !res.Applied || !res.Correct {
		t.Fatalf("first answer: applied=%v correct=%v", res.Applied, res.Correct)
	}
	// A second submission for the same question must not overwrite the first.
	if res := SubmitAnswer(s, quiz.ID, q1, ids[0], 0, now); res.Applied {
		t.Fatal("duplicate answer should be a no-op")
	}
	if len(quiz.Answers) != 1 {
		t.Fatalf("expected 1 recorded answer, got %d", len(quiz.Answers))
	}
	if !quiz.Answers[0].Correct {
		t.Fatal("recorded answer lost correctness")
	}

	// Answering a question that is not current is a no-op.
	q2 := quiz.Questions[1].ID
	if res := SubmitAnswer(s, quiz.ID, q2, ids[0], 1, now); res.Applied {
		t.Fatal("answer to non-current question should be a no-op")
	}
}

func TestNextQuestionStopsAtLast(t *testing.T) {
	s, _ := newTestSession(t, 1)
	now := time.Now()
	quiz := CreateQuiz(s, "round", quizQuestions(3), now)

	if !NextQuestion(s, quiz.ID) || !NextQuestion(s, quiz.ID) {
		t.Fatal("advancing within range failed")
	}
	if quiz.CurrentQuestionIndex != 2 {
		t.Fatalf("expected index 2, got %d", quiz.CurrentQuestionIndex)
	}
	if NextQuestion(s, quiz.ID) {
		t.Fatal("advancing past the last question should be a no-op")
	}
	if quiz.CurrentQuestionIndex != 2 {
		t.Fatalf("index moved past last question: %d", quiz.CurrentQuestionIndex)
	}
	if quiz.TimeRemaining != 30 {
		t.Fatalf("countdown not reset on advance, got %d", quiz.TimeRemaining)
	}
}

func TestTimerTicksAndExpires(t *testing.T) {
	s, _ := newTestSession(t, 0)

	SetTimer(s, 300)
	if s.ClassTimer.IsActive {
		t.Fatal("fresh timer should start paused")
	}
	// Ticks while paused do nothing.
	if res := Tick(s, 1); res.TimerChanged {
		t.Fatal("paused timer should not tick")
	}

	ToggleTimer(s)
	for i := 0; i < 3; i++ {
		Tick(s, 1)
	}
	if s.ClassTimer.RemainingSeconds != 297 {
		t.Fatalf("expected 297 remaining, got %d", s.ClassTimer.RemainingSeconds)
	}

	res := Tick(s, 297)
	if !res.TimerExpired {
		t.Fatal("expected expiry")
	}
	if s.ClassTimer.RemainingSeconds != 0 || s.ClassTimer.IsActive {
		t.Fatalf("expired timer should clamp to 0 and pause, got %d active=%v",
			s.ClassTimer.RemainingSeconds, s.ClassTimer.IsActive)
	}

	if !ResetTimer(s) {
		t.Fatal("reset failed")
	}
	if s.ClassTimer.RemainingSeconds != 300 || s.ClassTimer.IsActive {
		t.Fatal("reset should restore full duration, paused")
	}
	if !StopTimer(s) {
		t.Fatal("stop failed")
	}
	if StopTimer(s) {
		t.Fatal("stopping a stopped timer should be a no-op")
	}
}

func TestQuizCountdownTicks(t *testing.T) {
	s, _ := newTestSession(t, 0)
	now := time.Now()
	quiz := CreateQuiz(s, "round", quizQuestions(1), now)

	res := Tick(s, 29)
	if !res.QuizChanged || res.QuizExpired {
		t.Fatalf("tick: changed=%v expired=%v", res.QuizChanged, res.QuizExpired)
	}
	res = Tick(s, 1)
	if !res.QuizExpired {
		t.Fatal("expected quiz countdown expiry")
	}
	if quiz.TimeRemaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", quiz.TimeRemaining)
	}
	// Expired countdown does not go negative on further ticks.
	if res := Tick(s, 1); res.QuizChanged {
		t.Fatal("expired countdown should not keep ticking")
	}
}

func TestSpotlightToggleIsExclusive(t *testing.T) {
	s, ids := newTestSession(t, 2)

	ToggleSpotlight(s, ids[0])
	if s.SpotlightedID == nil || *s.SpotlightedID != ids[0] {
		t.Fatal("spotlight not set")
	}
	ToggleSpotlight(s, ids[1])
	if *s.SpotlightedID != ids[1] {
		t.Fatal("spotlight should move to the new participant")
	}
	ToggleSpotlight(s, ids[1])
	if s.SpotlightedID != nil {
		t.Fatal("toggling the spotlighted participant should clear it")
	}
}

func TestFirstVoteEarnsPointsOnceInClassSessions(t *testing.T) {
	s, ids := newTestSession(t, 1)
	now := time.Now()
	poll := CreatePoll(s, "q", []string{"a", "b"}, now)

	res, reward := VoteAndReward(s, poll.ID, poll.Options[0].ID, ids[0], now)
	if !res.Applied || reward == nil {
		t.Fatalf("first vote: applied=%v reward=%v", res.Applied, reward)
	}
	if reward.Type != models.RewardPollVote || reward.Points != models.PollVotePoints {
		t.Fatalf("unexpected reward %s/%d", reward.Type, reward.Points)
	}
	p := s.Participant(ids[0])
	if p.Points != models.PollVotePoints {
		t.Fatalf("expected %d points, got %d", models.PollVotePoints, p.Points)
	}

	// A changed vote moves between options without earning again.
	res, reward = VoteAndReward(s, poll.ID, poll.Options[1].ID, ids[0], now)
	if !res.Applied || reward != nil {
		t.Fatalf("revote: applied=%v reward=%v", res.Applied, reward)
	}
	if p.Points != models.PollVotePoints {
		t.Fatalf("revote changed points to %d", p.Points)
	}
	if len(poll.Options[0].Votes) != 0 || len(poll.Options[1].Votes) != 1 {
		t.Fatalf("revote left votes %d/%d", len(poll.Options[0].Votes), len(poll.Options[1].Votes))
	}

	// Ad-hoc sessions record the vote but never the reward.
	s2, ids2 := newTestSession(t, 1)
	s2.Kind = models.SessionKindAdHoc
	poll2 := CreatePoll(s2, "q", []string{"a", "b"}, now)
	res, reward = VoteAndReward(s2, poll2.ID, poll2.Options[0].ID, ids2[0], now)
	if !res.Applied || reward != nil {
		t.Fatalf("adhoc vote: applied=%v reward=%v", res.Applied, reward)
	}
	if got := s2.Participant(ids2[0]).Points; got != 0 {
		t.Fatalf("adhoc vote granted %d points", got)
	}
	if len(s2.RewardLog) != 0 {
		t.Fatalf("adhoc vote wrote %d reward entries", len(s2.RewardLog))
	}
}

func TestGrantRewardKeepsLogAndPointsInAgreement(t *testing.T) {
	s, ids := newTestSession(t, 1)
	now := time.Now()

	a := GrantReward(s, ids[0], models.RewardManual, 5, "star", "great question", now)
	if a == nil {
		t.Fatal("grant returned nil")
	}
	GrantReward(s, ids[0], models.RewardPollVote, models.PollVotePoints, "", "", now)

	p := s.Participant(ids[0])
	if p.Points != 7 {
		t.Fatalf("expected 7 points, got %d", p.Points)
	}
	if len(p.Badges) != 1 || p.Badges[0] != "star" {
		t.Fatalf("unexpected badges %v", p.Badges)
	}
	total := 0
	for _, r := range s.RewardLog {
		if r.ParticipantID == ids[0] {
			total += r.Points
		}
	}
	if total != p.Points {
		t.Fatalf("reward log sum %d != points %d", total, p.Points)
	}

	if got := GrantReward(s, uuid.New(), models.RewardManual, 1, "", "", now); got != nil {
		t.Fatal("grant to unknown participant should return nil")
	}
}

func TestBreakoutRoundRobinSkipsHost(t *testing.T) {
	s, ids := newTestSession(t, 5)
	now := time.Now()
	Remove(s, ids[4])

	if !AssignBreakout(s, 2, now) {
		t.Fatal("assign failed")
	}
	if AssignBreakout(s, 0, now) {
		t.Fatal("zero rooms should be rejected")
	}
	host := s.Participant(s.HostID)
	if host.BreakoutRoom != 0 {
		t.Fatalf("host should stay unassigned, got room %d", host.BreakoutRoom)
	}
	if removed := s.Participant(ids[4]); removed.BreakoutRoom != 0 {
		t.Fatal("removed participant should stay unassigned")
	}
	counts := map[int]int{}
	for _, id := range ids[:4] {
		room := s.Participant(id).BreakoutRoom
		if room < 1 || room > 2 {
			t.Fatalf("participant %s in room %d", id, room)
		}
		counts[room]++
	}
	if counts[1] != 2 || counts[2] != 2 {
		t.Fatalf("uneven round-robin: %v", counts)
	}

	ClearBreakout(s)
	if s.Breakout != nil {
		t.Fatal("breakout assignment not cleared")
	}
	for _, p := range s.Participants {
		if p.BreakoutRoom != 0 {
			t.Fatalf("participant %s still in room %d", p.UserID, p.BreakoutRoom)
		}
	}
}

func TestEndIsIdempotentAndClearsActiveState(t *testing.T) {
	s, _ := newTestSession(t, 1)
	now := time.Now()
	poll := CreatePoll(s, "q", []string{"a"}, now)
	quiz := CreateQuiz(s, "round", quizQuestions(1), now)
	SetTimer(s, 60)

	if !End(s, now) {
		t.Fatal("end failed")
	}
	if End(s, now.Add(time.Minute)) {
		t.Fatal("second end should be a no-op")
	}
	if s.Status != models.SessionStatusEnded || s.EndedAt == nil {
		t.Fatal("session not marked ended")
	}
	if !s.EndedAt.Equal(now) {
		t.Fatal("second end must not move the end time")
	}
	if poll.IsActive || quiz.IsActive {
		t.Fatal("active poll/quiz should be force-ended")
	}
	if s.ActivePollID != uuid.Nil || s.ActiveQuizID != uuid.Nil || s.ClassTimer != nil {
		t.Fatal("active references should be cleared")
	}
	if len(s.Polls) != 1 || len(s.Quizzes) != 1 {
		t.Fatal("historical lists must survive the end")
	}
}
