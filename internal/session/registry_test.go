package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
)

// fakeStore is an in-memory Store for registry tests.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*models.Session
	createErr error
	saves     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]*models.Session)}
}

func (f *fakeStore) CreateSession(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.sessions[s.ID] = cloneSession(s)
	return nil
}

func (f *fakeStore) SaveSnapshot(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = cloneSession(s)
	f.saves++
	return nil
}

func (f *fakeStore) LoadSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return cloneSession(s), nil
}

func (f *fakeStore) MarkEnded(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Status = models.SessionStatusEnded
		t := endedAt
		s.EndedAt = &t
	}
	return nil
}

func TestRegistryCreateRejectsDuplicates(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)
	defer r.Shutdown()
	s, _ := newTestSession(t, 1)

	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Create(context.Background(), s); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if !r.IsLive(s.ID) {
		t.Fatal("session should be live after create")
	}
}

func TestRegistryCreateRollsBackOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("insert failed")
	r := NewRegistry(store, nil)
	defer r.Shutdown()
	s, _ := newTestSession(t, 0)

	if err := r.Create(context.Background(), s); err == nil {
		t.Fatal("expected store error")
	}
	if r.IsLive(s.ID) {
		t.Fatal("failed create should not leave a live actor")
	}
}

func TestRegistryDoUnknownSession(t *testing.T) {
	r := NewRegistry(newFakeStore(), nil)
	defer r.Shutdown()

	err := r.Do(context.Background(), uuid.New(), func(*models.Session) {})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistrySerializesConcurrentVotes(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)
	defer r.Shutdown()
	s, _ := newTestSession(t, 0)
	now := time.Now()

	voters := make([]uuid.UUID, 50)
	for i := range voters {
		voters[i] = uuid.New()
		Join(s, models.UserPublic{ID: voters[i], FullName: "Student", Role: models.RoleStudent}, now)
	}
	poll := CreatePoll(s, "q", []string{"a", "b"}, now)
	pollID := poll.ID
	optionIDs := []uuid.UUID{poll.Options[0].ID, poll.Options[1].ID}
	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i, voterID := range voters {
		wg.Add(1)
		go func(optionID, voterID uuid.UUID) {
			defer wg.Done()
			_ = r.Do(context.Background(), s.ID, func(s *models.Session) {
				Vote(s, pollID, optionID, voterID)
			})
		}(optionIDs[i%2], voterID)
	}
	wg.Wait()

	snap, err := r.Snapshot(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	p := snap.ActivePoll()
	sum := 0
	for _, o := range p.Options {
		sum += len(o.Votes)
	}
	if p.TotalVotes != len(voters) || sum != len(voters) {
		t.Fatalf("expected %d votes, total=%d sum=%d", len(voters), p.TotalVotes, sum)
	}
}

func TestRegistrySnapshotDoesNotAliasLiveState(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)
	defer r.Shutdown()
	s, ids := newTestSession(t, 1)
	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := r.Snapshot(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.Participant(ids[0]).Points = 999

	fresh, _ := r.Snapshot(context.Background(), s.ID)
	if fresh.Participant(ids[0]).Points != 0 {
		t.Fatal("mutating a snapshot leaked into live state")
	}
}

func TestRegistryRecreatesFromDurableRecord(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)
	s, ids := newTestSession(t, 2)
	now := time.Now()

	CreatePoll(s, "q", []string{"a", "b"}, now)
	CreateQuiz(s, "round", quizQuestions(1), now)
	SetTimer(s, 300)
	RaiseHand(s, ids[0], now)
	ToggleSpotlight(s, ids[1])
	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}
	r.Persist(s.ID)

	// Wait for the async snapshot write, then simulate a restart by
	// shutting the registry down and starting a fresh one over the store.
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		saved := store.saves > 0
		store.mu.Unlock()
		if saved {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.Shutdown()

	r2 := NewRegistry(store, nil)
	defer r2.Shutdown()
	snap, err := r2.Snapshot(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("snapshot after restart: %v", err)
	}

	if len(snap.Participants) != 3 || snap.HostID != s.HostID {
		t.Fatal("roster and host must survive recreation")
	}
	if snap.ActivePoll() != nil || snap.ActiveQuiz() != nil {
		t.Fatal("recreated session must not have an active poll or quiz")
	}
	for _, p := range snap.Polls {
		if p.IsActive {
			t.Fatal("persisted poll still active after recreation")
		}
	}
	if snap.ClassTimer != nil || len(snap.RaisedHands) != 0 || snap.SpotlightedID != nil {
		t.Fatal("ephemeral state must be stripped on recreation")
	}
	for _, p := range snap.Participants {
		if p.Online || p.InSession || p.HasRaisedHand {
			t.Fatalf("participant %s not reset to offline", p.UserID)
		}
	}
}

func TestRegistryEndIsIdempotent(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)
	defer r.Shutdown()
	s, _ := newTestSession(t, 1)
	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}

	final, err := r.End(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if final.Status != models.SessionStatusEnded {
		t.Fatal("final snapshot not marked ended")
	}
	if r.IsLive(s.ID) {
		t.Fatal("ended session should be evicted")
	}

	// Second end resolves through the durable record and keeps the end time.
	again, err := r.End(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if again.Status != models.SessionStatusEnded {
		t.Fatal("second end lost the ended status")
	}
	if !again.EndedAt.Equal(*final.EndedAt) {
		t.Fatal("second end must not move the end time")
	}

	// Commands against the ended session fail without resurrecting it.
	err = r.Do(context.Background(), s.ID, func(*models.Session) {})
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
	if r.IsLive(s.ID) {
		t.Fatal("ended session must not be recreated")
	}
}

func TestEndedSessionServesFinalSnapshot(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)
	defer r.Shutdown()
	s, ids := newTestSession(t, 1)
	poll := CreatePoll(s, "q", []string{"a", "b"}, time.Now())
	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Do(context.Background(), s.ID, func(s *models.Session) {
		Vote(s, poll.ID, poll.Options[0].ID, ids[0])
	}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := r.End(context.Background(), s.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Live reads refuse the ended session; the durable record still holds
	// its full final state for reporting.
	if _, err := r.Snapshot(context.Background(), s.ID); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
	stored, err := store.LoadSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Status != models.SessionStatusEnded || stored.EndedAt == nil {
		t.Fatalf("stored session not marked ended: %s %v", stored.Status, stored.EndedAt)
	}
	if len(stored.Participants) != 2 {
		t.Fatalf("roster lost in final snapshot, got %d", len(stored.Participants))
	}
	if len(stored.Polls) != 1 || stored.Polls[0].TotalVotes != 1 {
		t.Fatal("poll history lost in final snapshot")
	}
}

func TestRegistryEndUnknownSession(t *testing.T) {
	r := NewRegistry(newFakeStore(), nil)
	defer r.Shutdown()

	if _, err := r.End(context.Background(), uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
