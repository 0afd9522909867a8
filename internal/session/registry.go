package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// Store is the durable record behind the registry: the persisted
// representation used for recovery after a restart and for reporting.
// The in-memory session stays authoritative for live clients; writes to
// the store are fire-and-forget relative to the in-memory update.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	SaveSnapshot(ctx context.Context, s *models.Session) error
	LoadSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	MarkEnded(ctx context.Context, id uuid.UUID, endedAt time.Time) error
}

// Registry is the authoritative in-memory table of active sessions. Each
// live session is owned by one actor; the registry routes commands to it
// and recreates sessions from the durable record on a miss.
type Registry struct {
	mu     sync.RWMutex
	actors map[uuid.UUID]*actor
	store  Store
	logger *zap.Logger
}

// NewRegistry creates an empty registry over the given durable store.
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		actors: make(map[uuid.UUID]*actor),
		store:  store,
		logger: logger,
	}
}

// Create persists the session and inserts it into the registry. Duplicate
// ids are rejected.
func (r *Registry) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	if _, ok := r.actors[s.ID]; ok {
		r.mu.Unlock()
		return ErrSessionExists
	}
	r.actors[s.ID] = newActor(s)
	r.mu.Unlock()

	if err := r.store.CreateSession(ctx, s); err != nil {
		r.mu.Lock()
		if a, ok := r.actors[s.ID]; ok {
			delete(r.actors, s.ID)
			a.stop()
		}
		r.mu.Unlock()
		return err
	}
	r.logger.Info("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("host_id", s.HostID.String()))
	return nil
}

// Do runs fn inside the session's actor, recreating the session from the
// durable record when it is not live (e.g. after a process restart).
// ErrSessionNotFound is returned when the durable record is also missing.
func (r *Registry) Do(ctx context.Context, id uuid.UUID, fn func(*models.Session)) error {
	a, err := r.resolve(ctx, id)
	if err != nil {
		return err
	}
	if !a.do(fn) {
		// Actor stopped between lookup and dispatch: session just ended.
		return ErrSessionEnded
	}
	return nil
}

// Snapshot returns a deep copy of the session's current state, taken inside
// the actor so it is consistent. Falls back to the durable record on a miss.
func (r *Registry) Snapshot(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var snap *models.Session
	err := r.Do(ctx, id, func(s *models.Session) {
		snap = cloneSession(s)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Persist writes the session's current state to the durable store without
// blocking the actor: the snapshot is taken inside the loop, the write
// happens outside it.
func (r *Registry) Persist(id uuid.UUID) {
	snap, err := r.Snapshot(context.Background(), id)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.SaveSnapshot(ctx, snap); err != nil {
			r.logger.Warn("session snapshot write failed",
				zap.String("session_id", id.String()), zap.Error(err))
		}
	}()
}

// End marks the session ended, persists the final state, evicts it from the
// registry, and returns the final snapshot. Idempotent: ending a session
// that is already gone returns the durable record's last snapshot; the end
// trigger can arrive from both a client action and the recovery path.
func (r *Registry) End(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	a, live := r.actors[id]
	if live {
		delete(r.actors, id)
	}
	r.mu.Unlock()

	if !live {
		stored, err := r.store.LoadSession(ctx, id)
		if err != nil {
			return nil, ErrSessionNotFound
		}
		now := time.Now()
		if End(stored, now) {
			_ = r.store.MarkEnded(ctx, id, now)
			_ = r.store.SaveSnapshot(ctx, stored)
		}
		return stored, nil
	}

	var final *models.Session
	now := time.Now()
	a.do(func(s *models.Session) {
		End(s, now)
		final = cloneSession(s)
	})
	a.stop()

	if err := r.store.MarkEnded(ctx, id, now); err != nil {
		r.logger.Warn("mark session ended failed", zap.String("session_id", id.String()), zap.Error(err))
	}
	if err := r.store.SaveSnapshot(ctx, final); err != nil {
		r.logger.Warn("final snapshot write failed", zap.String("session_id", id.String()), zap.Error(err))
	}
	r.logger.Info("session ended", zap.String("session_id", id.String()))
	return final, nil
}

// LiveIDs returns the ids of all sessions currently in the registry.
func (r *Registry) LiveIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.actors))
	for id := range r.actors {
		ids = append(ids, id)
	}
	return ids
}

// IsLive reports whether the session is currently in the registry.
func (r *Registry) IsLive(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actors[id]
	return ok
}

// Shutdown stops every live actor. Used on process shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	actors := make([]*actor, 0, len(r.actors))
	for id, a := range r.actors {
		actors = append(actors, a)
		delete(r.actors, id)
	}
	r.mu.Unlock()
	for _, a := range actors {
		a.stop()
	}
}

// tick dispatches a non-blocking tick command; used by the Ticker.
func (r *Registry) tick(id uuid.UUID, fn func(*models.Session)) {
	r.mu.RLock()
	a, ok := r.actors[id]
	r.mu.RUnlock()
	if ok {
		a.tryDo(fn)
	}
}

// resolve returns the live actor for id, recreating the session from the
// durable record on a miss. The recreated session keeps the roster, host
// and timestamps but none of the ephemeral sub-state: no active poll or
// quiz, no timer, no raised hands, everyone offline.
func (r *Registry) resolve(ctx context.Context, id uuid.UUID) (*actor, error) {
	r.mu.RLock()
	a, ok := r.actors[id]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	stored, err := r.store.LoadSession(ctx, id)
	if err != nil || stored == nil {
		return nil, ErrSessionNotFound
	}
	if stored.Status == models.SessionStatusEnded {
		return nil, ErrSessionEnded
	}
	stripEphemeral(stored)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have recreated it while we were loading.
	if a, ok := r.actors[id]; ok {
		return a, nil
	}
	a = newActor(stored)
	r.actors[id] = a
	r.logger.Info("session recreated from durable record", zap.String("session_id", id.String()))
	return a, nil
}

func stripEphemeral(s *models.Session) {
	s.ActivePollID = uuid.Nil
	s.ActiveQuizID = uuid.Nil
	s.ClassTimer = nil
	s.RaisedHands = nil
	s.SpotlightedID = nil
	for _, p := range s.Polls {
		p.IsActive = false
	}
	for _, q := range s.Quizzes {
		q.IsActive = false
	}
	for _, p := range s.Participants {
		p.Online = false
		p.InSession = false
		p.HasRaisedHand = false
		p.RaisedHandAt = nil
	}
}

// cloneSession deep-copies a session via JSON so callers outside the actor
// never alias live state.
func cloneSession(s *models.Session) *models.Session {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var out models.Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}
