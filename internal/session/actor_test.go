package session

import (
	"sync"
	"testing"

	"github.com/classpulse/backend/internal/models"
)

func TestActorSerializesCommands(t *testing.T) {
	s, ids := newTestSession(t, 1)
	a := newActor(s)
	defer a.stop()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !a.do(func(s *models.Session) {
				s.Participant(ids[0]).Points++
			}) {
				t.Error("do returned false on a live actor")
			}
		}()
	}
	wg.Wait()

	var points int
	a.do(func(s *models.Session) { points = s.Participant(ids[0]).Points })
	if points != 100 {
		t.Fatalf("expected 100 points, got %d", points)
	}
}

func TestActorDoObservesPostState(t *testing.T) {
	s, _ := newTestSession(t, 0)
	a := newActor(s)
	defer a.stop()

	// do is synchronous: the caller sees the state the command produced.
	var remaining int
	a.do(func(s *models.Session) {
		SetTimer(s, 42)
		remaining = s.ClassTimer.RemainingSeconds
	})
	if remaining != 42 {
		t.Fatalf("expected 42, got %d", remaining)
	}
}

func TestActorStop(t *testing.T) {
	s, _ := newTestSession(t, 0)
	a := newActor(s)

	a.stop()
	a.stop()

	if a.do(func(*models.Session) {}) {
		t.Fatal("do on a stopped actor should return false")
	}
	if a.tryDo(func(*models.Session) {}) {
		t.Fatal("tryDo on a stopped actor should return false")
	}
}
