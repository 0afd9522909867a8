package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcaster) BroadcastToSession(_ uuid.UUID, event string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBroadcaster) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

func TestTickerDrivesRunningTimer(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)
	defer r.Shutdown()
	s, _ := newTestSession(t, 0)
	SetTimer(s, 300)
	ToggleTimer(s)
	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}

	events := &fakeBroadcaster{}
	tk := NewTicker(r, events, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go tk.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for events.count("timer:update") < 3 {
		if time.Now().After(deadline) {
			t.Fatal("ticker never broadcast timer updates")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	// Interval below one second still decrements whole seconds.
	snap, err := r.Snapshot(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ClassTimer.RemainingSeconds >= 300 {
		t.Fatalf("timer did not advance, remaining=%d", snap.ClassTimer.RemainingSeconds)
	}
}

func TestTickerIgnoresPausedTimer(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil)
	defer r.Shutdown()
	s, _ := newTestSession(t, 0)
	SetTimer(s, 300)
	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}

	events := &fakeBroadcaster{}
	tk := NewTicker(r, events, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go tk.Run(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()

	if n := events.count("timer:update"); n != 0 {
		t.Fatalf("paused timer broadcast %d updates", n)
	}
	snap, _ := r.Snapshot(context.Background(), s.ID)
	if snap.ClassTimer.RemainingSeconds != 300 {
		t.Fatalf("paused timer advanced to %d", snap.ClassTimer.RemainingSeconds)
	}
}
