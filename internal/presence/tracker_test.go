package presence

import (
	"testing"

	"github.com/google/uuid"
)

type conn string

func (c conn) ConnectionID() string { return string(c) }

func TestTrackerConnectDisconnect(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()

	if tr.IsOnline(userID) {
		t.Fatal("user online before connect")
	}
	tr.Connect(userID, conn("c1"))
	if !tr.IsOnline(userID) {
		t.Fatal("user offline after connect")
	}
	if got := tr.Get(userID); got == nil || got.ConnectionID() != "c1" {
		t.Fatalf("unexpected handle %v", got)
	}

	tr.Disconnect(userID, conn("c1"))
	if tr.IsOnline(userID) {
		t.Fatal("user online after disconnect")
	}
	if tr.Get(userID) != nil {
		t.Fatal("handle survived disconnect")
	}
}

func TestTrackerStaleDisconnectKeepsNewConnection(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()

	// Reconnect races the old connection's teardown: the user opens c2
	// before c1's disconnect lands.
	tr.Connect(userID, conn("c1"))
	tr.Connect(userID, conn("c2"))
	tr.Disconnect(userID, conn("c1"))

	if !tr.IsOnline(userID) {
		t.Fatal("stale disconnect dropped the new connection")
	}
	if got := tr.Get(userID); got.ConnectionID() != "c2" {
		t.Fatalf("expected c2, got %s", got.ConnectionID())
	}

	tr.Disconnect(userID, conn("c2"))
	if tr.IsOnline(userID) {
		t.Fatal("user online after owning connection disconnected")
	}
}

func TestTrackerListOnlineAndClear(t *testing.T) {
	tr := NewTracker()
	a, b := uuid.New(), uuid.New()
	tr.Connect(a, conn("ca"))
	tr.Connect(b, conn("cb"))

	online := tr.ListOnline()
	if len(online) != 2 {
		t.Fatalf("expected 2 online, got %d", len(online))
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range online {
		seen[id] = true
	}
	if !seen[a] || !seen[b] {
		t.Fatalf("missing ids in %v", online)
	}

	tr.Clear()
	if len(tr.ListOnline()) != 0 {
		t.Fatal("clear left users online")
	}
}

func TestTrackerDisconnectUnknownUser(t *testing.T) {
	tr := NewTracker()
	tr.Disconnect(uuid.New(), conn("c1"))
}
