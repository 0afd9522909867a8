package session

import (
	"sync"

	"github.com/classpulse/backend/internal/models"
)

// actor owns one session's state. A single goroutine drains the command
// channel and runs each command to completion before the next, so every
// mutation of the session is serialized no matter how many connections act
// on it at once. Commands for different sessions run on different actors
// and proceed in parallel.
type actor struct {
	session *models.Session

	mu     sync.Mutex // guards closed and sends on cmds
	cmds   chan func(*models.Session)
	closed bool
	done   chan struct{}
}

func newActor(s *models.Session) *actor {
	a := &actor{
		session: s,
		cmds:    make(chan func(*models.Session), 64),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *actor) loop() {
	defer close(a.done)
	for cmd := range a.cmds {
		cmd(a.session)
	}
}

// do runs fn inside the actor loop and waits for it to complete. Returns
// false when the actor has already been stopped; the command is not run.
func (a *actor) do(fn func(*models.Session)) bool {
	ran := make(chan struct{})
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.cmds <- func(s *models.Session) {
		fn(s)
		close(ran)
	}
	a.mu.Unlock()
	<-ran
	return true
}

// tryDo is the asynchronous variant used by the ticker: it never blocks the
// caller. The command is dropped when the actor is stopped or its queue is
// full (a session that far behind will catch up on the next tick).
func (a *actor) tryDo(fn func(*models.Session)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	select {
	case a.cmds <- fn:
		return true
	default:
		return false
	}
}

// stop drains pending commands and stops the loop. Idempotent.
func (a *actor) stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.cmds)
	a.mu.Unlock()
	<-a.done
}
