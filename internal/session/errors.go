package session

import "errors"

var (
	// ErrSessionExists is returned when creating a session with a duplicate id.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned when the session is in neither the
	// registry nor the durable store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned when an action targets an ended session.
	ErrSessionEnded = errors.New("session has ended")
	// ErrNotHost is returned for host-only actions invoked by a non-host.
	ErrNotHost = errors.New("caller is not the session host")
	// ErrNotParticipant is returned when the caller is not on the roster.
	ErrNotParticipant = errors.New("caller is not a session participant")
)
