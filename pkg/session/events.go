package session

import "time"

// EventType names a session lifecycle transition.
type EventType string

const (
	EventLogin   EventType = "login"
	EventHydrate EventType = "hydrate"
	EventRefresh EventType = "refresh"
	EventLogout  EventType = "logout"
	// EventError reports a failed automatic refresh. Retry holds the delay
	// before the next attempt.
	EventError EventType = "error"
)

// Event is delivered to listeners after each transition.
type Event struct {
	Type  EventType
	State State
	Err   error
	Retry time.Duration
	// Attempt counts consecutive refresh failures, including this one.
	Attempt int
}

// Listener receives session events. Listeners run synchronously on the
// goroutine that caused the transition and must not block.
type Listener func(Event)
