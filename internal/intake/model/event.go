package model

import "time"

// EventKind names a session notification the presentation layer can
// subscribe to.
type EventKind string

const (
	EventPathChosen    EventKind = "path_chosen"
	EventCodeIssued    EventKind = "code_issued"
	EventPhoneVerified EventKind = "phone_verified"
	EventWatchCreated  EventKind = "watch_created"
	EventFlowClosed    EventKind = "flow_closed"
)

// SessionEvent is one notification about a session.
type SessionEvent struct {
	SessionID string         `json:"sessionId"`
	Kind      EventKind      `json:"kind"`
	Stage     Stage          `json:"stage"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}
