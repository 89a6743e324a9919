package models

import "time"

// -----------------------------------------------------------------------------
// Subscriber Session State
// -----------------------------------------------------------------------------

type SessionState string

const (
	SessionConnecting SessionState = "Connecting"
	SessionActive     SessionState = "Active"
	SessionDraining   SessionState = "Draining"
	SessionClosed     SessionState = "Closed"
)

// -----------------------------------------------------------------------------
// Session statistics (served by /api/sessions)
// -----------------------------------------------------------------------------

type MSessionStats struct {
	ID          string       `json:"id"`
	State       SessionState `json:"state"`
	RemoteAddr  string       `json:"remoteAddr"`
	ConnectedAt time.Time    `json:"connectedAt"`
	Pending     int          `json:"pending"`
	Capacity    int          `json:"capacity"`
	Dropped     uint64       `json:"dropped"`
	Delivered   uint64       `json:"delivered"`
}
