package models

import "time"

// -----------------------------------------------------------------------------
// Upstream status (health signal for the ingest side)
// -----------------------------------------------------------------------------

type MUpstreamStatus struct {
	Connected     bool      `json:"connected"`
	Reconnects    uint64    `json:"reconnects"`
	LastError     string    `json:"lastError,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
}

// -----------------------------------------------------------------------------
// Health response
// -----------------------------------------------------------------------------

type MHealth struct {
	Status       string          `json:"status"`
	Sessions     int             `json:"sessions"`
	Upstream     MUpstreamStatus `json:"upstream"`
	LastSequence uint64          `json:"lastSequence"`
}
