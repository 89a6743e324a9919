package interfaces

import (
	"time"

	"smartguard-relay/src/models"
)

// -----------------------------------------------------------------------------
// ISubscriberTransport delivers classified readings to one downstream client.
// Implementations need not be safe for concurrent use; the hub drives each
// transport from a single goroutine.
// -----------------------------------------------------------------------------

type ISubscriberTransport interface {

	// WriteReading sends one reading; it should give up at deadline
	WriteReading(reading models.MReading, deadline time.Time) error

	// -----------------------------------------------------------------------------

	// Ping checks liveness; it should give up at deadline
	Ping(deadline time.Time) error

	// -----------------------------------------------------------------------------

	// Close tears the connection down; it may be called more than once
	Close() error
}
