package interfaces

import "smartguard-relay/src/models"

// -----------------------------------------------------------------------------
// IThresholdStore is the administrative view of the risk thresholds.
// -----------------------------------------------------------------------------

type IThresholdStore interface {
	Thresholds() models.MThresholds

	// UpdateThresholds applies a partial update atomically or returns a
	// ConfigurationError and leaves the current values untouched
	UpdateThresholds(update models.MThresholdsUpdate) (models.MThresholds, error)
}

// -----------------------------------------------------------------------------
// IRelayStatus exposes live state for health and session endpoints.
// -----------------------------------------------------------------------------

type IRelayStatus interface {
	Health() models.MHealth
	Sessions() []models.MSessionStats
}
