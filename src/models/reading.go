package models

import "time"

// -----------------------------------------------------------------------------
// Risk Level
// -----------------------------------------------------------------------------

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// -----------------------------------------------------------------------------
// Raw Reading (decoded, not yet classified)
// -----------------------------------------------------------------------------

// MRawReading holds the sensor fields of one upstream message plus the local
// decode time. It never leaves the pipeline unclassified.
type MRawReading struct {
	Weight            float64   // kg
	WindSpeed         float64   // m/s
	Stability         float64   // %
	BoomAngle         float64   // degrees
	SwingSpeed        float64   // degrees/s
	EnergyConsumption float64   // kW
	ObservedAt        time.Time // set at decode time
}

// -----------------------------------------------------------------------------
// Classified Reading (wire format for subscribers)
// -----------------------------------------------------------------------------

type MReading struct {
	Sequence          uint64    `json:"sequence"`
	Weight            float64   `json:"weight"`
	WindSpeed         float64   `json:"windSpeed"`
	Stability         float64   `json:"stability"`
	BoomAngle         float64   `json:"boomAngle"`
	SwingSpeed        float64   `json:"swingSpeed"`
	EnergyConsumption float64   `json:"energyConsumption"`
	ObservedAt        time.Time `json:"observedAt"`
	RiskLevel         RiskLevel `json:"riskLevel"`
	Alerts            []string  `json:"alerts"`
	SystemHealthy     bool      `json:"systemHealthy"`
}

// -----------------------------------------------------------------------------

// Clone returns a copy that shares no mutable state with r.
func (r MReading) Clone() MReading {
	alerts := make([]string, len(r.Alerts))
	copy(alerts, r.Alerts)
	r.Alerts = alerts
	return r
}
