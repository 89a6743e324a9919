package models

// -----------------------------------------------------------------------------
// Safety Thresholds
// -----------------------------------------------------------------------------

type MThresholds struct {
	WindSpeed  float64 `json:"windSpeedThreshold" yaml:"wind_speed"`
	Stability  float64 `json:"stabilityThreshold" yaml:"stability"`
	Load       float64 `json:"loadThreshold" yaml:"load"`
	SwingSpeed float64 `json:"swingSpeedThreshold" yaml:"swing_speed"`
}

// DefaultThresholds matches the limits the crane operators run with today.
func DefaultThresholds() MThresholds {
	return MThresholds{
		WindSpeed:  15,
		Stability:  70,
		Load:       900,
		SwingSpeed: 3,
	}
}

// -----------------------------------------------------------------------------
// Partial update (administrative boundary)
// -----------------------------------------------------------------------------

// MThresholdsUpdate carries only the thresholds an operator wants to change.
// Nil fields keep their current value.
type MThresholdsUpdate struct {
	WindSpeed  *float64 `json:"windSpeedThreshold,omitempty"`
	Stability  *float64 `json:"stabilityThreshold,omitempty"`
	Load       *float64 `json:"loadThreshold,omitempty"`
	SwingSpeed *float64 `json:"swingSpeedThreshold,omitempty"`
}

// -----------------------------------------------------------------------------

// Apply returns t with the non-nil fields of u written over it.
func (u MThresholdsUpdate) Apply(t MThresholds) MThresholds {
	if u.WindSpeed != nil {
		t.WindSpeed = *u.WindSpeed
	}
	if u.Stability != nil {
		t.Stability = *u.Stability
	}
	if u.Load != nil {
		t.Load = *u.Load
	}
	if u.SwingSpeed != nil {
		t.SwingSpeed = *u.SwingSpeed
	}
	return t
}

// -----------------------------------------------------------------------------

func (u MThresholdsUpdate) IsEmpty() bool {
	return u.WindSpeed == nil && u.Stability == nil && u.Load == nil && u.SwingSpeed == nil
}
