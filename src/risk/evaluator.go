// Package risk classifies decoded telemetry against safety thresholds.
//
// Evaluate is deterministic: the same raw reading and thresholds always yield
// the same classification. Threshold updates swap an immutable snapshot, so an
// evaluation in progress never sees a half-applied update.
package risk

import (
	"sync/atomic"

	"smartguard-relay/src/config"
	"smartguard-relay/src/models"
)

// Alert messages, in the order they are reported.
const (
	AlertHighWind   = "High Wind Speed"
	AlertLowStab    = "Low Stability"
	AlertOverload   = "Overload"
	AlertFastSwing  = "Excessive Swing Speed"
	stabilityMargin = 15.0
)

// Absolute medium bands used in fixed mode.
const (
	fixedMediumWind      = 10.0
	fixedMediumStability = 85.0
	fixedMediumLoad      = 800.0
)

// Evaluator maps raw readings to classified readings.
type Evaluator struct {
	thresholds atomic.Pointer[models.MThresholds]
	fixedBands bool
}

// NewEvaluator validates the initial thresholds. mode is config.MediumBandRelative
// or config.MediumBandFixed.
func NewEvaluator(initial models.MThresholds, mode string) (*Evaluator, error) {
	if err := config.ValidateThresholds(initial); err != nil {
		return nil, err
	}
	e := &Evaluator{fixedBands: mode == config.MediumBandFixed}
	e.thresholds.Store(&initial)
	return e, nil
}

// Thresholds returns the snapshot the next evaluation will use.
func (e *Evaluator) Thresholds() models.MThresholds {
	return *e.thresholds.Load()
}

// UpdateThresholds merges u into the current thresholds. Invalid results are
// rejected with a ConfigurationError and the previous snapshot stays in effect.
func (e *Evaluator) UpdateThresholds(u models.MThresholdsUpdate) (models.MThresholds, error) {
	for {
		current := e.thresholds.Load()
		next := u.Apply(*current)
		if err := config.ValidateThresholds(next); err != nil {
			return *current, err
		}
		if e.thresholds.CompareAndSwap(current, &next) {
			return next, nil
		}
	}
}

// Evaluate classifies raw using a single thresholds snapshot.
func (e *Evaluator) Evaluate(raw models.MRawReading) models.MReading {
	t := e.thresholds.Load()

	return models.MReading{
		Weight:            raw.Weight,
		WindSpeed:         raw.WindSpeed,
		Stability:         raw.Stability,
		BoomAngle:         raw.BoomAngle,
		SwingSpeed:        raw.SwingSpeed,
		EnergyConsumption: raw.EnergyConsumption,
		ObservedAt:        raw.ObservedAt,
		RiskLevel:         e.classify(raw, t),
		Alerts:            alerts(raw, t),
		SystemHealthy:     raw.Stability > t.Stability && raw.WindSpeed < t.WindSpeed,
	}
}

func (e *Evaluator) classify(raw models.MRawReading, t *models.MThresholds) models.RiskLevel {
	if raw.WindSpeed > t.WindSpeed || raw.Stability < t.Stability || raw.Weight > t.Load {
		return models.RiskHigh
	}

	wind, stab, load := e.mediumBands(t)
	if raw.WindSpeed > wind || raw.Stability < stab || raw.Weight > load {
		return models.RiskMedium
	}
	return models.RiskLow
}

// mediumBands scales the medium band with the thresholds. The exact 2/3 and
// 8/9 ratios (not 0.67 and 0.89) reproduce the fixed 10 m/s and 800 kg bands
// at the default 15 m/s and 900 kg limits. Stability sits 15 points above its
// limit.
func (e *Evaluator) mediumBands(t *models.MThresholds) (wind, stability, load float64) {
	if e.fixedBands {
		return fixedMediumWind, fixedMediumStability, fixedMediumLoad
	}
	return t.WindSpeed * 2 / 3, t.Stability + stabilityMargin, t.Load * 8 / 9
}

func alerts(raw models.MRawReading, t *models.MThresholds) []string {
	out := make([]string, 0, 4)
	if raw.WindSpeed > t.WindSpeed {
		out = append(out, AlertHighWind)
	}
	if raw.Stability < t.Stability {
		out = append(out, AlertLowStab)
	}
	if raw.Weight > t.Load {
		out = append(out, AlertOverload)
	}
	if raw.SwingSpeed > t.SwingSpeed {
		out = append(out, AlertFastSwing)
	}
	return out
}
