package risk

import (
	"math"
)

// KellyFraction uses the Kelly Criterion to size risk from a win probability
// and a payoff ratio: f* = (b*p - q) / b, clipped to [0, cap]
func KellyFraction(p, b, cap float64) float64 {
	if b <= 0 {
		return 0
	}
	q := 1 - p
	kelly := (b*p - q) / b
	if kelly < 0 {
		kelly = 0
	}
	if kelly > cap {
		kelly = cap
	}
	return kelly
}

// VolatilityScalar scales the Kelly fraction by how the stop compares with
// ATR: tight stops are halved, wide stops get more room
func VolatilityScalar(stopDistance, atr float64, cfg SizingConfig) float64 {
	if atr <= 0 {
		return 1
	}
	ratio := stopDistance / atr
	switch {
	case ratio < cfg.TightStopATR:
		return cfg.TightScalar
	case ratio > cfg.WideStopATR:
		return cfg.WideScalar
	default:
		return 1
	}
}

// PositionUnits converts a risk fraction of balance into units, given the
// per-unit risk between entry and stop
func PositionUnits(balance, fraction, entry, stop float64) float64 {
	riskPerUnit := math.Abs(entry - stop)
	if riskPerUnit == 0 || balance <= 0 {
		return 0
	}
	return balance * fraction / riskPerUnit
}
