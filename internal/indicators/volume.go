package indicators

import "math"

// ============================================================================
// VOLUME INDICATORS
// ============================================================================

// OBV calculates On-Balance Volume, starting from 0 at index 0
func OBV(closes, volumes []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// VWAP calculates the cumulative volume-weighted typical price over the frame.
// Bars before any volume has traded are NaN.
func VWAP(highs, lows, closes, volumes []float64) []float64 {
	n := len(closes)
	out := nanSeries(n)
	cumPV, cumVol := 0.0, 0.0
	for i := 0; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		cumPV += typical * volumes[i]
		cumVol += volumes[i]
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		}
	}
	return out
}

// RelativeVolume returns volume divided by the mean of the previous period bars
func RelativeVolume(volumes []float64, period int) []float64 {
	n := len(volumes)
	out := nanSeries(n)
	if period <= 0 || n < period+1 {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += volumes[i]
	}
	for i := period; i < n; i++ {
		mean := sum / float64(period)
		if mean > 0 {
			out[i] = volumes[i] / mean
		} else {
			out[i] = math.NaN()
		}
		sum += volumes[i] - volumes[i-period]
	}
	return out
}
