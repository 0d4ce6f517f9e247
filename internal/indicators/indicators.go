// Package indicators implements the indicator kernel. Every function is pure:
// it takes price columns and returns a series aligned with its input, padded
// with NaN at the head until enough history exists.
package indicators

import (
	"math"
)

// NaN-padded series helpers

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// firstValid returns the index of the first non-NaN value, or len(values)
func firstValid(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return len(values)
}

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average series
func SMA(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	start := firstValid(values)
	if period <= 0 || n-start < period {
		return out
	}

	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	out[start+period-1] = sum / float64(period)

	for i := start + period; i < n; i++ {
		sum += values[i] - values[i-period]
		out[i] = sum / float64(period)
	}
	return out
}

// EMA calculates the Exponential Moving Average series, seeded with the SMA
// of the first period values and smoothed with multiplier 2/(period+1).
// Leading NaNs in values are skipped, so EMA can run over derived series.
func EMA(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	start := firstValid(values)
	if period <= 0 || n-start < period {
		return out
	}

	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[start+period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := start + period; i < n; i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}

// StdDev calculates the rolling population standard deviation
func StdDev(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	start := firstValid(values)
	if period <= 0 || n-start < period {
		return out
	}

	for i := start + period - 1; i < n; i++ {
		mean := 0.0
		for j := i - period + 1; j <= i; j++ {
			mean += values[j]
		}
		mean /= float64(period)

		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(period))
	}
	return out
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates Wilder's Relative Strength Index. The first value sits at
// index period; a zero average loss yields 100.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period <= 0 || n < period+1 {
		return out
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// StochRSI scales RSI over its trailing stochPeriod range into [0,100] and
// smooths it into %K (kPeriod) and %D (dPeriod). A flat RSI window reads 50.
func StochRSI(closes []float64, rsiPeriod, stochPeriod, kPeriod, dPeriod int) (k, d []float64) {
	n := len(closes)
	rsi := RSI(closes, rsiPeriod)
	raw := nanSeries(n)

	start := firstValid(rsi)
	for i := start + stochPeriod - 1; i < n; i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for j := i - stochPeriod + 1; j <= i; j++ {
			lo = math.Min(lo, rsi[j])
			hi = math.Max(hi, rsi[j])
		}
		if hi == lo {
			raw[i] = 50
			continue
		}
		raw[i] = (rsi[i] - lo) / (hi - lo) * 100
	}

	k = SMA(raw, kPeriod)
	d = SMA(k, dPeriod)
	return k, d
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDSeries holds MACD line, signal and histogram series
type MACDSeries struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD calculates fast EMA minus slow EMA, its signal EMA and the histogram.
// The signal is an EMA over the valid part of the line.
func MACD(closes []float64, fast, slow, signalPeriod int) MACDSeries {
	n := len(closes)
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line := nanSeries(n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}

	sig := EMA(line, signalPeriod)
	hist := nanSeries(n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}

	return MACDSeries{Line: line, Signal: sig, Histogram: hist}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerSeries holds the bands plus %B and band width
type BollingerSeries struct {
	Upper    []float64
	Middle   []float64
	Lower    []float64
	PercentB []float64
	Width    []float64
	K        float64
}

// Bollinger calculates SMA(period) ± k·σ with population σ
func Bollinger(closes []float64, period int, k float64) BollingerSeries {
	n := len(closes)
	middle := SMA(closes, period)
	sd := StdDev(closes, period)

	bb := BollingerSeries{
		Upper:    nanSeries(n),
		Middle:   middle,
		Lower:    nanSeries(n),
		PercentB: nanSeries(n),
		Width:    nanSeries(n),
		K:        k,
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(middle[i]) {
			continue
		}
		bb.Upper[i] = middle[i] + k*sd[i]
		bb.Lower[i] = middle[i] - k*sd[i]
		if span := bb.Upper[i] - bb.Lower[i]; span > 0 {
			bb.PercentB[i] = (closes[i] - bb.Lower[i]) / span
		} else {
			bb.PercentB[i] = 0.5
		}
		if middle[i] != 0 {
			bb.Width[i] = (bb.Upper[i] - bb.Lower[i]) / middle[i]
		}
	}
	return bb
}

// ZScore calculates (close - SMA) / σ over the trailing window; σ == 0 gives 0
func ZScore(closes []float64, period int) []float64 {
	n := len(closes)
	mean := SMA(closes, period)
	sd := StdDev(closes, period)
	out := nanSeries(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(mean[i]) {
			continue
		}
		if sd[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = (closes[i] - mean[i]) / sd[i]
	}
	return out
}
