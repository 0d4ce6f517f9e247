package indicators

import (
	"math"
)

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// TrueRange returns the true range series. TR[0] is high-low; later bars use
// the max of high-low, |high-prevClose| and |low-prevClose|.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	out[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		prevClose := closes[i-1]
		out[i] = math.Max(
			highs[i]-lows[i],
			math.Max(
				math.Abs(highs[i]-prevClose),
				math.Abs(lows[i]-prevClose),
			),
		)
	}
	return out
}

// ATR calculates Wilder's Average True Range. The first value, at index
// period-1, is the mean of TR[0..period-1].
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}

	tr := TrueRange(highs, lows, closes)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period-1] = atr

	for i := period; i < n; i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}
	return out
}

// ============================================================================
// ADX (Average Directional Index)
// ============================================================================

// ADXSeries holds ADX with the directional indicators
type ADXSeries struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX calculates Wilder's Average Directional Index. DI values start at index
// period, ADX at 2·period-1. A zero DI sum yields DX = 100.
func ADX(highs, lows, closes []float64, period int) ADXSeries {
	n := len(closes)
	res := ADXSeries{ADX: nanSeries(n), PlusDI: nanSeries(n), MinusDI: nanSeries(n)}
	if period <= 0 || n < 2*period {
		return res
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := TrueRange(highs, lows, closes)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	var sTR, sPlus, sMinus float64
	for i := 1; i <= period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}

	dx := nanSeries(n)
	p := float64(period)
	for i := period; i < n; i++ {
		if i > period {
			sTR = sTR - sTR/p + tr[i]
			sPlus = sPlus - sPlus/p + plusDM[i]
			sMinus = sMinus - sMinus/p + minusDM[i]
		}
		pdi, mdi := 0.0, 0.0
		if sTR > 0 {
			pdi = 100 * sPlus / sTR
			mdi = 100 * sMinus / sTR
		}
		res.PlusDI[i] = pdi
		res.MinusDI[i] = mdi
		if sum := pdi + mdi; sum > 0 {
			dx[i] = 100 * math.Abs(pdi-mdi) / sum
		} else {
			dx[i] = 100
		}
	}

	first := 2*period - 1
	sum := 0.0
	for i := period; i <= first; i++ {
		sum += dx[i]
	}
	adx := sum / p
	res.ADX[first] = adx
	for i := first + 1; i < n; i++ {
		adx = (adx*(p-1) + dx[i]) / p
		res.ADX[i] = adx
	}
	return res
}
