package indicators

import (
	"math"

	"signal-engine/internal/market"
)

// Standard periods used by the analyzers
const (
	RSIPeriod        = 14
	ATRPeriod        = 14
	ADXPeriod        = 14
	BollingerPeriod  = 20
	BollingerK       = 2.0
	BollingerExtremK = 2.5
	VolumePeriod     = 20
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignal       = 9
)

// Bundle is the full indicator set for one frame. It is computed once per
// frame and shared read-only by every analyzer.
type Bundle struct {
	Len int

	EMA9   []float64
	EMA21  []float64
	EMA50  []float64
	EMA200 []float64
	SMA20  []float64

	RSI    []float64
	StochK []float64
	StochD []float64
	MACD   MACDSeries

	BB        BollingerSeries // k=2
	BBExtreme BollingerSeries // k=2.5
	ZScore    []float64
	ATR       []float64
	ADX       ADXSeries

	OBV       []float64
	VWAP      []float64
	RelVolume []float64
	VolumeSMA []float64
}

// Compute builds the bundle for frame on the calling goroutine. The
// computation order is fixed so the result is bitwise reproducible.
func Compute(frame *market.Frame) *Bundle {
	closes := frame.Closes()
	highs := frame.Highs()
	lows := frame.Lows()
	volumes := frame.Volumes()

	b := &Bundle{Len: len(closes)}
	b.EMA9 = EMA(closes, 9)
	b.EMA21 = EMA(closes, 21)
	b.EMA50 = EMA(closes, 50)
	b.EMA200 = EMA(closes, 200)
	b.SMA20 = SMA(closes, BollingerPeriod)

	b.RSI = RSI(closes, RSIPeriod)
	b.StochK, b.StochD = StochRSI(closes, RSIPeriod, 14, 3, 3)
	b.MACD = MACD(closes, MACDFast, MACDSlow, MACDSignal)

	b.BB = Bollinger(closes, BollingerPeriod, BollingerK)
	b.BBExtreme = Bollinger(closes, BollingerPeriod, BollingerExtremK)
	b.ZScore = ZScore(closes, BollingerPeriod)
	b.ATR = ATR(highs, lows, closes, ATRPeriod)
	b.ADX = ADX(highs, lows, closes, ADXPeriod)

	b.OBV = OBV(closes, volumes)
	b.VWAP = VWAP(highs, lows, closes, volumes)
	b.RelVolume = RelativeVolume(volumes, VolumePeriod)
	b.VolumeSMA = SMA(volumes, VolumePeriod)
	return b
}

// Last returns the most recent value of series, or NaN when absent
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Back returns the value k bars before the most recent one, or NaN
func Back(series []float64, k int) float64 {
	i := len(series) - 1 - k
	if i < 0 || i >= len(series) {
		return math.NaN()
	}
	return series[i]
}

// AnyNaN reports whether any of the values is NaN
func AnyNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Equal reports bitwise equality of two bundles, treating NaN as equal to NaN
func (b *Bundle) Equal(o *Bundle) bool {
	if b == nil || o == nil {
		return b == o
	}
	pairs := [][2][]float64{
		{b.EMA9, o.EMA9}, {b.EMA21, o.EMA21}, {b.EMA50, o.EMA50}, {b.EMA200, o.EMA200}, {b.SMA20, o.SMA20},
		{b.RSI, o.RSI}, {b.StochK, o.StochK}, {b.StochD, o.StochD},
		{b.MACD.Line, o.MACD.Line}, {b.MACD.Signal, o.MACD.Signal}, {b.MACD.Histogram, o.MACD.Histogram},
		{b.BB.Upper, o.BB.Upper}, {b.BB.Lower, o.BB.Lower}, {b.BBExtreme.Upper, o.BBExtreme.Upper},
		{b.BBExtreme.Lower, o.BBExtreme.Lower}, {b.ZScore, o.ZScore}, {b.ATR, o.ATR},
		{b.ADX.ADX, o.ADX.ADX}, {b.ADX.PlusDI, o.ADX.PlusDI}, {b.ADX.MinusDI, o.ADX.MinusDI},
		{b.OBV, o.OBV}, {b.VWAP, o.VWAP}, {b.RelVolume, o.RelVolume}, {b.VolumeSMA, o.VolumeSMA},
	}
	for _, p := range pairs {
		if !seriesEqual(p[0], p[1]) {
			return false
		}
	}
	return b.Len == o.Len
}

func seriesEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			if math.IsNaN(a[i]) && math.IsNaN(b[i]) {
				continue
			}
			return false
		}
	}
	return true
}
