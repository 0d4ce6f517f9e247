package analysis

import (
	"fmt"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

// TrendAnalyzer votes on EMA 9/21/50/200 alignment, scaled by ADX
type TrendAnalyzer struct {
	strongADX  float64
	extremeADX float64
}

// NewTrendAnalyzer creates a new trend analyzer
func NewTrendAnalyzer() *TrendAnalyzer {
	return &TrendAnalyzer{strongADX: 25, extremeADX: 40}
}

// ID implements Analyzer
func (ta *TrendAnalyzer) ID() signal.AnalyzerID { return signal.AnalyzerTrend }

// Analyze implements Analyzer
func (ta *TrendAnalyzer) Analyze(frame *market.Frame, ind *indicators.Bundle, pat *patterns.Bundle) signal.Vote {
	if ind == nil {
		return signal.InsufficientHistory(ta.ID())
	}
	e9 := indicators.Last(ind.EMA9)
	e21 := indicators.Last(ind.EMA21)
	e50 := indicators.Last(ind.EMA50)
	e200 := indicators.Last(ind.EMA200)
	adx := indicators.Last(ind.ADX.ADX)
	if indicators.AnyNaN(e9, e21, e50, e200, adx) {
		return signal.InsufficientHistory(ta.ID())
	}

	evidence := map[string]interface{}{
		"ema9": e9, "ema21": e21, "ema50": e50, "ema200": e200, "adx": adx,
	}

	// Long pair decides the trend; short pairs decide whether it is intact
	var dir signal.Direction
	switch {
	case e50 > e200:
		dir = signal.DirectionBuy
	case e50 < e200:
		dir = signal.DirectionSell
	default:
		return vote(ta.ID(), signal.DirectionHold, 50, "long EMAs flat", evidence)
	}
	fast := aligned(e9, e21, dir)
	mid := aligned(e21, e50, dir)

	switch {
	case fast && mid:
		confidence := 90.0
		if adx >= ta.strongADX {
			confidence += 3
		}
		if adx >= ta.extremeADX {
			confidence += 5
		}
		return vote(ta.ID(), dir, confidence, fmt.Sprintf("EMA 9/21/50/200 stacked %s, ADX %.0f", stackWord(dir), adx), evidence)

	case fast || mid:
		confidence := 78.0
		if adx >= ta.strongADX {
			confidence += 4
		}
		return vote(ta.ID(), dir, confidence, fmt.Sprintf("%s trend intact on a pullback, ADX %.0f", stackWord(dir), adx), evidence)

	default:
		return vote(ta.ID(), signal.DirectionHold, 60, "short EMAs counter to the long trend", evidence)
	}
}

// aligned reports whether a faster average sits on the trend side of a slower one
func aligned(faster, slower float64, dir signal.Direction) bool {
	if dir == signal.DirectionBuy {
		return faster > slower
	}
	return faster < slower
}

func stackWord(dir signal.Direction) string {
	if dir == signal.DirectionBuy {
		return "bullish"
	}
	return "bearish"
}

// TrendOf summarizes a (usually higher-timeframe) bundle as BUY, SELL or HOLD.
// EMA 21/50 alignment with price on the same side decides; when those are not
// available yet the swing structure is used instead.
func TrendOf(frame *market.Frame, ind *indicators.Bundle, pat *patterns.Bundle) signal.Direction {
	if frame == nil || frame.Len() == 0 {
		return signal.DirectionHold
	}
	price := frame.Last().Close

	if ind != nil {
		e21 := indicators.Last(ind.EMA21)
		e50 := indicators.Last(ind.EMA50)
		if !indicators.AnyNaN(e21, e50) {
			switch {
			case e21 > e50 && price > e50:
				return signal.DirectionBuy
			case e21 < e50 && price < e50:
				return signal.DirectionSell
			default:
				return signal.DirectionHold
			}
		}
	}

	structure := AnalyzeStructure(pat)
	switch structure.Trend {
	case TrendBullish:
		return signal.DirectionBuy
	case TrendBearish:
		return signal.DirectionSell
	default:
		return signal.DirectionHold
	}
}
