package analysis

import (
	"fmt"
	"math"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

// MomentumAnalyzer votes on RSI extremes, MACD position and RSI divergence
type MomentumAnalyzer struct {
	oversold      float64
	overbought    float64
	turnBars      int     // MACD cross must be this recent to count as turning
	minDivergence float64 // RSI points
}

// NewMomentumAnalyzer creates a momentum analyzer with RSI 30/70 bounds
func NewMomentumAnalyzer() *MomentumAnalyzer {
	return &MomentumAnalyzer{oversold: 30, overbought: 70, turnBars: 3, minDivergence: 2}
}

// ID implements Analyzer
func (ma *MomentumAnalyzer) ID() signal.AnalyzerID { return signal.AnalyzerMomentum }

// Analyze implements Analyzer
func (ma *MomentumAnalyzer) Analyze(frame *market.Frame, ind *indicators.Bundle, pat *patterns.Bundle) signal.Vote {
	if ind == nil {
		return signal.InsufficientHistory(ma.ID())
	}
	rsi := indicators.Last(ind.RSI)
	line := indicators.Last(ind.MACD.Line)
	sig := indicators.Last(ind.MACD.Signal)
	if indicators.AnyNaN(rsi, line, sig) {
		return signal.InsufficientHistory(ma.ID())
	}

	evidence := map[string]interface{}{"rsi": rsi, "macd": line, "macd_signal": sig}

	switch {
	case rsi < ma.oversold:
		return ma.reversal(signal.DirectionBuy, rsi, ind, pat, evidence)
	case rsi > ma.overbought:
		return ma.reversal(signal.DirectionSell, rsi, ind, pat, evidence)
	case rsi >= 50 && rsi <= ma.overbought && line > sig && sig > 0:
		return vote(ma.ID(), signal.DirectionBuy, 82, fmt.Sprintf("RSI %.0f with MACD above a positive signal line", rsi), evidence)
	case rsi >= ma.oversold && rsi <= 50 && line < sig && sig < 0:
		return vote(ma.ID(), signal.DirectionSell, 82, fmt.Sprintf("RSI %.0f with MACD below a negative signal line", rsi), evidence)
	default:
		return vote(ma.ID(), signal.DirectionHold, 50, fmt.Sprintf("RSI %.0f without momentum confirmation", rsi), evidence)
	}
}

func (ma *MomentumAnalyzer) reversal(dir signal.Direction, rsi float64, ind *indicators.Bundle, pat *patterns.Bundle, evidence map[string]interface{}) signal.Vote {
	confidence := 78.0
	state := "oversold"
	if dir == signal.DirectionSell {
		state = "overbought"
	}
	reason := fmt.Sprintf("RSI %s at %.0f", state, rsi)

	if ma.macdTurning(ind.MACD.Histogram, dir) {
		confidence += 5
		evidence["macd_turning"] = true
		reason += ", MACD turning"
	}
	if ma.divergence(ind.RSI, pat, dir) {
		confidence += 10
		evidence["divergence"] = true
		reason += ", RSI divergence"
	}
	return vote(ma.ID(), dir, confidence, reason, evidence)
}

// macdTurning reports a histogram sign change toward dir within the last turnBars bars
func (ma *MomentumAnalyzer) macdTurning(hist []float64, dir signal.Direction) bool {
	n := len(hist)
	for k := 0; k < ma.turnBars && n-1-k >= 1; k++ {
		cur, prev := hist[n-1-k], hist[n-2-k]
		if math.IsNaN(cur) || math.IsNaN(prev) {
			return false
		}
		if dir == signal.DirectionBuy && prev <= 0 && cur > 0 {
			return true
		}
		if dir == signal.DirectionSell && prev >= 0 && cur < 0 {
			return true
		}
	}
	return false
}

// divergence compares the last two swing pivots on the reversal side: a
// lower price low with a higher RSI low is bullish, a higher price high with
// a lower RSI high is bearish
func (ma *MomentumAnalyzer) divergence(rsi []float64, pat *patterns.Bundle, dir signal.Direction) bool {
	if pat == nil {
		return false
	}
	pivots := pat.PivotLows
	if dir == signal.DirectionSell {
		pivots = pat.PivotHighs
	}
	if len(pivots) < 2 {
		return false
	}
	p1, p2 := pivots[len(pivots)-2], pivots[len(pivots)-1]
	if p1.Index >= len(rsi) || p2.Index >= len(rsi) {
		return false
	}
	r1, r2 := rsi[p1.Index], rsi[p2.Index]
	if indicators.AnyNaN(r1, r2) {
		return false
	}

	if dir == signal.DirectionBuy {
		return p2.Price < p1.Price && r2-r1 >= ma.minDivergence
	}
	return p2.Price > p1.Price && r1-r2 >= ma.minDivergence
}
