package analysis

import (
	"fmt"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

// VolatilityAnalyzer votes on Bollinger band position and ATR expansion
type VolatilityAnalyzer struct {
	wickRatio     float64 // rejection wick vs body for a mean-reversion touch
	slopeBars     int     // middle band slope lookback
	atrLookback   int
	atrExpansion  float64
	rsiExtremeLow float64
}

// NewVolatilityAnalyzer creates a volatility analyzer
func NewVolatilityAnalyzer() *VolatilityAnalyzer {
	return &VolatilityAnalyzer{
		wickRatio:     2,
		slopeBars:     5,
		atrLookback:   20,
		atrExpansion:  1.2,
		rsiExtremeLow: 25,
	}
}

// ID implements Analyzer
func (va *VolatilityAnalyzer) ID() signal.AnalyzerID { return signal.AnalyzerVolatility }

// Analyze implements Analyzer
func (va *VolatilityAnalyzer) Analyze(frame *market.Frame, ind *indicators.Bundle, pat *patterns.Bundle) signal.Vote {
	if ind == nil || lastIndex(frame) < 0 {
		return signal.InsufficientHistory(va.ID())
	}
	c := frame.Last()

	upperX := indicators.Last(ind.BBExtreme.Upper)
	lowerX := indicators.Last(ind.BBExtreme.Lower)
	percentB := indicators.Last(ind.BB.PercentB)
	middle := indicators.Last(ind.BB.Middle)
	middlePrev := indicators.Back(ind.BB.Middle, va.slopeBars)
	atr := indicators.Last(ind.ATR)
	atrPrev := indicators.Back(ind.ATR, va.atrLookback)
	rsi := indicators.Last(ind.RSI)
	if indicators.AnyNaN(upperX, lowerX, percentB, middle, middlePrev, atr) {
		return signal.InsufficientHistory(va.ID())
	}

	evidence := map[string]interface{}{
		"percent_b": percentB, "upper_extreme": upperX, "lower_extreme": lowerX, "atr": atr,
	}

	// Mean reversion: extreme band touched and rejected
	body := c.Body()
	if c.Low <= lowerX && c.LowerWick() >= va.wickRatio*body && c.LowerWick() > 0 {
		confidence := 80.0
		if !indicators.AnyNaN(rsi) && rsi < va.rsiExtremeLow {
			confidence += 5
		}
		return vote(va.ID(), signal.DirectionBuy, confidence, "lower 2.5σ band rejected with a long lower wick", evidence)
	}
	if c.High >= upperX && c.UpperWick() >= va.wickRatio*body && c.UpperWick() > 0 {
		confidence := 80.0
		if !indicators.AnyNaN(rsi) && rsi > 100-va.rsiExtremeLow {
			confidence += 5
		}
		return vote(va.ID(), signal.DirectionSell, confidence, "upper 2.5σ band rejected with a long upper wick", evidence)
	}

	// Band ride: price in the trend half of the bands with the middle band sloping
	expanding := !indicators.AnyNaN(atrPrev) && atrPrev > 0 && atr >= va.atrExpansion*atrPrev
	evidence["atr_expanding"] = expanding

	var dir signal.Direction
	switch {
	case percentB >= 0.5 && percentB <= 1.0 && middle > middlePrev:
		dir = signal.DirectionBuy
	case percentB >= 0 && percentB <= 0.5 && middle < middlePrev:
		dir = signal.DirectionSell
	default:
		return vote(va.ID(), signal.DirectionHold, 50, fmt.Sprintf("%%B %.2f without a band ride", percentB), evidence)
	}

	half := "upper"
	if dir == signal.DirectionSell {
		half = "lower"
	}
	confidence := 76.0
	reason := fmt.Sprintf("riding the %s half of the bands (%%B %.2f)", half, percentB)
	if expanding {
		confidence += 4
		reason += " with ATR expanding"
	}
	return vote(va.ID(), dir, confidence, reason, evidence)
}
