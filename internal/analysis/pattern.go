package analysis

import (
	"fmt"
	"strings"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

// PatternAnalyzer votes with the dominant recently completed pattern
type PatternAnalyzer struct {
	window int
}

// NewPatternAnalyzer creates a pattern analyzer looking back window bars
func NewPatternAnalyzer(window int) *PatternAnalyzer {
	if window <= 0 {
		window = 5
	}
	return &PatternAnalyzer{window: window}
}

// ID implements Analyzer
func (pa *PatternAnalyzer) ID() signal.AnalyzerID { return signal.AnalyzerPattern }

// Analyze implements Analyzer
func (pa *PatternAnalyzer) Analyze(frame *market.Frame, ind *indicators.Bundle, pat *patterns.Bundle) signal.Vote {
	if pat == nil || pat.Len == 0 {
		return signal.InsufficientHistory(pa.ID())
	}

	p, ok := pat.Dominant(pa.window)
	if !ok {
		return vote(pa.ID(), signal.DirectionHold, 50, fmt.Sprintf("no directional pattern in the last %d bars", pa.window), nil)
	}

	evidence := map[string]interface{}{
		"pattern":            string(p.Kind),
		"family":             string(p.Family),
		"strength":           p.Strength,
		"anchor_price":       p.AnchorPrice,
		"completed":          p.Completed,
		"supporting_indices": p.Indices,
	}
	return vote(pa.ID(), p.Direction, p.Strength, PatternName(p.Kind), evidence)
}

// PatternName renders a pattern kind for people ("bullish_engulfing" -> "bullish engulfing")
func PatternName(k patterns.Kind) string {
	return strings.ReplaceAll(string(k), "_", " ")
}
