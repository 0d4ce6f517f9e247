// Package analysis holds the five Layer-1 analyzers and the market structure
// helpers (swing structure, support and resistance) used by the validators.
package analysis

import (
	"math"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

// ActionThreshold is the lowest confidence at which an analyzer may vote BUY
// or SELL. Anything below is reported as HOLD with the confidence kept.
const ActionThreshold = 75.0

// Analyzer is a pure function of the frame and its precomputed bundles
type Analyzer interface {
	ID() signal.AnalyzerID
	Analyze(frame *market.Frame, ind *indicators.Bundle, pat *patterns.Bundle) signal.Vote
}

// DefaultSet returns the five analyzers in canonical order
func DefaultSet() []Analyzer {
	return []Analyzer{
		NewTrendAnalyzer(),
		NewMomentumAnalyzer(),
		NewVolatilityAnalyzer(),
		NewPatternAnalyzer(5),
		NewVolumeAnalyzer(indicators.VolumePeriod),
	}
}

// applyRubric enforces the shared confidence rubric: the 95 ceiling and the
// HOLD downgrade below ActionThreshold
func applyRubric(v signal.Vote) signal.Vote {
	if math.IsNaN(v.Confidence) || v.Confidence < 0 {
		return signal.InsufficientHistory(v.Analyzer)
	}
	if v.Confidence > signal.MaxConfidence {
		v.Confidence = signal.MaxConfidence
	}
	if v.Direction.IsTrade() && v.Confidence < ActionThreshold {
		v.Direction = signal.DirectionHold
	}
	if !v.Direction.IsTrade() {
		v.Direction = signal.DirectionHold
	}
	return v
}

func vote(id signal.AnalyzerID, dir signal.Direction, confidence float64, reason string, evidence map[string]interface{}) signal.Vote {
	return applyRubric(signal.Vote{
		Analyzer:   id,
		Direction:  dir,
		Confidence: confidence,
		Reason:     reason,
		Evidence:   evidence,
	})
}

// lastIndex returns the index of the most recent bar, or -1 for an empty frame
func lastIndex(frame *market.Frame) int {
	if frame == nil {
		return -1
	}
	return len(frame.Candles) - 1
}
