// Package confluence aggregates the Layer-1 analyzer votes into a single
// weighted decision and applies the Layer-1 gates.
package confluence

import (
	"fmt"
	"math"

	"signal-engine/internal/signal"
)

// DefaultMargin is the minimum lead of the winning score over the runner-up,
// as a fraction of the total directional score
const DefaultMargin = 0.15

// Scorer calculates the weighted decision over analyzer votes
type Scorer struct {
	margin float64
}

// NewScorer creates a new scorer with the default margin
func NewScorer() *Scorer {
	return &Scorer{margin: DefaultMargin}
}

// SetMargin adjusts the minimum winning margin
func (cs *Scorer) SetMargin(margin float64) error {
	if margin < 0 || margin >= 1 {
		return fmt.Errorf("margin must be in [0, 1), got %.2f", margin)
	}
	cs.margin = margin
	return nil
}

// Margin returns the configured winning margin
func (cs *Scorer) Margin() float64 {
	return cs.margin
}

// Aggregate scores each direction as the sum of confidence x weight over the
// BUY and SELL votes. The higher score wins when its lead over the runner-up is
// at least the margin of the total; otherwise the decision is HOLD.
func (cs *Scorer) Aggregate(votes []signal.Vote, weights map[signal.AnalyzerID]float64) signal.Decision {
	decision := signal.Decision{
		Direction: signal.DirectionHold,
		Scores:    map[signal.Direction]float64{signal.DirectionBuy: 0, signal.DirectionSell: 0},
		Votes:     votes,
		Weights:   make(map[signal.AnalyzerID]float64, len(votes)),
	}

	for _, v := range votes {
		w := weightOf(weights, v.Analyzer)
		decision.Weights[v.Analyzer] = w
		if v.Direction.IsTrade() {
			decision.Scores[v.Direction] += v.Confidence * w
		}
	}

	buy := decision.Scores[signal.DirectionBuy]
	sell := decision.Scores[signal.DirectionSell]
	total := buy + sell
	if total <= 0 {
		return decision
	}

	winner, win, runnerUp := signal.DirectionBuy, buy, sell
	if sell > buy {
		winner, win, runnerUp = signal.DirectionSell, sell, buy
	}
	decision.WeightedScore = win
	decision.Margin = (win - runnerUp) / total
	if decision.Margin < cs.margin {
		return decision
	}

	winWeight := 0.0
	for _, v := range votes {
		if v.Direction == winner {
			decision.AgreeingCount++
			winWeight += weightOf(weights, v.Analyzer)
		}
	}

	decision.Direction = winner
	if winWeight > 0 {
		decision.RawConfidence = math.Min(win/winWeight, signal.MaxConfidence)
	}
	return decision
}

// weightOf returns the analyzer weight, 1.0 when the vector has no entry
func weightOf(weights map[signal.AnalyzerID]float64, id signal.AnalyzerID) float64 {
	if w, ok := weights[id]; ok && w > 0 {
		return w
	}
	return 1.0
}

// Grade converts a 0-100 confidence to a letter grade
func Grade(confidence float64) string {
	if confidence >= 90 {
		return "A+"
	} else if confidence >= 85 {
		return "A"
	} else if confidence >= 75 {
		return "B+"
	} else if confidence >= 70 {
		return "B"
	} else if confidence >= 60 {
		return "C"
	} else if confidence >= 50 {
		return "D"
	}
	return "F"
}

// ConfidenceLabel converts a 0-100 confidence to a confidence level
func ConfidenceLabel(confidence float64) string {
	if confidence >= 85 {
		return "very high"
	} else if confidence >= 75 {
		return "high"
	} else if confidence >= 60 {
		return "medium"
	} else if confidence >= 45 {
		return "low"
	}
	return "very low"
}
