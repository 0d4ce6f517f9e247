package confluence

import (
	"fmt"

	"signal-engine/internal/signal"
)

// Failure is a Layer-1 gate failure
type Failure struct {
	Kind   signal.FailureKind
	Layer  string
	Reason string
}

// Gate applies the Layer-1 gates to a decision: a directional winner, at least
// minAgents analyzers agreeing and raw confidence of at least minConfidence.
// It returns nil when the decision passes.
func Gate(decision signal.Decision, minAgents int, minConfidence float64) *Failure {
	if !decision.Direction.IsTrade() {
		return holdFailure(decision, minAgents)
	}

	if decision.AgreeingCount < minAgents {
		return &Failure{
			Kind:   signal.KindInsufficientAgreement,
			Layer:  signal.LayerL1,
			Reason: fmt.Sprintf("insufficient agreement: %d of %d analyzers agree, need %d", decision.AgreeingCount, len(decision.Votes), minAgents),
		}
	}

	if decision.RawConfidence < minConfidence {
		return &Failure{
			Kind:   signal.KindLowConfidence,
			Layer:  signal.LayerL1,
			Reason: fmt.Sprintf("raw confidence %.1f below minimum %.1f", decision.RawConfidence, minConfidence),
		}
	}
	return nil
}

// holdFailure explains a HOLD decision. When too few analyzers had enough
// history to ever reach agreement, the failure is insufficient_history.
func holdFailure(decision signal.Decision, minAgents int) *Failure {
	missing := 0
	for _, v := range decision.Votes {
		if v.Reason == signal.ReasonInsufficientHistory {
			missing++
		}
	}
	if missing > 0 && len(decision.Votes)-missing < minAgents {
		return &Failure{
			Kind:   signal.KindInsufficientHistory,
			Layer:  signal.LayerL1,
			Reason: fmt.Sprintf("insufficient history: %d of %d analyzers lack data", missing, len(decision.Votes)),
		}
	}

	buy := decision.Scores[signal.DirectionBuy]
	sell := decision.Scores[signal.DirectionSell]
	reason := "no consensus: no directional votes"
	if buy+sell > 0 {
		reason = fmt.Sprintf("no consensus: BUY %.1f vs SELL %.1f (margin %.2f)", buy, sell, decision.Margin)
	}
	return &Failure{Kind: signal.KindNoConsensus, Layer: signal.LayerL1, Reason: reason}
}
