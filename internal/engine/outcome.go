package engine

import (
	"context"
	"errors"

	"signal-engine/internal/logging"
	"signal-engine/internal/signal"
	"signal-engine/internal/weights"
)

// RecordOutcome feeds a finalized outcome to the weight engine. An unknown
// proposal id returns an error wrapping weights.ErrOutcomeUnknown and leaves
// the weights untouched; a repeated outcome is a no-op reported with
// Applied=false.
func (e *Engine) RecordOutcome(ctx context.Context, req OutcomeRequest) (*OutcomeResponse, error) {
	d := e.current()
	if err := req.check(); err != nil {
		return nil, err
	}
	ctx, log := logging.WithTraceContext(ctx, e.logger)
	log = logging.WeightsContext(log, req.ProposalID)

	rec, ok := e.registry.get(req.ProposalID)
	if !ok {
		stored, err := e.weights.LoadProposal(ctx, req.ProposalID)
		if err != nil {
			if errors.Is(err, weights.ErrOutcomeUnknown) {
				log.Warn("Outcome for unknown proposal")
			} else {
				d.bus.PublishError("engine", "proposal lookup failed", err)
			}
			return nil, err
		}
		rec = *stored
	}

	votes := req.Votes
	if len(votes) == 0 {
		votes = rec.Votes
	}
	closedAt := d.now().UTC()
	if req.ClosedAt != nil {
		closedAt = req.ClosedAt.UTC()
	}

	snap, applied, err := e.weights.Record(ctx, signal.Outcome{
		ProposalID: rec.ID,
		Symbol:     rec.Symbol,
		Direction:  rec.Direction,
		Result:     req.Result,
		PnLPips:    req.PnLPips,
		ClosedAt:   closedAt,
		Votes:      votes,
	})
	if err != nil {
		d.bus.PublishError("weights", "failed to record outcome", err)
		return nil, err
	}

	if applied {
		e.trailer.Untrack(rec.ID)
		byName := weightsByName(snap)
		d.metrics.RecordOutcome(string(req.Result))
		d.metrics.SetWeights(byName)
		d.bus.PublishOutcome(rec.ID, string(req.Result), req.PnLPips)
		d.bus.PublishWeights(byName, snap.Outcomes)
	}

	return &OutcomeResponse{
		ProposalID:   rec.ID,
		Applied:      applied,
		Weights:      snap.Layer1(),
		Precision:    copyPrecision(snap),
		SampleCounts: copyCounts(snap),
		Outcomes:     snap.Outcomes,
		UpdatedAt:    snap.UpdatedAt,
	}, nil
}

func copyPrecision(s *weights.Snapshot) map[signal.AnalyzerID]float64 {
	out := make(map[signal.AnalyzerID]float64, len(s.Precision))
	for k, v := range s.Precision {
		out[k] = v
	}
	return out
}

func copyCounts(s *weights.Snapshot) map[signal.AnalyzerID]int {
	out := make(map[signal.AnalyzerID]int, len(s.SampleCounts))
	for k, v := range s.SampleCounts {
		out[k] = v
	}
	return out
}
