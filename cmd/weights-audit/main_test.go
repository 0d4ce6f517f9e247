package main

import (
	"testing"
	"time"

	"signal-engine/internal/signal"
	"signal-engine/internal/weights"
)

func auditJournal() []signal.Outcome {
	votes := []signal.VoteSnapshot{
		{Analyzer: signal.AnalyzerTrend, Direction: signal.DirectionBuy},
		{Analyzer: signal.AnalyzerMomentum, Direction: signal.DirectionSell},
		{Analyzer: signal.AnalyzerPattern, Direction: signal.DirectionHold},
	}
	closed := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
	return []signal.Outcome{
		{ProposalID: "p1", Direction: signal.DirectionBuy, Result: signal.ResultWin, ClosedAt: closed, Votes: votes},
		{ProposalID: "p2", Direction: signal.DirectionBuy, Result: signal.ResultLoss, ClosedAt: closed.Add(time.Hour), Votes: votes},
		{ProposalID: "p1", Direction: signal.DirectionBuy, Result: signal.ResultLoss, ClosedAt: closed.Add(2 * time.Hour), Votes: votes},
	}
}

func TestAuditTallies(t *testing.T) {
	cfg := weights.DefaultConfig()
	r := Audit(auditJournal(), nil, cfg, 1e-9)

	if r.Outcomes != 2 || r.Duplicates != 1 {
		t.Fatalf("Outcomes = %d, Duplicates = %d, want 2 and 1", r.Outcomes, r.Duplicates)
	}
	if r.Wins != 1 || r.Losses != 1 || r.Breakevens != 0 {
		t.Errorf("results = %d/%d/%d, want 1/1/0", r.Wins, r.Losses, r.Breakevens)
	}
	if !r.Deterministic || r.HasStored || !r.Matches {
		t.Errorf("unexpected flags %+v", r)
	}
	if r.Warm {
		t.Error("two outcomes must not warm the estimator")
	}

	want := map[signal.AnalyzerID][2]int{
		signal.AnalyzerTrend:    {2, 1},
		signal.AnalyzerMomentum: {2, 1},
		signal.AnalyzerPattern:  {0, 0},
	}
	for _, a := range r.Analyzers {
		w, ok := want[a.Analyzer]
		if !ok {
			continue
		}
		if a.Samples != w[0] || a.Correct != w[1] {
			t.Errorf("%s: samples %d correct %d, want %d %d", a.Analyzer, a.Samples, a.Correct, w[0], w[1])
		}
		if a.Weight != cfg.WRef {
			t.Errorf("%s: cold weight = %v, want %v", a.Analyzer, a.Weight, cfg.WRef)
		}
	}
}

func TestAuditComparesStored(t *testing.T) {
	cfg := weights.DefaultConfig()
	journal := auditJournal()

	tests := []struct {
		name    string
		mutate  func(doc *weights.Document)
		matches bool
	}{
		{"replayed document", func(doc *weights.Document) {}, true},
		{"drifted weight", func(doc *weights.Document) {
			doc.Vector[signal.LayerL1][signal.AnalyzerTrend] = 1.7
		}, false},
		{"missing outcome", func(doc *weights.Document) { doc.Outcomes-- }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := weights.Replay(journal, cfg).Document()
			tt.mutate(doc)
			r := Audit(journal, doc, cfg, 1e-9)
			if !r.HasStored {
				t.Fatal("expected the stored document to be compared")
			}
			if r.Matches != tt.matches {
				t.Errorf("Matches = %v, want %v", r.Matches, tt.matches)
			}
		})
	}
}
