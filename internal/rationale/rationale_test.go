package rationale

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"testing"

	"signal-engine/internal/patterns"
	"signal-engine/internal/risk"
	"signal-engine/internal/signal"
)

var sentenceEnd = regexp.MustCompile(`\.( |$)`)

func trendingInput() Input {
	votes := []signal.Vote{
		{Analyzer: signal.AnalyzerTrend, Direction: signal.DirectionBuy, Confidence: 95, Reason: "EMA 9/21/50/200 stacked bullish, ADX 45"},
		{Analyzer: signal.AnalyzerMomentum, Direction: signal.DirectionBuy, Confidence: 82, Reason: "RSI 62 with MACD above a positive signal line"},
		{Analyzer: signal.AnalyzerVolatility, Direction: signal.DirectionBuy, Confidence: 76, Reason: "riding the upper band"},
		{Analyzer: signal.AnalyzerPattern, Direction: signal.DirectionBuy, Confidence: 75, Reason: "bull flag"},
		{Analyzer: signal.AnalyzerVolume, Direction: signal.DirectionBuy, Confidence: 78, Reason: "1.3x volume with OBV confirming"},
	}
	return Input{
		Symbol:    "XAUUSD",
		Timeframe: "1h",
		Decision: signal.Decision{
			Direction:     signal.DirectionBuy,
			RawConfidence: 81.2,
			AgreeingCount: 5,
			WeightedScore: 406,
			Scores:        map[signal.Direction]float64{signal.DirectionBuy: 406},
			Margin:        1,
			Votes:         votes,
			Weights:       map[signal.AnalyzerID]float64{signal.AnalyzerTrend: 1.2},
		},
		Meta: []signal.ValidatorResult{
			{Validator: "risk", Verdict: signal.VerdictApprove, Confidence: 90, Reason: "exposure within limits"},
			{Validator: "timing", Verdict: signal.VerdictApprove, Confidence: 90, Reason: "no scheduled risk"},
			{Validator: "context", Verdict: signal.VerdictApprove, Confidence: 75, Reason: "no opposing context"},
		},
		FinalConfidence: 81.2,
		Plan: &risk.Plan{
			Symbol:       "XAUUSD",
			Class:        risk.ClassMetal,
			Direction:    signal.DirectionBuy,
			Entry:        196.26,
			StopLoss:     193.85,
			StopDistance: 2.41,
			StopPips:     24.1,
			MaxStopPips:  30,
			ATR:          1.2089,
			ATRDistance:  2.4178,
			ExpectedRR:   1.5,
			WinProb:      0.812,
			Kelly:        0.25,
			VolScalar:    1,
			SizeFraction: 0.25,
			Targets: []signal.Target{
				{Price: 199.88, RMultiple: 1.5, Allocation: 0.25},
				{Price: 203.49, RMultiple: 3, Allocation: 0.25},
				{Price: 208.31, RMultiple: 5, Allocation: 0.25},
				{Price: 215.54, RMultiple: 8, Allocation: 0.25},
			},
		},
		TickSize: 0.01,
	}
}

func TestUserRationale(t *testing.T) {
	g := NewGenerator()
	got := g.User(trendingInput())
	want := "XAUUSD buy on 1h at 196.26 with a stop at 193.85 (24.1 pips). " +
		"Technical confirmations: EMA 9/21/50/200 stacked bullish, ADX 45 (trend), " +
		"RSI 62 with MACD above a positive signal line (momentum), 1.3x volume with OBV confirming (volume). " +
		"Context: no opposing higher-timeframe, level or sentiment signal. " +
		"Risk/reward is 1:1.5 to the first target with 4 targets out to 8R; confidence is high at 81.2% (grade B+)."
	if got != want {
		t.Errorf("User() =\n%s\nwant\n%s", got, want)
	}
}

func TestUserRationaleWithPatternAndContext(t *testing.T) {
	in := trendingInput()
	in.Pattern = &patterns.Pattern{Kind: patterns.BullFlag, Family: patterns.FamilyChart, Direction: signal.DirectionBuy, Strength: 78}
	in.PatternAge = 2
	in.Context = &signal.MarketContext{
		Price:           196.26,
		HigherTimeframe: "4h",
		HigherTrend:     signal.DirectionBuy,
		Levels: []signal.Level{
			{Price: 201.5, Kind: "resistance"},
			{Price: 198.4, Kind: "resistance"},
			{Price: 190, Kind: "support"},
		},
		Sentiment: &signal.SentimentReading{Sentiment: "pos", Score: 0.42, Confidence: 0.7},
		Guard:     signal.GuardStatus{Level: signal.GuardCaution, Reason: "London open"},
	}
	in.Meta[2] = signal.ValidatorResult{Validator: "context", Verdict: signal.VerdictAttenuate, Reason: "resistance 198.40 within 0.30%"}

	got := NewGenerator().User(in)

	if n := len(sentenceEnd.FindAllString(got, -1)); n != 5 {
		t.Errorf("expected 5 sentences, got %d: %s", n, got)
	}
	for _, want := range []string{
		"A bullish bull flag completed 2 bars ago (strength 78).",
		"the 4h trend is bullish",
		"the nearest resistance is at 198.40",
		"sentiment reads positive (+0.42)",
		"timing is cautious (London open)",
		"context check attenuated: resistance 198.40 within 0.30%",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %s", want, got)
		}
	}
	if strings.Contains(got, "(pattern)") {
		t.Errorf("pattern analyzer should not repeat as a confirmation: %s", got)
	}

	pi := strings.Index(got, "A bullish")
	ci := strings.Index(got, "Technical confirmations")
	xi := strings.Index(got, "Context:")
	ri := strings.Index(got, "Risk/reward")
	if !(pi < ci && ci < xi && xi < ri) {
		t.Errorf("sentences out of order: %s", got)
	}
}

func TestUserRationaleMinimal(t *testing.T) {
	in := Input{
		Symbol:          "EURUSD",
		Timeframe:       "4h",
		Decision:        signal.Decision{Direction: signal.DirectionSell},
		FinalConfidence: 72,
	}
	got := NewGenerator().User(in)
	if n := len(sentenceEnd.FindAllString(got, -1)); n != 3 {
		t.Errorf("expected 3 sentences, got %d: %s", n, got)
	}
	if !strings.HasPrefix(got, "EURUSD sell on 4h.") {
		t.Errorf("unexpected opening: %s", got)
	}
}

func TestUserRationaleDeterministic(t *testing.T) {
	g := NewGenerator()
	in := trendingInput()
	first := g.User(in)
	for i := 0; i < 20; i++ {
		if got := g.User(in); got != first {
			t.Fatalf("run %d differs:\n%s\n%s", i, got, first)
		}
	}
}

func TestAdminRecord(t *testing.T) {
	in := trendingInput()
	in.Meta[1].Verdict = signal.VerdictAttenuate
	in.Meta[2].Verdict = signal.VerdictAttenuate
	in.FinalConfidence = 81.2 * 0.64

	rec := NewGenerator().Admin(in)

	if len(rec.Votes) != 5 {
		t.Fatalf("expected 5 votes, got %d", len(rec.Votes))
	}
	if rec.Votes[0].Weight != 1.2 || math.Abs(rec.Votes[0].Weighted-114) > 1e-9 {
		t.Errorf("trend vote weight %v weighted %v", rec.Votes[0].Weight, rec.Votes[0].Weighted)
	}
	if rec.Votes[1].Weight != 1 {
		t.Errorf("missing weight should default to 1, got %v", rec.Votes[1].Weight)
	}
	if math.Abs(rec.MetaFactor-0.64) > 1e-9 {
		t.Errorf("MetaFactor = %v, want 0.64", rec.MetaFactor)
	}
	if rec.Stop == nil || rec.Stop.StopPips != 24.1 || rec.Stop.AssetClass != "metal" {
		t.Errorf("unexpected stop math %+v", rec.Stop)
	}
	if rec.Sizing == nil || rec.Sizing.Kelly != 0.25 {
		t.Errorf("unexpected sizing %+v", rec.Sizing)
	}
	if rec.Grade != "D" {
		t.Errorf("Grade = %s, want D", rec.Grade)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"votes"`, `"meta_factor"`, `"stop"`, `"sizing"`, `"raw_confidence"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("admin JSON missing %s", key)
		}
	}
}

func TestDecimals(t *testing.T) {
	tests := []struct {
		tick float64
		want int
	}{
		{0.00001, 5},
		{0.001, 3},
		{0.01, 2},
		{0.1, 1},
		{1, 0},
		{0, 2},
	}
	for _, tt := range tests {
		if got := Decimals(tt.tick); got != tt.want {
			t.Errorf("Decimals(%v) = %d, want %d", tt.tick, got, tt.want)
		}
	}
}
