package validators

import (
	"math"
	"strings"
	"testing"

	"signal-engine/internal/signal"
)

func buyDecision() signal.Decision {
	return signal.Decision{Direction: signal.DirectionBuy, RawConfidence: 81.2, AgreeingCount: 5}
}

func TestRiskValidator(t *testing.T) {
	rv := NewRiskValidator(DefaultConfig())
	ctx := &signal.MarketContext{Symbol: "EURUSD"}

	tests := []struct {
		name      string
		portfolio *signal.Portfolio
		want      signal.MetaVerdict
		reason    string
	}{
		{"nil portfolio approves", nil, signal.VerdictApprove, ""},
		{"within cap", &signal.Portfolio{AccountBalance: 10000, Exposures: map[string]float64{"GBPUSD": 200}}, signal.VerdictApprove, ""},
		{"attenuation band", &signal.Portfolio{AccountBalance: 10000, Exposures: map[string]float64{"GBPUSD": 300, "AUDUSD": 150}}, signal.VerdictAttenuate, "of cap"},
		{"over cap", &signal.Portfolio{AccountBalance: 10000, Exposures: map[string]float64{"GBPUSD": 400, "USDCHF": 200}}, signal.VerdictReject, "exceeds cap"},
		{"uncorrelated exposure ignored", &signal.Portfolio{AccountBalance: 10000, Exposures: map[string]float64{"BTCUSDT": 900}}, signal.VerdictApprove, ""},
		{"total exposure without breakdown", &signal.Portfolio{AccountBalance: 10000, TotalExposure: 480}, signal.VerdictAttenuate, ""},
		{"drawdown", &signal.Portfolio{AccountBalance: 10000, CurrentDrawdown: 0.031}, signal.VerdictReject, "drawdown"},
		{"daily loss", &signal.Portfolio{AccountBalance: 10000, DailyPnL: -350}, signal.VerdictReject, "drawdown"},
		{"max positions", &signal.Portfolio{AccountBalance: 10000, OpenPositions: 5}, signal.VerdictReject, "max positions"},
		{"open symbols count", &signal.Portfolio{AccountBalance: 10000, OpenSymbols: []string{"A", "B", "C", "D", "E"}}, signal.VerdictReject, "max positions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rv.Validate(buyDecision(), tt.portfolio, ctx)
			if r.Verdict != tt.want {
				t.Errorf("verdict = %s, want %s (%s)", r.Verdict, tt.want, r.Reason)
			}
			if tt.reason != "" && !strings.Contains(r.Reason, tt.reason) {
				t.Errorf("reason %q should mention %q", r.Reason, tt.reason)
			}
			if r.Confidence < 0 || r.Confidence > 100 {
				t.Errorf("confidence %.1f out of range", r.Confidence)
			}
		})
	}
}

func TestTimingValidator(t *testing.T) {
	tv := NewTimingValidator()

	tests := []struct {
		guard signal.GuardStatus
		want  signal.MetaVerdict
	}{
		{signal.GuardStatus{Level: signal.GuardOK}, signal.VerdictApprove},
		{signal.GuardStatus{Level: signal.GuardCaution, Reason: "London open"}, signal.VerdictAttenuate},
		{signal.GuardStatus{Level: signal.GuardBlackout, Reason: "news blackout: NFP"}, signal.VerdictReject},
	}
	for _, tt := range tests {
		r := tv.Validate(buyDecision(), nil, &signal.MarketContext{Guard: tt.guard})
		if r.Verdict != tt.want {
			t.Errorf("%s: verdict = %s, want %s", tt.guard.Level, r.Verdict, tt.want)
		}
		if tt.guard.Reason != "" && r.Reason != tt.guard.Reason {
			t.Errorf("reason = %q, want guard reason %q", r.Reason, tt.guard.Reason)
		}
	}
}

func TestContextValidator(t *testing.T) {
	cv := NewContextValidator(DefaultConfig())

	tests := []struct {
		name string
		ctx  *signal.MarketContext
		want signal.MetaVerdict
	}{
		{"aligned", &signal.MarketContext{Price: 100, HigherTrend: signal.DirectionBuy, HigherTimeframe: "4h"}, signal.VerdictApprove},
		{"opposing trend", &signal.MarketContext{Price: 100, HigherTrend: signal.DirectionSell, HigherTimeframe: "4h"}, signal.VerdictReject},
		{"neutral trend", &signal.MarketContext{Price: 100, HigherTrend: signal.DirectionHold}, signal.VerdictApprove},
		{"resistance overhead", &signal.MarketContext{Price: 100, Levels: []signal.Level{{Price: 100.2, Kind: "resistance"}}}, signal.VerdictAttenuate},
		{"resistance far away", &signal.MarketContext{Price: 100, Levels: []signal.Level{{Price: 101, Kind: "resistance"}}}, signal.VerdictApprove},
		{"support below a buy", &signal.MarketContext{Price: 100, Levels: []signal.Level{{Price: 99.9, Kind: "support"}}}, signal.VerdictApprove},
		{"strong opposing sentiment", &signal.MarketContext{Price: 100, Sentiment: &signal.SentimentReading{Sentiment: "neg", Score: -0.7, Confidence: 0.8}}, signal.VerdictAttenuate},
		{"weak opposing sentiment", &signal.MarketContext{Price: 100, Sentiment: &signal.SentimentReading{Sentiment: "neg", Score: -0.3, Confidence: 0.9}}, signal.VerdictApprove},
		{"supportive sentiment", &signal.MarketContext{Price: 100, Sentiment: &signal.SentimentReading{Sentiment: "pos", Score: 0.9, Confidence: 0.9}}, signal.VerdictApprove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cv.Validate(buyDecision(), nil, tt.ctx)
			if r.Verdict != tt.want {
				t.Errorf("verdict = %s, want %s (%s)", r.Verdict, tt.want, r.Reason)
			}
		})
	}
}

func TestChainShortCircuits(t *testing.T) {
	chain := DefaultChain(DefaultConfig())
	ctx := &signal.MarketContext{
		Symbol:      "EURUSD",
		Price:       1.1,
		Guard:       signal.GuardStatus{Level: signal.GuardBlackout, Reason: "news blackout: NFP"},
		HigherTrend: signal.DirectionSell,
	}

	results, rejected := chain.Run(buyDecision(), nil, ctx)
	if !rejected {
		t.Fatal("blackout should reject")
	}
	if len(results) != 2 {
		t.Fatalf("chain should stop at timing, got %d results", len(results))
	}
	if results[1].Validator != "timing" || results[1].Reason != "news blackout: NFP" {
		t.Errorf("unexpected rejection %+v", results[1])
	}
}

func TestFinalConfidence(t *testing.T) {
	results := []signal.ValidatorResult{
		{Verdict: signal.VerdictApprove},
		{Verdict: signal.VerdictAttenuate},
		{Verdict: signal.VerdictAttenuate},
	}
	if got := FinalConfidence(90, results); math.Abs(got-57.6) > 1e-9 {
		t.Errorf("FinalConfidence = %f, want 57.6", got)
	}
	if got := FinalConfidence(90, append(results, signal.ValidatorResult{Verdict: signal.VerdictReject})); got != 0 {
		t.Errorf("REJECT should zero the confidence, got %f", got)
	}
}

func TestCorrelation(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"EURUSD", "GBPUSD", true},
		{"EUR/USD", "eurusd", true},
		{"EURJPY", "GBPJPY", true},
		{"XAUUSD", "XAGUSD", true},
		{"BTCUSDT", "DOGEUSDT", true},
		{"EURUSD", "BTCUSDT", false},
		{"XAUUSD", "EURGBP", false},
	}
	for _, tt := range tests {
		if got := Correlated(tt.a, tt.b); got != tt.want {
			t.Errorf("Correlated(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
