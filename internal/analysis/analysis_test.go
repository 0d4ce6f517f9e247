package analysis

import (
	"math"
	"testing"
	"time"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

var fixtureEnd = time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

func bundles(f *market.Frame) (*indicators.Bundle, *patterns.Bundle) {
	ind := indicators.Compute(f)
	return ind, patterns.Detect(f, ind)
}

func votesFor(f *market.Frame) map[signal.AnalyzerID]signal.Vote {
	ind, pat := bundles(f)
	out := make(map[signal.AnalyzerID]signal.Vote)
	for _, a := range DefaultSet() {
		out[a.ID()] = a.Analyze(f, ind, pat)
	}
	return out
}

func TestTrendingFrameVotes(t *testing.T) {
	votes := votesFor(market.SyntheticTrend("XAUUSD", market.TF1h, 400, fixtureEnd))

	tests := []struct {
		id         signal.AnalyzerID
		direction  signal.Direction
		confidence float64
	}{
		{signal.AnalyzerTrend, signal.DirectionBuy, 95},
		{signal.AnalyzerMomentum, signal.DirectionBuy, 82},
		{signal.AnalyzerVolatility, signal.DirectionBuy, 76},
		{signal.AnalyzerPattern, signal.DirectionBuy, 75},
		{signal.AnalyzerVolume, signal.DirectionBuy, 78},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			v := votes[tt.id]
			if v.Direction != tt.direction {
				t.Errorf("direction = %s, want %s (reason %q)", v.Direction, tt.direction, v.Reason)
			}
			if v.Confidence != tt.confidence {
				t.Errorf("confidence = %.2f, want %.2f", v.Confidence, tt.confidence)
			}
			if v.Analyzer != tt.id {
				t.Errorf("analyzer = %s, want %s", v.Analyzer, tt.id)
			}
		})
	}
}

func TestCapitulationFrameVotes(t *testing.T) {
	votes := votesFor(market.SyntheticCapitulation("XAUUSD", market.TF1h, 300, fixtureEnd))

	tests := []struct {
		id         signal.AnalyzerID
		direction  signal.Direction
		confidence float64
	}{
		{signal.AnalyzerTrend, signal.DirectionHold, 60},
		{signal.AnalyzerMomentum, signal.DirectionBuy, 78},
		{signal.AnalyzerVolatility, signal.DirectionBuy, 85},
		{signal.AnalyzerPattern, signal.DirectionHold, 65},
		{signal.AnalyzerVolume, signal.DirectionHold, 50},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			v := votes[tt.id]
			if v.Direction != tt.direction || v.Confidence != tt.confidence {
				t.Errorf("got %s@%.2f, want %s@%.2f (reason %q)", v.Direction, v.Confidence, tt.direction, tt.confidence, v.Reason)
			}
		})
	}

	if got := votes[signal.AnalyzerPattern].Evidence["pattern"]; got != string(patterns.Hammer) {
		t.Errorf("dominant pattern = %v, want hammer", got)
	}
}

func TestShortFrameInsufficientHistory(t *testing.T) {
	f := market.SyntheticTrend("EURUSD", market.TF1h, 30, fixtureEnd)
	votes := votesFor(f)

	for _, id := range []signal.AnalyzerID{signal.AnalyzerTrend, signal.AnalyzerMomentum} {
		v := votes[id]
		if v.Direction != signal.DirectionHold || v.Confidence != 0 || v.Reason != signal.ReasonInsufficientHistory {
			t.Errorf("%s: got %s@%.0f %q, want HOLD@0 insufficient_history", id, v.Direction, v.Confidence, v.Reason)
		}
	}
}

func TestNilBundlesNeverPanic(t *testing.T) {
	f := market.SyntheticTrend("EURUSD", market.TF1h, 10, fixtureEnd)
	for _, a := range DefaultSet() {
		v := a.Analyze(f, nil, nil)
		if v.Direction != signal.DirectionHold || v.Confidence != 0 {
			t.Errorf("%s with nil bundles: got %s@%.0f", a.ID(), v.Direction, v.Confidence)
		}
	}
}

func TestApplyRubric(t *testing.T) {
	tests := []struct {
		name      string
		in        signal.Vote
		wantDir   signal.Direction
		wantConf  float64
		wantNoHis bool
	}{
		{"caps at 95", signal.Vote{Direction: signal.DirectionBuy, Confidence: 98}, signal.DirectionBuy, 95, false},
		{"below threshold holds", signal.Vote{Direction: signal.DirectionSell, Confidence: 74.9}, signal.DirectionHold, 74.9, false},
		{"threshold votes", signal.Vote{Direction: signal.DirectionSell, Confidence: 75}, signal.DirectionSell, 75, false},
		{"NaN is insufficient history", signal.Vote{Direction: signal.DirectionBuy, Confidence: math.NaN()}, signal.DirectionHold, 0, true},
		{"empty direction holds", signal.Vote{Confidence: 80}, signal.DirectionHold, 80, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyRubric(tt.in)
			if got.Direction != tt.wantDir || got.Confidence != tt.wantConf {
				t.Errorf("got %s@%.1f, want %s@%.1f", got.Direction, got.Confidence, tt.wantDir, tt.wantConf)
			}
			if tt.wantNoHis && got.Reason != signal.ReasonInsufficientHistory {
				t.Errorf("reason = %q, want insufficient_history", got.Reason)
			}
		})
	}
}

func TestVolumeClimax(t *testing.T) {
	f := market.SyntheticTrend("BTCUSDT", market.TF1h, 60, fixtureEnd)
	last := &f.Candles[len(f.Candles)-1]
	// bearish bar with a long lower wick on 4x volume
	last.Close = last.Open - 0.2
	last.Low = last.Close - 2
	last.High = last.Open + 0.05
	last.Volume = 4000

	ind, pat := bundles(f)
	v := NewVolumeAnalyzer(20).Analyze(f, ind, pat)
	if v.Direction != signal.DirectionBuy || v.Confidence != 85 {
		t.Errorf("climax: got %s@%.0f (%s), want BUY@85", v.Direction, v.Confidence, v.Reason)
	}
}

func TestMomentumDivergence(t *testing.T) {
	ma := NewMomentumAnalyzer()
	rsi := make([]float64, 40)
	for i := range rsi {
		rsi[i] = 40
	}
	rsi[10] = 22
	rsi[30] = 26

	pat := &patterns.Bundle{Len: 40, PivotLows: []patterns.Pivot{
		{Index: 10, Price: 100},
		{Index: 30, Price: 98},
	}}
	if !ma.divergence(rsi, pat, signal.DirectionBuy) {
		t.Error("lower price low with higher RSI low should be bullish divergence")
	}

	rsi[30] = 23
	if ma.divergence(rsi, pat, signal.DirectionBuy) {
		t.Error("RSI difference below 2 points should not count")
	}
}

func TestMACDTurning(t *testing.T) {
	ma := NewMomentumAnalyzer()
	hist := []float64{-0.3, -0.2, -0.1, 0.05, 0.1}
	if !ma.macdTurning(hist, signal.DirectionBuy) {
		t.Error("histogram crossing up within 3 bars should be turning")
	}
	late := []float64{-0.3, 0.05, 0.1, 0.2, 0.3}
	if ma.macdTurning(late, signal.DirectionBuy) {
		t.Error("cross older than 3 bars should not count")
	}
}

func TestLevelsClustering(t *testing.T) {
	pat := &patterns.Bundle{
		PivotLows:  []patterns.Pivot{{Index: 5, Price: 100}, {Index: 25, Price: 100.3}},
		PivotHighs: []patterns.Pivot{{Index: 15, Price: 110, IsHigh: true}},
	}
	levels := Levels(pat, 105)
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d: %+v", len(levels), levels)
	}
	if levels[0].Kind != "support" || levels[0].Touches != 2 {
		t.Errorf("strongest level should be the double-touched support, got %+v", levels[0])
	}
	if math.Abs(levels[0].Price-100.15) > 1e-9 {
		t.Errorf("cluster price = %f, want 100.15", levels[0].Price)
	}
	if levels[1].Kind != "resistance" {
		t.Errorf("level above price should be resistance, got %+v", levels[1])
	}
}

func TestAnalyzeStructure(t *testing.T) {
	pat := &patterns.Bundle{
		PivotHighs: []patterns.Pivot{{Price: 10}, {Price: 11}, {Price: 12}},
		PivotLows:  []patterns.Pivot{{Price: 8}, {Price: 9}},
	}
	s := AnalyzeStructure(pat)
	if s.Trend != TrendBullish || s.TrendStrength != 1 {
		t.Errorf("got %+v, want bullish with full strength", s)
	}
	if AnalyzeStructure(nil).Trend != TrendSideways {
		t.Error("nil bundle should be sideways")
	}
}

func TestTrendOf(t *testing.T) {
	up := market.SyntheticTrend("XAUUSD", market.TF4h, 100, fixtureEnd)
	ind, pat := bundles(up)
	if got := TrendOf(up, ind, pat); got != signal.DirectionBuy {
		t.Errorf("uptrend = %s, want BUY", got)
	}
	if got := TrendOf(nil, nil, nil); got != signal.DirectionHold {
		t.Errorf("nil frame = %s, want HOLD", got)
	}
}

func BenchmarkDefaultSet(b *testing.B) {
	f := market.SyntheticTrend("XAUUSD", market.TF1h, 400, fixtureEnd)
	ind, pat := bundles(f)
	set := DefaultSet()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, a := range set {
			a.Analyze(f, ind, pat)
		}
	}
}
