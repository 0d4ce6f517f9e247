package patterns

import (
	"math"
	"testing"
	"time"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/signal"
)

// trendFrame is a steady uptrend with alternating up and down bars.
// Up bars carry more volume than down bars.
func trendFrame(n int) *market.Frame {
	f := &market.Frame{Symbol: "XAUUSD", Timeframe: market.TF1h}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := 100.0
	for i := 0; i < n; i++ {
		z := -0.5
		vol := 900.0
		if i%2 == 1 {
			z = 0.5
			vol = 1100
		}
		if i == n-1 {
			vol = 1200
		}
		c := 100 + 0.24*float64(i) + z
		open := prev
		if i == 0 {
			open = c
		}
		f.Candles = append(f.Candles, market.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     open,
			High:     math.Max(open, c) + 0.1,
			Low:      math.Min(open, c) - 0.1,
			Close:    c,
			Volume:   vol,
		})
		prev = c
	}
	return f
}

// closesToCandles builds candles whose wicks extend 0.5 around each close
func closesToCandles(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Open: c - 0.2, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000}
	}
	return out
}

func TestFindPivotsStrict(t *testing.T) {
	candles := closesToCandles(1, 2, 3, 2, 1, 2, 3, 3, 2, 1)
	highs, lows := FindPivots(candles, 2)

	if len(highs) != 1 || highs[0].Index != 2 {
		t.Errorf("expected single pivot high at 2, got %+v", highs)
	}
	// bars 6 and 7 tie, so neither is a pivot
	for _, h := range highs {
		if h.Index == 6 || h.Index == 7 {
			t.Errorf("tied bars must not be pivots, got %+v", h)
		}
	}
	if len(lows) != 1 || lows[0].Index != 4 {
		t.Errorf("expected single pivot low at 4, got %+v", lows)
	}
}

func TestFindPivotsShortInput(t *testing.T) {
	highs, lows := FindPivots(closesToCandles(1, 2, 1), 5)
	if highs != nil || lows != nil {
		t.Error("too few candles should yield no pivots")
	}
}

func TestAlternatingPivots(t *testing.T) {
	highs := []Pivot{{Index: 2, Price: 10, IsHigh: true}, {Index: 4, Price: 12, IsHigh: true}, {Index: 9, Price: 11, IsHigh: true}}
	lows := []Pivot{{Index: 6, Price: 5}}

	zz := alternatingPivots(highs, lows)
	if len(zz) != 3 {
		t.Fatalf("expected 3 zigzag points, got %d", len(zz))
	}
	if zz[0].Index != 4 || zz[1].Index != 6 || zz[2].Index != 9 {
		t.Errorf("runs should collapse to the extreme, got %+v", zz)
	}
}

func TestFitTrendline(t *testing.T) {
	tl, ok := fitTrendline([]Pivot{{Index: 0, Price: 1}, {Index: 10, Price: 6}})
	if !ok {
		t.Fatal("two points should fit")
	}
	if math.Abs(tl.Slope-0.5) > 1e-12 || math.Abs(tl.At(4)-3) > 1e-12 {
		t.Errorf("unexpected line %+v", tl)
	}
	if _, ok := fitTrendline([]Pivot{{Index: 3, Price: 1}}); ok {
		t.Error("single point should not fit")
	}
}

func TestDoubleTop(t *testing.T) {
	var closes []float64
	for i := 0; i <= 10; i++ {
		closes = append(closes, 100+float64(i))
	}
	closes = append(closes, 109, 108, 107, 106, 105, 104)
	closes = append(closes, 105, 106, 107, 108, 109, 110.1)
	closes = append(closes, 109, 108, 107, 106, 105, 104, 103)
	candles := closesToCandles(closes...)

	detector := NewDetector()
	highs, _ := FindPivots(candles, detector.order)
	ps := detector.detectDoubles(candles, highs, true)
	if len(ps) != 1 {
		t.Fatalf("expected one double top, got %d", len(ps))
	}
	p := ps[0]
	if p.Kind != DoubleTop || p.Direction != signal.DirectionSell {
		t.Errorf("unexpected pattern %+v", p)
	}
	if p.Completed != 29 {
		t.Errorf("double top should complete at the neckline break (29), got %d", p.Completed)
	}
	if p.AnchorPrice != 103.5 {
		t.Errorf("neckline = %.2f, want 103.5", p.AnchorPrice)
	}
	if p.Strength < 79 || p.Strength > 80 {
		t.Errorf("strength = %.2f, want ~79.4", p.Strength)
	}
}

func TestBullFlag(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 10; i++ {
		o := 100 + float64(i)
		candles = append(candles, market.Candle{Open: o, High: o + 1.1, Low: o - 0.1, Close: o + 1})
	}
	prev := 110.0
	for _, c := range []float64{109.8, 109.6, 109.4, 109.2, 109.0} {
		candles = append(candles, market.Candle{Open: prev, High: math.Max(prev, c) + 0.1, Low: math.Min(prev, c) - 0.1, Close: c})
		prev = c
	}
	candles = append(candles, market.Candle{Open: 109, High: 111.1, Low: 108.9, Close: 111})

	ps := NewDetector().detectFlags(candles, nil)
	if len(ps) != 1 {
		t.Fatalf("expected one flag, got %d: %+v", len(ps), ps)
	}
	if ps[0].Kind != BullFlag || ps[0].Completed != 15 || ps[0].Strength != 70 {
		t.Errorf("unexpected flag %+v", ps[0])
	}
}

func TestFairValueGap(t *testing.T) {
	candles := []market.Candle{
		{Open: 100, High: 101, Low: 99.5, Close: 100.5},
		{Open: 100.5, High: 103.5, Low: 100.4, Close: 103.3},
		{Open: 103.3, High: 104.5, Low: 103, Close: 104.2},
	}
	ps := NewDetector().detectFVGs(candles, nil)
	if len(ps) != 1 {
		t.Fatalf("expected one gap, got %d", len(ps))
	}
	p := ps[0]
	if p.Direction != signal.DirectionBuy || p.Completed != 2 {
		t.Errorf("unexpected gap %+v", p)
	}
	if math.Abs(p.AnchorPrice-101.9) > 1e-9 {
		t.Errorf("gap midpoint = %f, want 101.9", p.AnchorPrice)
	}
	if p.Strength != 50 {
		t.Errorf("strength without ATR = %.1f, want 50", p.Strength)
	}

	ind := &indicators.Bundle{ATR: []float64{math.NaN(), math.NaN(), 2.8}}
	ps = NewDetector().detectFVGs(candles, ind)
	if math.Abs(ps[0].Strength-75) > 1e-9 {
		t.Errorf("gap >= ATR should score 75, got %.2f", ps[0].Strength)
	}
}

func TestLiquiditySweep(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 20; i++ {
		candles = append(candles, market.Candle{Open: 100, High: 101, Low: 99, Close: 100.2})
	}
	candles = append(candles, market.Candle{Open: 100.2, High: 102, Low: 99.5, Close: 100.5})

	ps := NewDetector().detectLiquiditySweeps(candles)
	if len(ps) != 1 {
		t.Fatalf("expected one sweep, got %d", len(ps))
	}
	if ps[0].Direction != signal.DirectionSell || ps[0].AnchorPrice != 101 || ps[0].Completed != 20 {
		t.Errorf("unexpected sweep %+v", ps[0])
	}
}

func TestBreakOfStructure(t *testing.T) {
	candles := closesToCandles(100, 101, 102, 103, 104, 105, 104, 103, 102, 101, 100, 101, 102, 103, 104, 104.5, 106)
	detector := NewDetector()
	highs, lows := FindPivots(candles, detector.order)

	ps := detector.detectStructureBreaks(candles, highs, lows)
	if len(ps) != 1 {
		t.Fatalf("expected one structure break, got %d: %+v", len(ps), ps)
	}
	p := ps[0]
	if p.Kind != BreakOfStructure || p.Direction != signal.DirectionBuy {
		t.Errorf("unexpected break %+v", p)
	}
	if p.Completed != 16 || p.AnchorPrice != 105.5 || p.Strength != 70 {
		t.Errorf("unexpected break %+v", p)
	}
}

func TestChangeOfCharacter(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		dir    signal.Direction
		anchor float64
	}{
		// higher highs and lows, then a close under the last higher low
		{"bearish after uptrend", []float64{100, 110, 104, 114, 108, 118, 100}, signal.DirectionSell, 108},
		// lower highs and lows, then a close over the last lower high
		{"bullish after downtrend", []float64{120, 110, 116, 106, 112, 102, 120}, signal.DirectionBuy, 112},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := zigzagCandles(8, tt.prices...)
			detector := NewDetector()
			highs, lows := FindPivots(candles, detector.order)

			ps := detector.detectStructureBreaks(candles, highs, lows)
			if len(ps) != 3 {
				t.Fatalf("expected two continuation breaks and one reversal, got %d: %+v", len(ps), ps)
			}
			for _, p := range ps[:2] {
				if p.Kind != BreakOfStructure || p.Direction == tt.dir {
					t.Errorf("breaks with the trend should be BOS against %s, got %+v", tt.dir, p)
				}
			}
			p := ps[2]
			if p.Kind != ChangeOfCharacter || p.Direction != tt.dir {
				t.Errorf("got %s %s, want change_of_character %s", p.Kind, p.Direction, tt.dir)
			}
			if p.Completed != 45 || p.AnchorPrice != tt.anchor || p.Strength != 76 {
				t.Errorf("unexpected reversal break %+v", p)
			}
		})
	}
}

func TestSwingStructure(t *testing.T) {
	up := []Pivot{{Index: 1, Price: 10}, {Index: 5, Price: 12}}
	upLows := []Pivot{{Index: 3, Price: 8}, {Index: 7, Price: 9}}
	if got := swingStructure(up, upLows, 1, 1); got != signal.DirectionBuy {
		t.Errorf("higher highs and lows = %s, want BUY", got)
	}

	down := []Pivot{{Index: 1, Price: 12}, {Index: 5, Price: 10}}
	downLows := []Pivot{{Index: 3, Price: 9}, {Index: 7, Price: 8}}
	if got := swingStructure(down, downLows, 1, 1); got != signal.DirectionSell {
		t.Errorf("lower highs and lows = %s, want SELL", got)
	}

	if got := swingStructure(up, downLows, 1, 1); got != signal.DirectionHold {
		t.Errorf("mixed structure = %s, want HOLD", got)
	}
	if got := swingStructure(up, upLows, 0, 1); got != signal.DirectionHold {
		t.Errorf("single pivot = %s, want HOLD", got)
	}
}

func TestOrderBlockRetest(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 20; i++ {
		candles = append(candles, market.Candle{Open: 100, High: 100.15, Low: 99.95, Close: 100.1})
	}
	candles = append(candles,
		market.Candle{Open: 100.2, High: 100.3, Low: 99.9, Close: 100.0},  // bearish block
		market.Candle{Open: 100, High: 102.1, Low: 99.95, Close: 102},     // displacement
		market.Candle{Open: 102, High: 102.1, Low: 101.4, Close: 101.5},   // above zone
		market.Candle{Open: 101.5, High: 101.6, Low: 100.2, Close: 100.8}, // retest
	)

	ps := NewDetector().detectOrderBlocks(candles)
	if len(ps) != 1 {
		t.Fatalf("expected one order block, got %d: %+v", len(ps), ps)
	}
	p := ps[0]
	if p.Direction != signal.DirectionBuy || p.Completed != 23 {
		t.Errorf("unexpected order block %+v", p)
	}
	if p.Indices[0] != 20 || p.Indices[1] != 21 {
		t.Errorf("block/displacement indices = %v, want [20 21 ...]", p.Indices)
	}
	if math.Abs(p.AnchorPrice-100.1) > 1e-9 || p.Strength != 80 {
		t.Errorf("unexpected zone or strength %+v", p)
	}
}

func TestDominant(t *testing.T) {
	b := &Bundle{Len: 100, Patterns: []Pattern{
		{Kind: Hammer, Direction: signal.DirectionBuy, Strength: 65, Completed: 90},
		{Kind: Doji, Direction: signal.DirectionHold, Strength: 50, Completed: 99},
		{Kind: BearishEngulfing, Direction: signal.DirectionSell, Strength: 75, Completed: 97},
		{Kind: LiquiditySweep, Direction: signal.DirectionBuy, Strength: 72, Completed: 97},
	}}

	p, ok := b.Dominant(5)
	if !ok {
		t.Fatal("expected a dominant pattern")
	}
	if p.Kind != BearishEngulfing {
		t.Errorf("dominant = %s, want bearish_engulfing (most recent directional, strongest)", p.Kind)
	}

	old := &Bundle{Len: 100, Patterns: []Pattern{{Kind: Hammer, Direction: signal.DirectionBuy, Strength: 65, Completed: 90}}}
	if _, ok := old.Dominant(5); ok {
		t.Error("patterns outside the window should not dominate")
	}

	var nilBundle *Bundle
	if _, ok := nilBundle.Dominant(5); ok {
		t.Error("nil bundle has no dominant pattern")
	}
}

func TestDetectTrendFrame(t *testing.T) {
	frame := trendFrame(400)
	b := Detect(frame, indicators.Compute(frame))

	if len(b.PivotHighs) != 0 || len(b.PivotLows) != 0 {
		t.Errorf("steady trend should have no strict pivots, got %d highs %d lows", len(b.PivotHighs), len(b.PivotLows))
	}
	for _, p := range b.Patterns {
		if p.Kind == FairValueGap {
			t.Errorf("overlapping bodies should leave no gaps, got one at %d", p.Completed)
			break
		}
	}

	p, ok := b.Dominant(5)
	if !ok {
		t.Fatal("expected a dominant pattern")
	}
	if p.Kind != BullishEngulfing || p.Direction != signal.DirectionBuy || p.Strength != 75 {
		t.Errorf("dominant = %+v, want bullish engulfing BUY 75", p)
	}
	if p.Completed != 399 {
		t.Errorf("dominant should complete on the last bar, got %d", p.Completed)
	}

	for i := 1; i < len(b.Patterns); i++ {
		if b.Patterns[i].Completed < b.Patterns[i-1].Completed {
			t.Fatal("patterns should be ordered by completion")
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	frame := trendFrame(300)
	ind := indicators.Compute(frame)
	a := Detect(frame, ind)
	b := Detect(frame, ind)
	if len(a.Patterns) != len(b.Patterns) {
		t.Fatalf("pattern count differs: %d vs %d", len(a.Patterns), len(b.Patterns))
	}
	for i := range a.Patterns {
		if a.Patterns[i].Kind != b.Patterns[i].Kind || a.Patterns[i].Completed != b.Patterns[i].Completed {
			t.Fatalf("pattern %d differs", i)
		}
	}
}
