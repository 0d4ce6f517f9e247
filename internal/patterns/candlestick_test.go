package patterns

import (
	"testing"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/signal"
)

func bar(open, high, low, close float64) market.Candle {
	return market.Candle{Open: open, High: high, Low: low, Close: close, Volume: 1000}
}

// TestBullishEngulfing tests Bullish Engulfing pattern detection
func TestBullishEngulfing(t *testing.T) {
	detector := NewDetector()

	// Valid Bullish Engulfing
	c1 := bar(100, 102, 98, 99) // Bearish
	c2 := bar(98, 105, 97, 104) // Bullish engulfing

	if !detector.isBullishEngulfing(c1, c2) {
		t.Error("Should detect valid Bullish Engulfing pattern")
	}

	// Invalid - C1 not bearish
	c1Invalid := bar(99, 102, 98, 100)
	if detector.isBullishEngulfing(c1Invalid, c2) {
		t.Error("Should NOT detect pattern when C1 is not bearish")
	}

	// Invalid - C2 doesn't engulf C1
	c2Invalid := bar(99, 101, 98, 100)
	if detector.isBullishEngulfing(c1, c2Invalid) {
		t.Error("Should NOT detect pattern when C2 doesn't engulf C1")
	}
}

// TestBearishEngulfing tests Bearish Engulfing pattern detection
func TestBearishEngulfing(t *testing.T) {
	detector := NewDetector()

	c1 := bar(99, 102, 98, 100) // Bullish
	c2 := bar(101, 103, 95, 96) // Bearish engulfing

	if !detector.isBearishEngulfing(c1, c2) {
		t.Error("Should detect valid Bearish Engulfing pattern")
	}
	if detector.isBullishEngulfing(c1, c2) {
		t.Error("Bearish engulfing should not read as bullish")
	}
}

// TestDoji tests Doji pattern detection
func TestDoji(t *testing.T) {
	detector := NewDetector()

	doji := bar(100, 102, 98, 100.2)
	if !detector.isDoji(doji) {
		t.Error("Should detect valid Doji pattern")
	}

	notDoji := bar(100, 110, 98, 108)
	if detector.isDoji(notDoji) {
		t.Error("Should NOT detect Doji with large body")
	}

	flat := bar(100, 100, 100, 100)
	if detector.isDoji(flat) {
		t.Error("Zero-range candle is not a Doji")
	}
}

// TestDragonflyDoji tests Dragonfly Doji pattern
func TestDragonflyDoji(t *testing.T) {
	detector := NewDetector()

	// Long lower wick, small body at top
	dragonfly := bar(100, 100.12, 92, 100.1)
	if !detector.isDragonflyDoji(dragonfly) {
		t.Error("Should detect valid Dragonfly Doji")
	}

	notDragonfly := bar(100, 105, 92, 100.1)
	if detector.isDragonflyDoji(notDragonfly) {
		t.Error("Should NOT detect Dragonfly with upper wick")
	}
}

// TestGravestoneDoji tests Gravestone Doji pattern
func TestGravestoneDoji(t *testing.T) {
	detector := NewDetector()

	gravestone := bar(100, 108, 99.88, 99.9)
	if !detector.isGravestoneDoji(gravestone) {
		t.Error("Should detect valid Gravestone Doji")
	}
	if detector.isDragonflyDoji(gravestone) {
		t.Error("Gravestone should not be a Dragonfly")
	}
}

// TestHammerAndHangingMan tests that the same shape reads differently after a decline and a rally
func TestHammerAndHangingMan(t *testing.T) {
	detector := NewDetector()

	shape := bar(100, 101.1, 97, 101)
	down := bar(102, 102.5, 99.5, 100)
	up := bar(98, 100.5, 97.5, 100)

	if !detector.isHammer(shape, &down) {
		t.Error("Should detect Hammer after a bearish candle")
	}
	if detector.isHammer(shape, &up) {
		t.Error("Should NOT detect Hammer after a bullish candle")
	}
	if !detector.isHangingMan(shape, &up) {
		t.Error("Should detect Hanging Man after a bullish candle")
	}
	if detector.isHangingMan(shape, nil) {
		t.Error("Hanging Man needs a previous candle")
	}
}

// TestShootingStarAndInvertedHammer tests upper-wick reversal shapes
func TestShootingStarAndInvertedHammer(t *testing.T) {
	detector := NewDetector()

	shape := bar(101, 104, 99.9, 100)
	up := bar(98, 100.5, 97.5, 100)
	down := bar(102, 102.5, 99.5, 100)

	if !detector.isShootingStar(shape, &up) {
		t.Error("Should detect Shooting Star after a bullish candle")
	}
	if !detector.isInvertedHammer(shape, &down) {
		t.Error("Should detect Inverted Hammer after a bearish candle")
	}
	if detector.isShootingStar(shape, &down) {
		t.Error("Should NOT detect Shooting Star after a bearish candle")
	}
}

// TestHarami tests Harami pattern detection
func TestHarami(t *testing.T) {
	detector := NewDetector()

	c1 := bar(105, 105.5, 99.5, 100)
	c2 := bar(101, 103.2, 100.8, 103)
	if !detector.isBullishHarami(c1, c2) {
		t.Error("Should detect Bullish Harami")
	}

	big := bar(101, 105.5, 100.5, 105)
	if detector.isBullishHarami(c1, big) {
		t.Error("Should NOT detect Harami when the second body is too large")
	}

	b1 := bar(100, 105.5, 99.5, 105)
	b2 := bar(104, 104.2, 101.8, 102)
	if !detector.isBearishHarami(b1, b2) {
		t.Error("Should detect Bearish Harami")
	}
}

// TestPiercingLineAndDarkCloud tests two-candle midpoint reversals
func TestPiercingLineAndDarkCloud(t *testing.T) {
	detector := NewDetector()

	c1 := bar(105, 105.5, 99.5, 100)
	c2 := bar(99, 104, 98.8, 103)
	if !detector.isPiercingLine(c1, c2) {
		t.Error("Should detect Piercing Line")
	}
	if detector.isBullishEngulfing(c1, c2) {
		t.Error("Piercing Line closing below the prior open is not an engulfing")
	}

	d1 := bar(100, 105.5, 99.5, 105)
	d2 := bar(106, 106.2, 100.8, 102)
	if !detector.isDarkCloudCover(d1, d2) {
		t.Error("Should detect Dark Cloud Cover")
	}
}

// TestMorningStar tests Morning Star pattern
func TestMorningStar(t *testing.T) {
	detector := NewDetector()

	c1 := bar(105, 105.5, 99.5, 100)
	c2 := bar(99.5, 100, 99, 99.7)
	c3 := bar(100, 104.2, 99.8, 104)

	if !detector.isMorningStar(c1, c2, c3) {
		t.Error("Should detect valid Morning Star")
	}

	weak := bar(100, 101.2, 99.8, 101)
	if detector.isMorningStar(c1, c2, weak) {
		t.Error("Should NOT detect Morning Star when C3 closes below C1 midpoint")
	}
}

// TestEveningStar tests Evening Star pattern
func TestEveningStar(t *testing.T) {
	detector := NewDetector()

	c1 := bar(100, 105.5, 99.5, 105)
	c2 := bar(105.5, 106, 105, 105.3)
	c3 := bar(105, 105.2, 100.8, 101)

	if !detector.isEveningStar(c1, c2, c3) {
		t.Error("Should detect valid Evening Star")
	}
}

// TestThreeWhiteSoldiers tests Three White Soldiers and its bearish mirror
func TestThreeWhiteSoldiers(t *testing.T) {
	detector := NewDetector()

	c1 := bar(100, 102.2, 99.9, 102)
	c2 := bar(101, 103.2, 100.9, 103)
	c3 := bar(102, 104.2, 101.9, 104)
	if !detector.isThreeWhiteSoldiers(c1, c2, c3) {
		t.Error("Should detect Three White Soldiers")
	}

	gap := bar(103.5, 105.7, 103.4, 105.5)
	if detector.isThreeWhiteSoldiers(c1, c2, gap) {
		t.Error("Should NOT detect soldiers when C3 opens outside C2 body")
	}

	k1 := bar(104, 104.1, 101.8, 102)
	k2 := bar(103, 103.1, 100.8, 101)
	k3 := bar(102, 102.1, 99.8, 100)
	if !detector.isThreeBlackCrows(k1, k2, k3) {
		t.Error("Should detect Three Black Crows")
	}
}

func TestDetectCandlesticksVolumeBonus(t *testing.T) {
	detector := NewDetector()
	candles := []market.Candle{
		bar(100, 102, 98, 99),
		bar(98, 105, 97, 104),
	}

	quiet := &indicators.Bundle{RelVolume: []float64{1, 1}}
	loud := &indicators.Bundle{RelVolume: []float64{1, 2}}

	find := func(ps []Pattern) (Pattern, bool) {
		for _, p := range ps {
			if p.Kind == BullishEngulfing {
				return p, true
			}
		}
		return Pattern{}, false
	}

	p, ok := find(detector.detectCandlesticks(candles, quiet))
	if !ok {
		t.Fatal("expected a bullish engulfing")
	}
	if p.Strength != 75 || p.Direction != signal.DirectionBuy || p.Completed != 1 {
		t.Errorf("unexpected pattern %+v", p)
	}
	if len(p.Indices) != 2 || p.Indices[0] != 0 || p.Indices[1] != 1 {
		t.Errorf("supporting indices = %v, want [0 1]", p.Indices)
	}

	p, _ = find(detector.detectCandlesticks(candles, loud))
	if p.Strength != 80 {
		t.Errorf("volume surge should add 5, got %.1f", p.Strength)
	}
}

func TestDojiIsNeutral(t *testing.T) {
	detector := NewDetector()
	ps := detector.detectCandlesticks([]market.Candle{bar(100, 102, 98, 100.2)}, nil)
	if len(ps) != 1 || ps[0].Kind != Doji {
		t.Fatalf("expected a single doji, got %+v", ps)
	}
	if ps[0].Direction != signal.DirectionHold {
		t.Errorf("doji direction = %s, want HOLD", ps[0].Direction)
	}
}

// BenchmarkDetect benchmarks full pattern detection
func BenchmarkDetect(b *testing.B) {
	frame := trendFrame(400)
	ind := indicators.Compute(frame)
	detector := NewDetector()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.Detect(frame, ind)
	}
}
