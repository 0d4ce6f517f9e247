package patterns

import (
	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/signal"
)

// Base strengths for candlestick patterns. A volume surge (relative volume
// >= 1.5) adds candleVolumeBonus.
var candleStrength = map[Kind]float64{
	Doji:               50,
	DragonflyDoji:      62,
	GravestoneDoji:     62,
	Hammer:             65,
	InvertedHammer:     65,
	ShootingStar:       65,
	HangingMan:         65,
	BullishHarami:      68,
	BearishHarami:      68,
	PiercingLine:       70,
	DarkCloudCover:     70,
	BullishEngulfing:   75,
	BearishEngulfing:   75,
	MorningStar:        80,
	EveningStar:        80,
	ThreeWhiteSoldiers: 80,
	ThreeBlackCrows:    80,
}

const (
	candleVolumeBonus     = 5.0
	candleVolumeThreshold = 1.5
)

// detectCandlesticks scans every bar for single, two and three candle patterns
func (d *Detector) detectCandlesticks(candles []market.Candle, ind *indicators.Bundle) []Pattern {
	var out []Pattern

	emit := func(kind Kind, dir signal.Direction, i int, span int) {
		strength := candleStrength[kind]
		if relVolumeAt(ind, i) >= candleVolumeThreshold {
			strength += candleVolumeBonus
		}
		idx := make([]int, 0, span)
		for k := i - span + 1; k <= i; k++ {
			idx = append(idx, k)
		}
		out = append(out, Pattern{
			Kind:        kind,
			Family:      FamilyCandlestick,
			Direction:   dir,
			Strength:    clamp(strength, 0, 100),
			AnchorPrice: candles[i].Close,
			Indices:     idx,
			Completed:   i,
		})
	}

	for i := 0; i < len(candles); i++ {
		c := candles[i]
		var prev *market.Candle
		if i > 0 {
			prev = &candles[i-1]
		}

		// Single candle patterns
		switch {
		case d.isDragonflyDoji(c):
			emit(DragonflyDoji, signal.DirectionBuy, i, 1)
		case d.isGravestoneDoji(c):
			emit(GravestoneDoji, signal.DirectionSell, i, 1)
		case d.isDoji(c):
			emit(Doji, signal.DirectionHold, i, 1)
		}
		if d.isHammer(c, prev) {
			emit(Hammer, signal.DirectionBuy, i, 1)
		}
		if d.isHangingMan(c, prev) {
			emit(HangingMan, signal.DirectionSell, i, 1)
		}
		if d.isShootingStar(c, prev) {
			emit(ShootingStar, signal.DirectionSell, i, 1)
		}
		if d.isInvertedHammer(c, prev) {
			emit(InvertedHammer, signal.DirectionBuy, i, 1)
		}

		// Two-candle patterns
		if prev != nil {
			p := *prev
			if d.isBullishEngulfing(p, c) {
				emit(BullishEngulfing, signal.DirectionBuy, i, 2)
			}
			if d.isBearishEngulfing(p, c) {
				emit(BearishEngulfing, signal.DirectionSell, i, 2)
			}
			if d.isBullishHarami(p, c) {
				emit(BullishHarami, signal.DirectionBuy, i, 2)
			}
			if d.isBearishHarami(p, c) {
				emit(BearishHarami, signal.DirectionSell, i, 2)
			}
			if d.isPiercingLine(p, c) {
				emit(PiercingLine, signal.DirectionBuy, i, 2)
			}
			if d.isDarkCloudCover(p, c) {
				emit(DarkCloudCover, signal.DirectionSell, i, 2)
			}
		}

		// Three-candle patterns
		if i >= 2 {
			c1, c2 := candles[i-2], candles[i-1]
			if d.isMorningStar(c1, c2, c) {
				emit(MorningStar, signal.DirectionBuy, i, 3)
			}
			if d.isEveningStar(c1, c2, c) {
				emit(EveningStar, signal.DirectionSell, i, 3)
			}
			if d.isThreeWhiteSoldiers(c1, c2, c) {
				emit(ThreeWhiteSoldiers, signal.DirectionBuy, i, 3)
			}
			if d.isThreeBlackCrows(c1, c2, c) {
				emit(ThreeBlackCrows, signal.DirectionSell, i, 3)
			}
		}
	}

	return out
}

// isDoji checks for Doji pattern (indecision)
func (d *Detector) isDoji(c market.Candle) bool {
	rng := c.Range()
	if rng == 0 {
		return false
	}

	// Doji: body is very small relative to range (< 10%)
	return c.Body()/rng < 0.10
}

// isDragonflyDoji checks for Dragonfly Doji (bullish)
func (d *Detector) isDragonflyDoji(c market.Candle) bool {
	if !d.isDoji(c) {
		return false
	}
	body := c.Body()

	// Long lower wick, little to no upper wick
	return c.LowerWick() > body*3 && c.UpperWick() <= body*0.3
}

// isGravestoneDoji checks for Gravestone Doji (bearish)
func (d *Detector) isGravestoneDoji(c market.Candle) bool {
	if !d.isDoji(c) {
		return false
	}
	body := c.Body()

	// Long upper wick, little to no lower wick
	return c.UpperWick() > body*3 && c.LowerWick() <= body*0.3
}

// isHammer checks for Hammer pattern (bullish reversal)
func (d *Detector) isHammer(c market.Candle, prev *market.Candle) bool {
	body := c.Body()
	if body == 0 {
		return false
	}

	// Long lower wick (at least 2x body), small or no upper wick
	if c.LowerWick() < body*2 || c.UpperWick() > body*0.3 {
		return false
	}

	// Should appear after downtrend (if previous candle available)
	if prev != nil && !prev.IsBearish() {
		return false
	}
	return true
}

// isHangingMan checks for Hanging Man pattern (bearish)
func (d *Detector) isHangingMan(c market.Candle, prev *market.Candle) bool {
	// Same shape as hammer but appears after uptrend
	body := c.Body()
	if body == 0 || prev == nil {
		return false
	}
	if c.LowerWick() < body*2 || c.UpperWick() > body*0.3 {
		return false
	}
	return prev.IsBullish()
}

// isShootingStar checks for Shooting Star pattern (bearish reversal)
func (d *Detector) isShootingStar(c market.Candle, prev *market.Candle) bool {
	body := c.Body()
	if body == 0 {
		return false
	}

	// Long upper wick (at least 2x body), small or no lower wick
	if c.UpperWick() < body*2 || c.LowerWick() > body*0.3 {
		return false
	}

	// Should appear after uptrend (if previous candle available)
	if prev != nil && !prev.IsBullish() {
		return false
	}
	return true
}

// isInvertedHammer checks for Inverted Hammer (bullish, shooting star shape after a decline)
func (d *Detector) isInvertedHammer(c market.Candle, prev *market.Candle) bool {
	body := c.Body()
	if body == 0 || prev == nil {
		return false
	}
	if c.UpperWick() < body*2 || c.LowerWick() > body*0.3 {
		return false
	}
	return prev.IsBearish()
}

// isBullishEngulfing checks for Bullish Engulfing pattern
func (d *Detector) isBullishEngulfing(c1, c2 market.Candle) bool {
	// C1 bearish, C2 bullish
	if !c1.IsBearish() || !c2.IsBullish() {
		return false
	}

	// C2 should open at or below C1 close and close at or above C1 open
	if c2.Open > c1.Close || c2.Close < c1.Open {
		return false
	}
	return true
}

// isBearishEngulfing checks for Bearish Engulfing pattern
func (d *Detector) isBearishEngulfing(c1, c2 market.Candle) bool {
	// C1 bullish, C2 bearish
	if !c1.IsBullish() || !c2.IsBearish() {
		return false
	}

	// C2 should open at or above C1 close and close at or below C1 open
	if c2.Open < c1.Close || c2.Close > c1.Open {
		return false
	}
	return true
}

// isBullishHarami checks for Bullish Harami pattern
func (d *Detector) isBullishHarami(c1, c2 market.Candle) bool {
	// C1: Large bearish candle
	if !c1.IsBearish() || c1.Body() < c1.Range()*0.6 {
		return false
	}

	// C2: Small bullish candle inside C1 body
	if !c2.IsBullish() {
		return false
	}
	if c2.Open < c1.Close || c2.Close > c1.Open {
		return false
	}
	return c2.Body() <= c1.Body()*0.5
}

// isBearishHarami checks for Bearish Harami pattern
func (d *Detector) isBearishHarami(c1, c2 market.Candle) bool {
	// C1: Large bullish candle
	if !c1.IsBullish() || c1.Body() < c1.Range()*0.6 {
		return false
	}

	// C2: Small bearish candle inside C1 body
	if !c2.IsBearish() {
		return false
	}
	if c2.Open > c1.Close || c2.Close < c1.Open {
		return false
	}
	return c2.Body() <= c1.Body()*0.5
}

// isPiercingLine checks for Piercing Line: bullish candle opening at or below
// the prior bearish close and closing above its midpoint but below its open
func (d *Detector) isPiercingLine(c1, c2 market.Candle) bool {
	if !c1.IsBearish() || !c2.IsBullish() {
		return false
	}
	if c1.Body() < c1.Range()*0.5 {
		return false
	}
	midpoint := (c1.Open + c1.Close) / 2
	return c2.Open <= c1.Close && c2.Close > midpoint && c2.Close < c1.Open
}

// isDarkCloudCover checks for Dark Cloud Cover, the bearish mirror of Piercing Line
func (d *Detector) isDarkCloudCover(c1, c2 market.Candle) bool {
	if !c1.IsBullish() || !c2.IsBearish() {
		return false
	}
	if c1.Body() < c1.Range()*0.5 {
		return false
	}
	midpoint := (c1.Open + c1.Close) / 2
	return c2.Open >= c1.Close && c2.Close < midpoint && c2.Close > c1.Open
}

// isMorningStar checks for Morning Star pattern (bullish reversal)
func (d *Detector) isMorningStar(c1, c2, c3 market.Candle) bool {
	// Candle 1: Long bearish candle
	if !c1.IsBearish() || c1.Body() < c1.Range()*0.6 {
		return false
	}

	// Candle 2: Small body (indecision)
	if c2.Body() > c1.Body()*0.4 {
		return false
	}

	// Candle 3: Long bullish candle closing above midpoint of C1
	if !c3.IsBullish() || c3.Body() < c3.Range()*0.6 {
		return false
	}
	return c3.Close >= (c1.Open+c1.Close)/2
}

// isEveningStar checks for Evening Star pattern (bearish reversal)
func (d *Detector) isEveningStar(c1, c2, c3 market.Candle) bool {
	// Candle 1: Long bullish candle
	if !c1.IsBullish() || c1.Body() < c1.Range()*0.6 {
		return false
	}

	// Candle 2: Small body
	if c2.Body() > c1.Body()*0.4 {
		return false
	}

	// Candle 3: Long bearish candle closing below midpoint of C1
	if !c3.IsBearish() || c3.Body() < c3.Range()*0.6 {
		return false
	}
	return c3.Close <= (c1.Open+c1.Close)/2
}

// isThreeWhiteSoldiers checks for three strong bullish candles, each closing
// higher and opening inside the previous body
func (d *Detector) isThreeWhiteSoldiers(c1, c2, c3 market.Candle) bool {
	for _, c := range []market.Candle{c1, c2, c3} {
		if !c.IsBullish() || c.Body() < c.Range()*0.6 || c.UpperWick() > c.Body()*0.3 {
			return false
		}
	}
	if c2.Close <= c1.Close || c3.Close <= c2.Close {
		return false
	}
	return c2.Open >= c1.Open && c2.Open <= c1.Close && c3.Open >= c2.Open && c3.Open <= c2.Close
}

// isThreeBlackCrows checks for three strong bearish candles, each closing
// lower and opening inside the previous body
func (d *Detector) isThreeBlackCrows(c1, c2, c3 market.Candle) bool {
	for _, c := range []market.Candle{c1, c2, c3} {
		if !c.IsBearish() || c.Body() < c.Range()*0.6 || c.LowerWick() > c.Body()*0.3 {
			return false
		}
	}
	if c2.Close >= c1.Close || c3.Close >= c2.Close {
		return false
	}
	return c2.Open <= c1.Open && c2.Open >= c1.Close && c3.Open <= c2.Open && c3.Open >= c2.Close
}
