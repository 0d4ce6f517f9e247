package patterns

import (
	"math"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/signal"
)

// detectChartPatterns finds completed chart formations. A formation is
// reported at its breakout bar; unbroken formations are not patterns yet.
func (d *Detector) detectChartPatterns(candles []market.Candle, highs, lows []Pivot, ind *indicators.Bundle) []Pattern {
	var out []Pattern
	out = append(out, d.detectHeadAndShoulders(candles, highs, lows, false)...)
	out = append(out, d.detectHeadAndShoulders(candles, lows, highs, true)...)
	out = append(out, d.detectDoubles(candles, highs, true)...)
	out = append(out, d.detectDoubles(candles, lows, false)...)
	out = append(out, d.detectConvergingLines(candles, highs, lows, ind)...)
	out = append(out, d.detectFlags(candles, ind)...)
	return out
}

// ============ HEAD AND SHOULDERS DETECTION ============

func (d *Detector) detectHeadAndShoulders(candles []market.Candle, peaks, troughs []Pivot, inverse bool) []Pattern {
	var out []Pattern
	if len(peaks) < 3 || len(troughs) < 2 {
		return out
	}

	for i := 1; i < len(peaks)-1; i++ {
		left, head, right := peaks[i-1], peaks[i], peaks[i+1]

		// Minimum separation check
		if right.Index-left.Index < 10 {
			continue
		}

		// Regular: head must be highest. Inverse: head must be lowest.
		if !inverse && (head.Price <= left.Price || head.Price <= right.Price) {
			continue
		}
		if inverse && (head.Price >= left.Price || head.Price >= right.Price) {
			continue
		}

		// Shoulders should be within 15% of each other
		shoulderDiff := math.Abs(left.Price-right.Price) / math.Min(left.Price, right.Price)
		if shoulderDiff > 0.15 {
			continue
		}

		neckLeft, okL := extremeBetween(troughs, left.Index, head.Index, !inverse)
		neckRight, okR := extremeBetween(troughs, head.Index, right.Index, !inverse)
		if !okL || !okR {
			continue
		}

		neckSlope := 0.0
		if neckRight.Index != neckLeft.Index {
			neckSlope = (neckRight.Price - neckLeft.Price) / float64(neckRight.Index-neckLeft.Index)
		}
		neckAt := func(idx int) float64 {
			return neckLeft.Price + neckSlope*float64(idx-neckLeft.Index)
		}

		// Pattern completes when a close breaks the neckline after the right shoulder
		breakout := -1
		for j := right.Index + 1; j < len(candles); j++ {
			if (!inverse && candles[j].Close < neckAt(j)) || (inverse && candles[j].Close > neckAt(j)) {
				breakout = j
				break
			}
		}
		if breakout < 0 {
			continue
		}

		avgNeck := (neckLeft.Price + neckRight.Price) / 2
		height := math.Abs(head.Price - avgNeck)
		patternPercent := height / avgNeck * 100

		leftDistance := float64(head.Index - left.Index)
		rightDistance := float64(right.Index - head.Index)
		symmetry := math.Min(leftDistance, rightDistance) / math.Max(leftDistance, rightDistance) * 100
		symmetry = (symmetry + (1-shoulderDiff)*100) / 2

		strength := 68.0
		if symmetry >= 80 && patternPercent >= 5 {
			strength = 85
		} else if symmetry >= 60 && patternPercent >= 3 {
			strength = 78
		}

		kind, dir := HeadAndShoulders, signal.DirectionSell
		if inverse {
			kind, dir = InverseHeadAndShoulders, signal.DirectionBuy
		}
		out = append(out, Pattern{
			Kind:        kind,
			Family:      FamilyChart,
			Direction:   dir,
			Strength:    strength,
			AnchorPrice: neckAt(breakout),
			Indices:     pivotIndices(left, neckLeft, head, neckRight, right),
			Completed:   breakout,
		})
	}
	return out
}

// extremeBetween returns the lowest (or highest) pivot strictly between two bar indices
func extremeBetween(points []Pivot, startIdx, endIdx int, lowest bool) (Pivot, bool) {
	var best Pivot
	found := false
	for _, p := range points {
		if p.Index <= startIdx || p.Index >= endIdx {
			continue
		}
		if !found || (lowest && p.Price < best.Price) || (!lowest && p.Price > best.Price) {
			best = p
			found = true
		}
	}
	return best, found
}

// ============ DOUBLE TOP / BOTTOM DETECTION ============

func (d *Detector) detectDoubles(candles []market.Candle, points []Pivot, isTop bool) []Pattern {
	var out []Pattern
	for i := 1; i < len(points); i++ {
		p1, p2 := points[i-1], points[i]
		if p2.Index-p1.Index < 10 {
			continue
		}
		diff := math.Abs(p1.Price-p2.Price) / math.Min(p1.Price, p2.Price)
		if diff > 0.015 {
			continue
		}

		// Neckline is the opposite extreme between the two peaks
		neck := candles[p1.Index+1].Low
		if !isTop {
			neck = candles[p1.Index+1].High
		}
		for j := p1.Index + 1; j < p2.Index; j++ {
			if isTop {
				neck = math.Min(neck, candles[j].Low)
			} else {
				neck = math.Max(neck, candles[j].High)
			}
		}

		breakout := -1
		for j := p2.Index + 1; j < len(candles); j++ {
			if (isTop && candles[j].Close < neck) || (!isTop && candles[j].Close > neck) {
				breakout = j
				break
			}
			// A new extreme beyond the twin peaks voids the formation
			if (isTop && candles[j].High > math.Max(p1.Price, p2.Price)) || (!isTop && candles[j].Low < math.Min(p1.Price, p2.Price)) {
				break
			}
		}
		if breakout < 0 {
			continue
		}

		kind, dir := DoubleTop, signal.DirectionSell
		if !isTop {
			kind, dir = DoubleBottom, signal.DirectionBuy
		}
		out = append(out, Pattern{
			Kind:        kind,
			Family:      FamilyChart,
			Direction:   dir,
			Strength:    70 + 10*(1-diff/0.015),
			AnchorPrice: neck,
			Indices:     pivotIndices(p1, p2),
			Completed:   breakout,
		})
	}
	return out
}

// ============ TRIANGLE AND WEDGE DETECTION ============

// detectConvergingLines fits trendlines through the most recent pivot highs
// and lows and classifies converging setups once price breaks out.
func (d *Detector) detectConvergingLines(candles []market.Candle, highs, lows []Pivot, ind *indicators.Bundle) []Pattern {
	recentHighs := recentPivots(highs, 3)
	recentLows := recentPivots(lows, 3)
	if len(recentHighs) < 2 || len(recentLows) < 2 {
		return nil
	}

	upper, ok1 := fitTrendline(recentHighs)
	lower, ok2 := fitTrendline(recentLows)
	if !ok1 || !ok2 {
		return nil
	}

	start := recentHighs[0].Index
	if recentLows[0].Index < start {
		start = recentLows[0].Index
	}
	end := recentHighs[len(recentHighs)-1].Index
	if recentLows[len(recentLows)-1].Index > end {
		end = recentLows[len(recentLows)-1].Index
	}

	// Lines converge if the gap is narrowing but still open
	startGap := upper.At(start) - lower.At(start)
	endGap := upper.At(end) - lower.At(end)
	if !(endGap < startGap && endGap > 0) {
		return nil
	}

	avgPrice := (upper.At(end) + lower.At(end)) / 2
	if avgPrice <= 0 {
		return nil
	}
	us := upper.Slope / avgPrice
	ls := lower.Slope / avgPrice
	const flat = 0.0002

	var kind Kind
	var bias signal.Direction // HOLD means either side
	switch {
	case math.Abs(us) < flat && ls > flat:
		kind, bias = AscendingTriangle, signal.DirectionBuy
	case math.Abs(ls) < flat && us < -flat:
		kind, bias = DescendingTriangle, signal.DirectionSell
	case us < -flat && ls > flat:
		kind, bias = SymmetricalTriangle, signal.DirectionHold
	case us > flat && ls > us:
		// Rising wedge: both slopes positive, lower-line slope steeper
		kind, bias = RisingWedge, signal.DirectionSell
	case us < -flat && ls < 0 && us < ls:
		// Falling wedge: both slopes negative, upper-line slope steeper
		kind, bias = FallingWedge, signal.DirectionBuy
	default:
		return nil
	}

	for j := end + 1; j < len(candles); j++ {
		dir := signal.DirectionHold
		if candles[j].Close > upper.At(j) {
			dir = signal.DirectionBuy
		} else if candles[j].Close < lower.At(j) {
			dir = signal.DirectionSell
		}
		if dir == signal.DirectionHold {
			continue
		}
		if bias != signal.DirectionHold && dir != bias {
			return nil // failed formation
		}

		strength := 72.0
		if kind == RisingWedge || kind == FallingWedge {
			strength = 74
		}
		if relVolumeAt(ind, j) >= 1.5 {
			strength += 6
		}
		anchor := upper.At(j)
		if dir == signal.DirectionSell {
			anchor = lower.At(j)
		}
		idx := append(pivotIndices(recentHighs...), pivotIndices(recentLows...)...)
		return []Pattern{{
			Kind:        kind,
			Family:      FamilyChart,
			Direction:   dir,
			Strength:    strength,
			AnchorPrice: anchor,
			Indices:     idx,
			Completed:   j,
		}}
	}
	return nil
}

// ============ FLAG DETECTION ============

const (
	flagPoleBars = 10
	flagBars     = 5
)

// detectFlags looks for a strong pole, a counter-sloping consolidation and a
// breakout bar closing beyond the consolidation
func (d *Detector) detectFlags(candles []market.Candle, ind *indicators.Bundle) []Pattern {
	var out []Pattern
	for start := flagPoleBars; start+flagBars < len(candles); start++ {
		breakout := start + flagBars
		pole := candles[start-flagPoleBars : start]
		flag := candles[start:breakout]

		if p, ok := d.flagAt(pole, flag, candles[breakout], true); ok {
			p.Completed = breakout
			p.Indices = []int{start - flagPoleBars, start, breakout}
			if relVolumeAt(ind, breakout) >= 1.5 {
				p.Strength += 5
			}
			out = append(out, p)
		}
		if p, ok := d.flagAt(pole, flag, candles[breakout], false); ok {
			p.Completed = breakout
			p.Indices = []int{start - flagPoleBars, start, breakout}
			if relVolumeAt(ind, breakout) >= 1.5 {
				p.Strength += 5
			}
			out = append(out, p)
		}
	}
	return out
}

func (d *Detector) flagAt(pole, flag []market.Candle, next market.Candle, bullish bool) (Pattern, bool) {
	poleStart := pole[0].Open
	poleEnd := pole[len(pole)-1].Close
	poleHeight := poleEnd - poleStart
	if !bullish {
		poleHeight = -poleHeight
	}
	if poleHeight <= 0 {
		return Pattern{}, false
	}

	// Pole should be strong (most candles in the pole direction)
	count := 0
	for _, c := range pole {
		if (bullish && c.IsBullish()) || (!bullish && c.IsBearish()) {
			count++
		}
	}
	if float64(count)/float64(len(pole)) < 0.6 {
		return Pattern{}, false
	}

	flagHigh, flagLow := flag[0].High, flag[0].Low
	for _, c := range flag {
		flagHigh = math.Max(flagHigh, c.High)
		flagLow = math.Min(flagLow, c.Low)
	}

	// Flag should slope against the pole or sideways
	drift := flag[len(flag)-1].Close - flag[0].Close
	if (bullish && drift > 0) || (!bullish && drift < 0) {
		return Pattern{}, false
	}

	// Flag range should be smaller than half the pole
	if flagHigh-flagLow > poleHeight*0.5 {
		return Pattern{}, false
	}

	if bullish && next.Close > flagHigh {
		return Pattern{Kind: BullFlag, Family: FamilyChart, Direction: signal.DirectionBuy, Strength: 70, AnchorPrice: flagHigh}, true
	}
	if !bullish && next.Close < flagLow {
		return Pattern{Kind: BearFlag, Family: FamilyChart, Direction: signal.DirectionSell, Strength: 70, AnchorPrice: flagLow}, true
	}
	return Pattern{}, false
}
