package patterns

import (
	"math"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/signal"
)

const (
	displacementLookback = 20
	orderBlockSearch     = 10
	sweepLookback        = 20
)

// detectSMC finds smart-money structures: fair value gaps, order blocks,
// structure breaks and liquidity sweeps
func (d *Detector) detectSMC(candles []market.Candle, highs, lows []Pivot, ind *indicators.Bundle) []Pattern {
	var out []Pattern
	out = append(out, d.detectFVGs(candles, ind)...)
	out = append(out, d.detectOrderBlocks(candles)...)
	out = append(out, d.detectStructureBreaks(candles, highs, lows)...)
	out = append(out, d.detectLiquiditySweeps(candles)...)
	return out
}

func bodyTop(c market.Candle) float64    { return math.Max(c.Open, c.Close) }
func bodyBottom(c market.Candle) float64 { return math.Min(c.Open, c.Close) }

// detectFVGs reports a gap whenever bar i's body lies fully above (bullish)
// or below (bearish) bar i-2's body
func (d *Detector) detectFVGs(candles []market.Candle, ind *indicators.Bundle) []Pattern {
	var out []Pattern
	for i := 2; i < len(candles); i++ {
		c1, c3 := candles[i-2], candles[i]

		var dir signal.Direction
		var top, bottom float64
		switch {
		case bodyBottom(c3) > bodyTop(c1):
			dir, top, bottom = signal.DirectionBuy, bodyBottom(c3), bodyTop(c1)
		case bodyTop(c3) < bodyBottom(c1):
			dir, top, bottom = signal.DirectionSell, bodyBottom(c1), bodyTop(c3)
		default:
			continue
		}

		strength := 50.0
		if atr := atrAt(ind, i); atr > 0 {
			strength += 25 * math.Min((top-bottom)/atr, 1)
		}
		out = append(out, Pattern{
			Kind:        FairValueGap,
			Family:      FamilySMC,
			Direction:   dir,
			Strength:    strength,
			AnchorPrice: (top + bottom) / 2,
			Indices:     []int{i - 2, i - 1, i},
			Completed:   i,
		})
	}
	return out
}

// detectOrderBlocks finds displacement candles (body above mean + 1σ of the
// previous 20 bodies), takes the last opposite candle before each as the
// block, and reports the block when price later retests it without closing
// through it.
func (d *Detector) detectOrderBlocks(candles []market.Candle) []Pattern {
	var out []Pattern
	seen := make(map[int]bool)

	for i := displacementLookback; i < len(candles); i++ {
		disp := candles[i]
		if disp.Body() == 0 {
			continue
		}

		mean, sd := 0.0, 0.0
		for j := i - displacementLookback; j < i; j++ {
			mean += candles[j].Body()
		}
		mean /= displacementLookback
		for j := i - displacementLookback; j < i; j++ {
			diff := candles[j].Body() - mean
			sd += diff * diff
		}
		sd = math.Sqrt(sd / displacementLookback)

		threshold := mean + sd
		if disp.Body() <= threshold {
			continue
		}

		bullish := disp.IsBullish()
		block := -1
		for j := i - 1; j >= 0 && j >= i-orderBlockSearch; j-- {
			if (bullish && candles[j].IsBearish()) || (!bullish && candles[j].IsBullish()) {
				block = j
				break
			}
		}
		if block < 0 || seen[block] {
			continue
		}
		seen[block] = true

		zoneLow, zoneHigh := candles[block].Low, candles[block].High
		for j := i + 1; j < len(candles); j++ {
			c := candles[j]
			if bullish {
				if c.Close < zoneLow {
					break // mitigated through the block
				}
				if c.Low > zoneHigh {
					continue
				}
			} else {
				if c.Close > zoneHigh {
					break
				}
				if c.High < zoneLow {
					continue
				}
			}

			scale := sd
			if scale == 0 {
				scale = math.Max(mean, 1e-12)
			}
			excess := (disp.Body() - threshold) / scale
			dir := signal.DirectionSell
			if bullish {
				dir = signal.DirectionBuy
			}
			out = append(out, Pattern{
				Kind:        OrderBlock,
				Family:      FamilySMC,
				Direction:   dir,
				Strength:    65 + 15*math.Min(excess, 1),
				AnchorPrice: (zoneLow + zoneHigh) / 2,
				Indices:     []int{block, i, j},
				Completed:   j,
			})
			break
		}
	}
	return out
}

// detectStructureBreaks reports the first close through each confirmed swing
// pivot. Breaking with the prevailing swing structure is a BOS; breaking
// against it is a CHoCH.
func (d *Detector) detectStructureBreaks(candles []market.Candle, highs, lows []Pivot) []Pattern {
	var out []Pattern
	brokenHigh := make(map[int]bool)
	brokenLow := make(map[int]bool)

	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1]

		h, hk, okH := lastPivotBefore(highs, i, d.order)
		l, lk, okL := lastPivotBefore(lows, i, d.order)
		structure := swingStructure(highs, lows, hk, lk)

		if okH && !brokenHigh[h.Index] && c.Close > h.Price && prev.Close <= h.Price {
			brokenHigh[h.Index] = true
			kind, strength := BreakOfStructure, 70.0
			if structure == signal.DirectionSell {
				kind, strength = ChangeOfCharacter, 76
			}
			out = append(out, Pattern{
				Kind:        kind,
				Family:      FamilySMC,
				Direction:   signal.DirectionBuy,
				Strength:    strength,
				AnchorPrice: h.Price,
				Indices:     []int{h.Index, i},
				Completed:   i,
			})
		}

		if okL && !brokenLow[l.Index] && c.Close < l.Price && prev.Close >= l.Price {
			brokenLow[l.Index] = true
			kind, strength := BreakOfStructure, 70.0
			if structure == signal.DirectionBuy {
				kind, strength = ChangeOfCharacter, 76
			}
			out = append(out, Pattern{
				Kind:        kind,
				Family:      FamilySMC,
				Direction:   signal.DirectionSell,
				Strength:    strength,
				AnchorPrice: l.Price,
				Indices:     []int{l.Index, i},
				Completed:   i,
			})
		}
	}
	return out
}

// swingStructure classifies the last two confirmed highs and lows:
// higher highs and higher lows is BUY, lower highs and lower lows is SELL
func swingStructure(highs, lows []Pivot, hk, lk int) signal.Direction {
	if hk < 1 || lk < 1 {
		return signal.DirectionHold
	}
	hh := highs[hk].Price > highs[hk-1].Price
	hl := lows[lk].Price > lows[lk-1].Price
	lh := highs[hk].Price < highs[hk-1].Price
	ll := lows[lk].Price < lows[lk-1].Price
	switch {
	case hh && hl:
		return signal.DirectionBuy
	case lh && ll:
		return signal.DirectionSell
	default:
		return signal.DirectionHold
	}
}

// detectLiquiditySweeps reports a wick beyond the prior 20-bar extreme that
// closes back inside the range
func (d *Detector) detectLiquiditySweeps(candles []market.Candle) []Pattern {
	var out []Pattern
	for i := sweepLookback; i < len(candles); i++ {
		priorHigh, priorLow := candles[i-sweepLookback].High, candles[i-sweepLookback].Low
		for j := i - sweepLookback; j < i; j++ {
			priorHigh = math.Max(priorHigh, candles[j].High)
			priorLow = math.Min(priorLow, candles[j].Low)
		}

		c := candles[i]
		if c.High > priorHigh && c.Close < priorHigh {
			out = append(out, Pattern{
				Kind:        LiquiditySweep,
				Family:      FamilySMC,
				Direction:   signal.DirectionSell,
				Strength:    72,
				AnchorPrice: priorHigh,
				Indices:     []int{i},
				Completed:   i,
			})
		}
		if c.Low < priorLow && c.Close > priorLow {
			out = append(out, Pattern{
				Kind:        LiquiditySweep,
				Family:      FamilySMC,
				Direction:   signal.DirectionBuy,
				Strength:    72,
				AnchorPrice: priorLow,
				Indices:     []int{i},
				Completed:   i,
			})
		}
	}
	return out
}
