package patterns

import (
	"math"

	"signal-engine/internal/market"
	"signal-engine/internal/signal"
)

// ratioBand is an inclusive Fibonacci band before tolerance is applied
type ratioBand struct{ lo, hi float64 }

type harmonicSpec struct {
	kind Kind
	ab   ratioBand // AB / XA
	bc   ratioBand // BC / AB
	cd   ratioBand // CD / BC
	ad   ratioBand // AD / XA, D's retracement of XA
}

var harmonicSpecs = []harmonicSpec{
	{kind: Gartley, ab: ratioBand{0.618, 0.618}, bc: ratioBand{0.382, 0.886}, cd: ratioBand{1.272, 1.618}, ad: ratioBand{0.786, 0.786}},
	{kind: Bat, ab: ratioBand{0.382, 0.5}, bc: ratioBand{0.382, 0.886}, cd: ratioBand{1.618, 2.618}, ad: ratioBand{0.886, 0.886}},
	{kind: Butterfly, ab: ratioBand{0.786, 0.786}, bc: ratioBand{0.382, 0.886}, cd: ratioBand{1.618, 2.24}, ad: ratioBand{1.27, 1.618}},
	{kind: Crab, ab: ratioBand{0.382, 0.618}, bc: ratioBand{0.382, 0.886}, cd: ratioBand{2.24, 3.618}, ad: ratioBand{1.618, 1.618}},
}

// within reports whether v lies in the band widened by ±tol (relative), and
// how far v sits from the band as a fraction of the band edge
func (b ratioBand) within(v, tol float64) (bool, float64) {
	lo, hi := b.lo*(1-tol), b.hi*(1+tol)
	if v < lo || v > hi {
		return false, 0
	}
	switch {
	case v < b.lo:
		return true, (b.lo - v) / b.lo
	case v > b.hi:
		return true, (v - b.hi) / b.hi
	default:
		return true, 0
	}
}

// detectHarmonics validates the last five alternating swing pivots as an
// XABCD sequence. A pattern with D at a swing low is bullish.
func (d *Detector) detectHarmonics(candles []market.Candle) []Pattern {
	highs, lows := FindPivots(candles, d.harmonicOrder)
	zigzag := alternatingPivots(highs, lows)
	if len(zigzag) < 5 {
		return nil
	}
	pts := zigzag[len(zigzag)-5:]
	x, a, b, c, dd := pts[0], pts[1], pts[2], pts[3], pts[4]

	xa := math.Abs(a.Price - x.Price)
	ab := math.Abs(b.Price - a.Price)
	bc := math.Abs(c.Price - b.Price)
	cd := math.Abs(dd.Price - c.Price)
	if xa == 0 || ab == 0 || bc == 0 {
		return nil
	}
	rAB := ab / xa
	rBC := bc / ab
	rCD := cd / bc
	rAD := math.Abs(a.Price-dd.Price) / xa

	dir := signal.DirectionSell
	if !dd.IsHigh {
		dir = signal.DirectionBuy
	}

	completed := dd.Index + d.harmonicOrder
	if completed > len(candles)-1 {
		completed = len(candles) - 1
	}

	var out []Pattern
	for _, spec := range harmonicSpecs {
		ok1, e1 := spec.ab.within(rAB, d.fibTolerance)
		ok2, e2 := spec.bc.within(rBC, d.fibTolerance)
		ok3, e3 := spec.cd.within(rCD, d.fibTolerance)
		ok4, e4 := spec.ad.within(rAD, d.fibTolerance)
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		meanErr := (e1 + e2 + e3 + e4) / 4
		out = append(out, Pattern{
			Kind:        spec.kind,
			Family:      FamilyHarmonic,
			Direction:   dir,
			Strength:    clamp(85-meanErr*300, 70, 85),
			AnchorPrice: dd.Price,
			Indices:     pivotIndices(x, a, b, c, dd),
			Completed:   completed,
		})
	}
	return out
}
