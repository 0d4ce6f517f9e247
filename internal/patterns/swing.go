package patterns

import (
	"sort"

	"signal-engine/internal/market"
)

// Pivot is a swing high or swing low
type Pivot struct {
	Index  int     `json:"index"`
	Price  float64 `json:"price"`
	IsHigh bool    `json:"is_high"`
}

// FindPivots returns strict local extrema over ±order bars. A bar whose
// high (low) is equalled by any neighbour in the window is not a pivot.
func FindPivots(candles []market.Candle, order int) (highs, lows []Pivot) {
	if order <= 0 || len(candles) < order*2+1 {
		return nil, nil
	}

	for i := order; i < len(candles)-order; i++ {
		isHigh := true
		isLow := true

		for j := i - order; j <= i+order; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}

		if isHigh {
			highs = append(highs, Pivot{Index: i, Price: candles[i].High, IsHigh: true})
		}
		if isLow {
			lows = append(lows, Pivot{Index: i, Price: candles[i].Low})
		}
	}

	return highs, lows
}

// alternatingPivots merges highs and lows by index and collapses runs of the
// same side into the most extreme point, yielding a zigzag sequence.
func alternatingPivots(highs, lows []Pivot) []Pivot {
	all := make([]Pivot, 0, len(highs)+len(lows))
	all = append(all, highs...)
	all = append(all, lows...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Index < all[j].Index })

	var out []Pivot
	for _, p := range all {
		if len(out) > 0 && out[len(out)-1].IsHigh == p.IsHigh {
			last := &out[len(out)-1]
			if (p.IsHigh && p.Price > last.Price) || (!p.IsHigh && p.Price < last.Price) {
				*last = p
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

// lastPivotBefore returns the most recent pivot confirmed by bar i, i.e. with
// Index+order <= i
func lastPivotBefore(pivots []Pivot, i, order int) (Pivot, int, bool) {
	for k := len(pivots) - 1; k >= 0; k-- {
		if pivots[k].Index+order <= i {
			return pivots[k], k, true
		}
	}
	return Pivot{}, -1, false
}

func recentPivots(points []Pivot, count int) []Pivot {
	if len(points) <= count {
		return points
	}
	return points[len(points)-count:]
}

// Trendline is a least-squares fit of pivot prices against bar index
type Trendline struct {
	Slope      float64
	Intercept  float64
	StartIndex int
	EndIndex   int
}

// At returns the line value at bar index i
func (tl Trendline) At(i int) float64 {
	return tl.Intercept + tl.Slope*float64(i)
}

func fitTrendline(points []Pivot) (Trendline, bool) {
	if len(points) < 2 {
		return Trendline{}, false
	}

	// Simple linear regression
	n := float64(len(points))
	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		x := float64(p.Index)
		sumX += x
		sumY += p.Price
		sumXY += x * p.Price
		sumX2 += x * x
	}

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return Trendline{}, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	return Trendline{
		Slope:      slope,
		Intercept:  intercept,
		StartIndex: points[0].Index,
		EndIndex:   points[len(points)-1].Index,
	}, true
}

func pivotIndices(points ...Pivot) []int {
	out := make([]int, len(points))
	for i, p := range points {
		out[i] = p.Index
	}
	return out
}
