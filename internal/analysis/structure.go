package analysis

import (
	"math"
	"sort"

	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

// TrendDirection represents market trend
type TrendDirection string

const (
	TrendBullish  TrendDirection = "bullish"
	TrendBearish  TrendDirection = "bearish"
	TrendSideways TrendDirection = "sideways"
)

// LevelTolerance is the relative distance within which swing pivots are
// clustered into one support or resistance level
const LevelTolerance = 0.005

// MarketStructure represents analyzed swing structure
type MarketStructure struct {
	Trend         TrendDirection
	TrendStrength float64 // 0.0 to 1.0
	HigherHighs   int
	HigherLows    int
	LowerHighs    int
	LowerLows     int
}

// AnalyzeStructure counts higher/lower highs and lows over the swing pivots
func AnalyzeStructure(pat *patterns.Bundle) *MarketStructure {
	structure := &MarketStructure{Trend: TrendSideways}
	if pat == nil {
		return structure
	}

	for i := 1; i < len(pat.PivotHighs); i++ {
		if pat.PivotHighs[i].Price > pat.PivotHighs[i-1].Price {
			structure.HigherHighs++
		} else if pat.PivotHighs[i].Price < pat.PivotHighs[i-1].Price {
			structure.LowerHighs++
		}
	}
	for i := 1; i < len(pat.PivotLows); i++ {
		if pat.PivotLows[i].Price > pat.PivotLows[i-1].Price {
			structure.HigherLows++
		} else if pat.PivotLows[i].Price < pat.PivotLows[i-1].Price {
			structure.LowerLows++
		}
	}

	structure.Trend = determineTrend(structure)
	structure.TrendStrength = trendStrength(structure)
	return structure
}

// determineTrend determines overall trend direction
func determineTrend(s *MarketStructure) TrendDirection {
	// Bullish: Higher highs AND higher lows
	if s.HigherHighs > 0 && s.HigherLows > 0 &&
		s.HigherHighs >= s.LowerHighs && s.HigherLows >= s.LowerLows {
		return TrendBullish
	}

	// Bearish: Lower highs AND lower lows
	if s.LowerHighs > 0 && s.LowerLows > 0 &&
		s.LowerHighs >= s.HigherHighs && s.LowerLows >= s.HigherLows {
		return TrendBearish
	}

	return TrendSideways
}

// trendStrength is the share of swings agreeing with the trend
func trendStrength(s *MarketStructure) float64 {
	total := s.HigherHighs + s.HigherLows + s.LowerHighs + s.LowerLows
	if total == 0 {
		return 0
	}

	switch s.Trend {
	case TrendBullish:
		return float64(s.HigherHighs+s.HigherLows) / float64(total)
	case TrendBearish:
		return float64(s.LowerHighs+s.LowerLows) / float64(total)
	default:
		return 0.3
	}
}

// Levels clusters swing pivots within LevelTolerance into support (below
// price) and resistance (at or above price) levels, strongest first
func Levels(pat *patterns.Bundle, price float64) []signal.Level {
	if pat == nil {
		return nil
	}

	type cluster struct {
		price   float64
		touches int
	}
	var clusters []cluster
	add := func(p float64) {
		for i := range clusters {
			if clusters[i].price > 0 && math.Abs(p-clusters[i].price)/clusters[i].price < LevelTolerance {
				n := float64(clusters[i].touches)
				clusters[i].price = (clusters[i].price*n + p) / (n + 1)
				clusters[i].touches++
				return
			}
		}
		clusters = append(clusters, cluster{price: p, touches: 1})
	}

	for _, p := range pat.PivotLows {
		add(p.Price)
	}
	for _, p := range pat.PivotHighs {
		add(p.Price)
	}

	levels := make([]signal.Level, 0, len(clusters))
	for _, c := range clusters {
		kind := "support"
		if c.price >= price {
			kind = "resistance"
		}
		levels = append(levels, signal.Level{
			Price:    c.price,
			Kind:     kind,
			Touches:  c.touches,
			Strength: math.Min(100, 40+20*float64(c.touches)),
		})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Touches != levels[j].Touches {
			return levels[i].Touches > levels[j].Touches
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}
