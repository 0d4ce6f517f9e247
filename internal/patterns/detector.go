// Package patterns implements the pattern kernel: candlestick, chart,
// harmonic and smart-money structures detected over a candle frame.
package patterns

import (
	"math"
	"sort"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/signal"
)

// Kind identifies a detected structure
type Kind string

const (
	// Candlestick patterns
	Doji               Kind = "doji"
	DragonflyDoji      Kind = "dragonfly_doji"
	GravestoneDoji     Kind = "gravestone_doji"
	Hammer             Kind = "hammer"
	InvertedHammer     Kind = "inverted_hammer"
	ShootingStar       Kind = "shooting_star"
	HangingMan         Kind = "hanging_man"
	BullishEngulfing   Kind = "bullish_engulfing"
	BearishEngulfing   Kind = "bearish_engulfing"
	BullishHarami      Kind = "bullish_harami"
	BearishHarami      Kind = "bearish_harami"
	PiercingLine       Kind = "piercing_line"
	DarkCloudCover     Kind = "dark_cloud_cover"
	MorningStar        Kind = "morning_star"
	EveningStar        Kind = "evening_star"
	ThreeWhiteSoldiers Kind = "three_white_soldiers"
	ThreeBlackCrows    Kind = "three_black_crows"

	// Chart patterns
	HeadAndShoulders        Kind = "head_and_shoulders"
	InverseHeadAndShoulders Kind = "inverse_head_and_shoulders"
	DoubleTop               Kind = "double_top"
	DoubleBottom            Kind = "double_bottom"
	AscendingTriangle       Kind = "ascending_triangle"
	DescendingTriangle      Kind = "descending_triangle"
	SymmetricalTriangle     Kind = "symmetrical_triangle"
	RisingWedge             Kind = "rising_wedge"
	FallingWedge            Kind = "falling_wedge"
	BullFlag                Kind = "bull_flag"
	BearFlag                Kind = "bear_flag"

	// Harmonic patterns
	Gartley   Kind = "gartley"
	Bat       Kind = "bat"
	Butterfly Kind = "butterfly"
	Crab      Kind = "crab"

	// Smart-money structures
	OrderBlock        Kind = "order_block"
	FairValueGap      Kind = "fair_value_gap"
	BreakOfStructure  Kind = "break_of_structure"
	ChangeOfCharacter Kind = "change_of_character"
	LiquiditySweep    Kind = "liquidity_sweep"
)

// Family groups pattern kinds
type Family string

const (
	FamilyCandlestick Family = "candlestick"
	FamilyChart       Family = "chart"
	FamilyHarmonic    Family = "harmonic"
	FamilySMC         Family = "smc"
)

// Pattern is a detected structure. Completed is the bar index at which the
// structure became known (breakout bar, confirming pivot bar, or last candle).
type Pattern struct {
	Kind        Kind             `json:"kind"`
	Family      Family           `json:"family"`
	Direction   signal.Direction `json:"direction"`
	Strength    float64          `json:"strength"`
	AnchorPrice float64          `json:"anchor_price"`
	Indices     []int            `json:"supporting_indices"`
	Completed   int              `json:"completed"`
}

// Bundle holds every pattern and pivot detected in a frame
type Bundle struct {
	Len        int
	Patterns   []Pattern
	PivotHighs []Pivot
	PivotLows  []Pivot
}

// Dominant selects the pattern that completed most recently within the last
// window bars; ties are broken by strength, then by kind for determinism.
// Only directional patterns qualify.
func (b *Bundle) Dominant(window int) (Pattern, bool) {
	if b == nil {
		return Pattern{}, false
	}
	cutoff := b.Len - window
	var best Pattern
	found := false
	for _, p := range b.Patterns {
		if p.Completed < cutoff || !p.Direction.IsTrade() {
			continue
		}
		if !found ||
			p.Completed > best.Completed ||
			(p.Completed == best.Completed && p.Strength > best.Strength) ||
			(p.Completed == best.Completed && p.Strength == best.Strength && p.Kind < best.Kind) {
			best = p
			found = true
		}
	}
	return best, found
}

// Detector detects patterns in candlestick data
type Detector struct {
	order         int // swing pivot window for chart and SMC structure
	harmonicOrder int // swing pivot window for XABCD sequences
	fibTolerance  float64
}

// NewDetector creates a detector with the standard pivot windows (5 and 7)
// and a ±5% Fibonacci tolerance
func NewDetector() *Detector {
	return &Detector{order: 5, harmonicOrder: 7, fibTolerance: 0.05}
}

// Detect runs every detector over the frame. ind supplies ATR and relative
// volume; it must have been computed from the same frame.
func (d *Detector) Detect(frame *market.Frame, ind *indicators.Bundle) *Bundle {
	candles := frame.Candles
	highs, lows := FindPivots(candles, d.order)

	b := &Bundle{Len: len(candles), PivotHighs: highs, PivotLows: lows}
	b.Patterns = append(b.Patterns, d.detectCandlesticks(candles, ind)...)
	b.Patterns = append(b.Patterns, d.detectChartPatterns(candles, highs, lows, ind)...)
	b.Patterns = append(b.Patterns, d.detectHarmonics(candles)...)
	b.Patterns = append(b.Patterns, d.detectSMC(candles, highs, lows, ind)...)

	sort.SliceStable(b.Patterns, func(i, j int) bool {
		return b.Patterns[i].Completed < b.Patterns[j].Completed
	})
	return b
}

// Detect runs the default detector
func Detect(frame *market.Frame, ind *indicators.Bundle) *Bundle {
	return NewDetector().Detect(frame, ind)
}

// Helper functions

func atrAt(ind *indicators.Bundle, i int) float64 {
	if ind == nil || i < 0 || i >= len(ind.ATR) {
		return 0
	}
	v := ind.ATR[i]
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func relVolumeAt(ind *indicators.Bundle, i int) float64 {
	if ind == nil || i < 0 || i >= len(ind.RelVolume) {
		return 0
	}
	v := ind.RelVolume[i]
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
