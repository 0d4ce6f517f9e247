package analysis

import (
	"fmt"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

// VolumeAnalyzer provides volume-based votes: climax reversals and
// volume-confirmed continuation
type VolumeAnalyzer struct {
	avgPeriod      int // Period for average volume calculation
	obvLookback    int
	climaxRatio    float64
	confirmRatio   float64
	surgeRatio     float64
	rejectionRatio float64
}

// VolumeProfile represents volume analysis results for the last bar
type VolumeProfile struct {
	CurrentVolume  float64
	VolumeRatio    float64 // Current / Average of the previous avgPeriod bars
	IsClimaxVolume bool    // Volume > 3x average
	OBVSlope       float64
	VolumeType     string // "buying", "selling", "neutral"
}

// NewVolumeAnalyzer creates a new volume analyzer
func NewVolumeAnalyzer(avgPeriod int) *VolumeAnalyzer {
	if avgPeriod <= 0 {
		avgPeriod = 20 // Default 20-period average
	}
	return &VolumeAnalyzer{
		avgPeriod:      avgPeriod,
		obvLookback:    5,
		climaxRatio:    3.0,
		confirmRatio:   1.1,
		surgeRatio:     1.5,
		rejectionRatio: 2.0,
	}
}

// ID implements Analyzer
func (va *VolumeAnalyzer) ID() signal.AnalyzerID { return signal.AnalyzerVolume }

// Profile builds the volume profile of the last bar, or nil without history
func (va *VolumeAnalyzer) Profile(frame *market.Frame, ind *indicators.Bundle) *VolumeProfile {
	if ind == nil || lastIndex(frame) < 0 {
		return nil
	}
	rel := indicators.Last(ind.RelVolume)
	obvNow := indicators.Last(ind.OBV)
	obvThen := indicators.Back(ind.OBV, va.obvLookback)
	if indicators.AnyNaN(rel, obvNow, obvThen) {
		return nil
	}

	c := frame.Last()
	return &VolumeProfile{
		CurrentVolume:  c.Volume,
		VolumeRatio:    rel,
		IsClimaxVolume: rel > va.climaxRatio,
		OBVSlope:       obvNow - obvThen,
		VolumeType:     va.DetermineVolumeType(c),
	}
}

// Analyze implements Analyzer
func (va *VolumeAnalyzer) Analyze(frame *market.Frame, ind *indicators.Bundle, pat *patterns.Bundle) signal.Vote {
	profile := va.Profile(frame, ind)
	if profile == nil {
		return signal.InsufficientHistory(va.ID())
	}
	c := frame.Last()
	body := c.Body()

	evidence := map[string]interface{}{
		"relative_volume": profile.VolumeRatio,
		"obv_slope":       profile.OBVSlope,
		"volume_type":     profile.VolumeType,
	}

	// Climax: exhaustion volume rejected by a long wick reverses the move
	if profile.IsClimaxVolume {
		if c.LowerWick() >= va.rejectionRatio*body && c.LowerWick() > c.UpperWick() {
			return vote(va.ID(), signal.DirectionBuy, 85, fmt.Sprintf("selling climax at %.1fx volume rejected", profile.VolumeRatio), evidence)
		}
		if c.UpperWick() >= va.rejectionRatio*body && c.UpperWick() > c.LowerWick() {
			return vote(va.ID(), signal.DirectionSell, 85, fmt.Sprintf("buying climax at %.1fx volume rejected", profile.VolumeRatio), evidence)
		}
	}

	if profile.VolumeRatio >= va.confirmRatio {
		var dir signal.Direction
		switch {
		case c.IsBullish() && profile.OBVSlope > 0:
			dir = signal.DirectionBuy
		case c.IsBearish() && profile.OBVSlope < 0:
			dir = signal.DirectionSell
		}
		if dir.IsTrade() {
			confidence := 78.0
			if profile.VolumeRatio >= va.surgeRatio {
				confidence += 4
			}
			return vote(va.ID(), dir, confidence, fmt.Sprintf("%.1fx volume with OBV confirming", profile.VolumeRatio), evidence)
		}
	}

	return vote(va.ID(), signal.DirectionHold, 50, fmt.Sprintf("%.1fx volume without confirmation", profile.VolumeRatio), evidence)
}

// DetermineVolumeType identifies if volume is buying or selling pressure
func (va *VolumeAnalyzer) DetermineVolumeType(candle market.Candle) string {
	bodySize := candle.Body()

	// Strong buying if small upper wick
	if candle.IsBullish() {
		if candle.UpperWick() < bodySize*0.2 {
			return "buying"
		}
		return "neutral"
	}
	// Strong selling if small lower wick
	if candle.IsBearish() {
		if candle.LowerWick() < bodySize*0.2 {
			return "selling"
		}
	}
	return "neutral"
}
