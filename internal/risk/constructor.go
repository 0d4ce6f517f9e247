// Package risk turns an approved direction into a concrete trade plan: stop
// placement, target ladder, position size, trail plan and expiry.
package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"signal-engine/internal/logging"
	"signal-engine/internal/market"
	"signal-engine/internal/patterns"
	"signal-engine/internal/signal"
)

var (
	// ErrStopUnsafe is returned when the capped stop sits inside recent wicks
	ErrStopUnsafe = errors.New("stop_unsafe")
	// ErrRewardTooLow is returned when the first target pays less than min_rr
	ErrRewardTooLow = errors.New("reward below minimum risk/reward")
	// ErrInvalidInput is returned for a non-trade direction or missing price data
	ErrInvalidInput = errors.New("invalid trade input")
)

// SizingConfig holds the Kelly cap and the volatility scalar bands
type SizingConfig struct {
	KellyCap     float64 `json:"kelly_cap" yaml:"kelly_cap" default:"0.25" validate:"gt=0,lte=1"`
	TightStopATR float64 `json:"tight_stop_atr" yaml:"tight_stop_atr" default:"1.5" validate:"gt=0"`
	WideStopATR  float64 `json:"wide_stop_atr" yaml:"wide_stop_atr" default:"3" validate:"gtfield=TightStopATR"`
	TightScalar  float64 `json:"tight_scalar" yaml:"tight_scalar" default:"0.5" validate:"gt=0"`
	WideScalar   float64 `json:"wide_scalar" yaml:"wide_scalar" default:"1.25" validate:"gt=0"`
}

// Config holds trade construction parameters
type Config struct {
	ATRMultiple   float64                  `json:"atr_multiple" yaml:"atr_multiple" default:"2" validate:"gt=0"`
	PivotLookback int                      `json:"pivot_lookback" yaml:"pivot_lookback" default:"50" validate:"gte=0"`
	WickLookback  int                      `json:"wick_lookback" yaml:"wick_lookback" default:"5" validate:"gte=1"`
	RMultiples    []float64                `json:"r_multiples" yaml:"r_multiples" default:"[1.5,3,5,8]" validate:"min=1,dive,gt=0"`
	Allocations   []float64                `json:"allocations" yaml:"allocations" default:"[0.25,0.25,0.25,0.25]" validate:"min=1,dive,gt=0,lte=1"`
	MinRR         float64                  `json:"min_rr" yaml:"min_rr" default:"1.5" validate:"gt=0"`
	TrailATR      float64                  `json:"trail_atr" yaml:"trail_atr" default:"1" validate:"gt=0"`
	ExpiryBars    int                      `json:"expiry_bars" yaml:"expiry_bars" default:"3" validate:"gte=1"`
	MaxExpiry     time.Duration            `json:"max_expiry" yaml:"max_expiry" default:"6h"`
	Sizing        SizingConfig             `json:"sizing" yaml:"sizing"`
	Classes       map[AssetClass]ClassSpec `json:"classes" yaml:"classes" validate:"dive"`
	Symbols       map[string]AssetClass    `json:"symbols" yaml:"symbols"`
}

// DefaultConfig returns the standard trade construction parameters
func DefaultConfig() Config {
	return Config{
		ATRMultiple:   2,
		PivotLookback: 50,
		WickLookback:  5,
		RMultiples:    []float64{1.5, 3, 5, 8},
		Allocations:   []float64{0.25, 0.25, 0.25, 0.25},
		MinRR:         1.5,
		TrailATR:      1,
		ExpiryBars:    3,
		MaxExpiry:     6 * time.Hour,
		Sizing: SizingConfig{
			KellyCap:     0.25,
			TightStopATR: 1.5,
			WideStopATR:  3,
			TightScalar:  0.5,
			WideScalar:   1.25,
		},
		Classes: DefaultClasses(),
	}
}

// Input is everything the constructor needs for one proposal
type Input struct {
	Symbol         string
	Timeframe      market.Timeframe
	Direction      signal.Direction
	Entry          float64
	ATR            float64
	Frame          *market.Frame
	PivotHighs     []patterns.Pivot
	PivotLows      []patterns.Pivot
	Confidence     float64 // final confidence, 0-100
	EnforceMaxStop bool
	MaxStopPips    float64 // overrides the class cap when > 0
	AccountBalance float64
	Now            time.Time
}

// Plan is a fully constructed trade
type Plan struct {
	Symbol        string           `json:"symbol"`
	Class         AssetClass       `json:"asset_class"`
	Direction     signal.Direction `json:"direction"`
	Entry         float64          `json:"entry"`
	StopLoss      float64          `json:"stop_loss"`
	StopDistance  float64          `json:"stop_distance"`
	StopPips      float64          `json:"stop_pips"`
	MaxStopPips   float64          `json:"max_stop_pips"`
	StopCapped    bool             `json:"stop_capped"`
	ATR           float64          `json:"atr"`
	ATRDistance   float64          `json:"atr_distance"`
	PivotDistance float64          `json:"pivot_distance"`
	Targets       []signal.Target  `json:"targets"`
	ExpectedRR    float64          `json:"expected_rr"`
	WinProb       float64          `json:"win_probability"`
	Kelly         float64          `json:"kelly"`
	VolScalar     float64          `json:"volatility_scalar"`
	SizeFraction  float64          `json:"size_fraction"`
	Units         float64          `json:"units,omitempty"`
	TrailPlan     signal.TrailPlan `json:"trail_plan"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// Constructor builds trade plans
type Constructor struct {
	cfg    Config
	logger *logging.Logger
}

// NewConstructor creates a trade constructor
func NewConstructor(cfg Config, logger *logging.Logger) *Constructor {
	if logger == nil {
		logger = logging.Default()
	}
	if len(cfg.Classes) == 0 {
		cfg.Classes = DefaultClasses()
	}
	return &Constructor{cfg: cfg, logger: logger.WithComponent("risk")}
}

// ClassSpec returns the asset class and its spec for a symbol
func (c *Constructor) ClassSpec(symbol string) (AssetClass, ClassSpec) {
	class := ClassOf(symbol, c.cfg.Symbols)
	spec, ok := c.cfg.Classes[class]
	if !ok {
		spec = DefaultClasses()[class]
	}
	return class, spec
}

// Build places the stop, the target ladder and the size for in
func (c *Constructor) Build(in Input) (*Plan, error) {
	if !in.Direction.IsTrade() {
		return nil, fmt.Errorf("%w: direction %s", ErrInvalidInput, in.Direction)
	}
	if in.Entry <= 0 || math.IsNaN(in.ATR) || in.ATR <= 0 {
		return nil, fmt.Errorf("%w: entry %.5g atr %.5g", ErrInvalidInput, in.Entry, in.ATR)
	}
	sign := in.Direction.Sign()
	class, spec := c.ClassSpec(in.Symbol)

	tick := spec.TickSize
	entry := snap(decimal.NewFromFloat(in.Entry), tick, roundNearest)
	side := decimal.NewFromFloat(sign)

	plan := &Plan{
		Symbol:    in.Symbol,
		Class:     class,
		Direction: in.Direction,
		Entry:     entry.InexactFloat64(),
		ATR:       in.ATR,
	}

	// Stop loss: the wider of the ATR stop and the nearest structural pivot
	plan.ATRDistance = c.cfg.ATRMultiple * in.ATR
	plan.PivotDistance = c.pivotDistance(in)
	dist := math.Max(plan.ATRDistance, plan.PivotDistance)

	plan.MaxStopPips = spec.MaxStopPips
	if in.MaxStopPips > 0 {
		plan.MaxStopPips = in.MaxStopPips
	}
	if maxDist := plan.MaxStopPips * spec.Pip(plan.Entry); in.EnforceMaxStop && dist > maxDist {
		dist = maxDist
		plan.StopCapped = true
	}

	stop := entry.Sub(side.Mul(decimal.NewFromFloat(dist)))
	if plan.StopCapped && c.insideWickRange(in, stop.InexactFloat64()) {
		c.logger.Debug("capped stop inside recent wicks",
			"symbol", in.Symbol, "stop", stop.InexactFloat64(), "max_stop_pips", plan.MaxStopPips)
		return nil, fmt.Errorf("%w: capped stop %s sits inside the last %d bars' range", ErrStopUnsafe, stop.String(), c.cfg.WickLookback)
	}

	// Rounding up for a BUY pulls the stop toward entry, so the cap still
	// holds, and pushes targets away from it, so no rung pays less than its R
	mode := roundUp
	if in.Direction == signal.DirectionSell {
		mode = roundDown
	}
	stop = snap(stop, tick, mode)
	perUnit := entry.Sub(stop).Abs()
	if !perUnit.IsPositive() || !stop.IsPositive() {
		return nil, fmt.Errorf("%w: stop collapses onto entry", ErrStopUnsafe)
	}
	plan.StopLoss = stop.InexactFloat64()
	plan.StopDistance = perUnit.InexactFloat64()
	plan.StopPips = roundPlaces(spec.Pips(plan.StopDistance, plan.Entry), 1)

	for i, r := range c.cfg.RMultiples {
		price := snap(entry.Add(side.Mul(decimal.NewFromFloat(r)).Mul(perUnit)), tick, mode)
		if !price.IsPositive() {
			return nil, fmt.Errorf("%w: target %.1fR crosses zero", ErrInvalidInput, r)
		}
		plan.Targets = append(plan.Targets, signal.Target{
			Price:      price.InexactFloat64(),
			RMultiple:  r,
			Allocation: c.allocation(i),
		})
	}
	t1 := decimal.NewFromFloat(plan.Targets[0].Price)
	plan.ExpectedRR = t1.Sub(entry).Abs().Div(perUnit).Round(2).InexactFloat64()
	if plan.ExpectedRR < c.cfg.MinRR {
		return nil, fmt.Errorf("%w: %.2f < %.2f", ErrRewardTooLow, plan.ExpectedRR, c.cfg.MinRR)
	}

	// Size: Kelly on the first target, scaled by stop width against ATR
	plan.WinProb = in.Confidence / 100
	plan.Kelly = KellyFraction(plan.WinProb, c.cfg.RMultiples[0], c.cfg.Sizing.KellyCap)
	plan.VolScalar = VolatilityScalar(plan.StopDistance, in.ATR, c.cfg.Sizing)
	plan.SizeFraction = roundPlaces(plan.Kelly*plan.VolScalar, 4)
	if in.AccountBalance > 0 {
		plan.Units = PositionUnits(in.AccountBalance, plan.SizeFraction, plan.Entry, plan.StopLoss)
	}

	plan.TrailPlan = NewTrailPlan(plan.Targets[0].Price, in.ATR, c.cfg.TrailATR, tick)
	plan.ExpiresAt = in.Now.Add(c.expiry(in.Timeframe))
	return plan, nil
}

// pivotDistance returns the distance to the nearest pivot beyond the stop
// side of entry within the lookback window, or 0 when none exists
func (c *Constructor) pivotDistance(in Input) float64 {
	n := in.Frame.Len()
	from := n - c.cfg.PivotLookback
	best := 0.0
	found := false

	pivots := in.PivotLows
	if in.Direction == signal.DirectionSell {
		pivots = in.PivotHighs
	}
	for _, p := range pivots {
		if p.Index < from {
			continue
		}
		d := in.Direction.Sign() * (in.Entry - p.Price)
		if d <= 0 {
			continue
		}
		if !found || d < best {
			best = d
			found = true
		}
	}
	return best
}

// insideWickRange reports whether a BUY stop sits at or above the lowest low
// of the recent bars, or a SELL stop at or below the highest high
func (c *Constructor) insideWickRange(in Input, stop float64) bool {
	if in.Frame.Len() == 0 {
		return false
	}
	recent := in.Frame.Tail(c.cfg.WickLookback)
	if in.Direction == signal.DirectionBuy {
		low := math.Inf(1)
		for _, bar := range recent.Candles {
			low = math.Min(low, bar.Low)
		}
		return stop >= low
	}
	high := math.Inf(-1)
	for _, bar := range recent.Candles {
		high = math.Max(high, bar.High)
	}
	return stop <= high
}

func (c *Constructor) allocation(i int) float64 {
	if i < len(c.cfg.Allocations) {
		return c.cfg.Allocations[i]
	}
	return 0
}

// expiry is ExpiryBars bars, capped at MaxExpiry
func (c *Constructor) expiry(tf market.Timeframe) time.Duration {
	d := time.Duration(c.cfg.ExpiryBars) * tf.Duration()
	if d <= 0 || (c.cfg.MaxExpiry > 0 && d > c.cfg.MaxExpiry) {
		return c.cfg.MaxExpiry
	}
	return d
}

type roundMode int

const (
	roundNearest roundMode = iota
	roundUp
	roundDown
)

// snap rounds price onto the tick grid
func snap(price decimal.Decimal, tick float64, mode roundMode) decimal.Decimal {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	q := price.Div(t)
	switch mode {
	case roundUp:
		q = q.Ceil()
	case roundDown:
		q = q.Floor()
	default:
		q = q.Round(0)
	}
	return q.Mul(t)
}

func roundPlaces(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
