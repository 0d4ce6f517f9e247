package market

import (
	"errors"
	"fmt"
	"time"
)

// Timeframe is a candle interval label as used by exchanges ("1h", "4h", ...)
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
	TF1w:  7 * 24 * time.Hour,
}

// DefaultTimeframes is the timeframe set requested when a caller does not specify one
var DefaultTimeframes = []Timeframe{TF5m, TF15m, TF30m, TF1h, TF4h, TF1d, TF1w}

// ErrUnknownTimeframe is returned by ParseTimeframe for unsupported labels
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// ParseTimeframe validates a timeframe label
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// Duration returns the bar length, or 0 for unknown timeframes
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Valid reports whether tf is one of the supported timeframes
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Higher returns the next supported timeframe above tf among candidates.
// Returns false when no candidate is longer than tf.
func (tf Timeframe) Higher(candidates []Timeframe) (Timeframe, bool) {
	var best Timeframe
	for _, c := range candidates {
		if c.Duration() <= tf.Duration() {
			continue
		}
		if best == "" || c.Duration() < best.Duration() {
			best = c
		}
	}
	return best, best != ""
}

// Candle is a single OHLCV bar
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Body returns the absolute candle body size
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// UpperWick returns the distance between the high and the top of the body
func (c Candle) UpperWick() float64 {
	top := c.Open
	if c.Close > top {
		top = c.Close
	}
	return c.High - top
}

// LowerWick returns the distance between the bottom of the body and the low
func (c Candle) LowerWick() float64 {
	bottom := c.Open
	if c.Close < bottom {
		bottom = c.Close
	}
	return bottom - c.Low
}

// Range returns high minus low
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// IsBullish reports a close above the open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports a close below the open
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Validate checks the OHLCV invariants of a single bar
func (c Candle) Validate() error {
	if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 || c.Volume < 0 {
		return fmt.Errorf("negative value in candle at %s", c.OpenTime.Format(time.RFC3339))
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("low %.8f above body at %s", c.Low, c.OpenTime.Format(time.RFC3339))
	}
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("high %.8f below body at %s", c.High, c.OpenTime.Format(time.RFC3339))
	}
	return nil
}

// Frame is an ordered, immutable sequence of bars for one (symbol, timeframe).
// Analyzers and detectors must never write into Candles.
type Frame struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candles   []Candle  `json:"candles"`
}

// Len returns the number of bars
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Candles)
}

// Last returns the most recent bar
func (f *Frame) Last() Candle {
	return f.Candles[len(f.Candles)-1]
}

// LastBarTime returns the open time of the most recent bar (zero for empty frames)
func (f *Frame) LastBarTime() time.Time {
	if f.Len() == 0 {
		return time.Time{}
	}
	return f.Candles[len(f.Candles)-1].OpenTime
}

// Validate checks bar invariants and chronological ordering
func (f *Frame) Validate() error {
	if f.Len() == 0 {
		return ErrNoData
	}
	for i, c := range f.Candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%s %s bar %d: %w", f.Symbol, f.Timeframe, i, err)
		}
		if i > 0 && !c.OpenTime.After(f.Candles[i-1].OpenTime) {
			return fmt.Errorf("%s %s bar %d: bars not in ascending time order", f.Symbol, f.Timeframe, i)
		}
	}
	return nil
}

// Highs returns a copy of the high column
func (f *Frame) Highs() []float64 { return f.column(func(c Candle) float64 { return c.High }) }

// Lows returns a copy of the low column
func (f *Frame) Lows() []float64 { return f.column(func(c Candle) float64 { return c.Low }) }

// Closes returns a copy of the close column
func (f *Frame) Closes() []float64 { return f.column(func(c Candle) float64 { return c.Close }) }

// Volumes returns a copy of the volume column
func (f *Frame) Volumes() []float64 { return f.column(func(c Candle) float64 { return c.Volume }) }

func (f *Frame) column(get func(Candle) float64) []float64 {
	out := make([]float64, len(f.Candles))
	for i, c := range f.Candles {
		out[i] = get(c)
	}
	return out
}

// Tail returns a frame view over the last n bars (shares the backing array)
func (f *Frame) Tail(n int) *Frame {
	if n >= f.Len() {
		return f
	}
	return &Frame{Symbol: f.Symbol, Timeframe: f.Timeframe, Candles: f.Candles[f.Len()-n:]}
}
