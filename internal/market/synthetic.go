package market

import (
	"math"
	"time"
)

// SyntheticTrend builds an n-bar uptrend that alternates up and down bars
// around a 0.24-per-bar drift. Up bars trade 1100 units, down bars 900 and
// the last bar 1200. The frame ends at end (exclusive of the next bar).
func SyntheticTrend(symbol string, tf Timeframe, n int, end time.Time) *Frame {
	f := &Frame{Symbol: symbol, Timeframe: tf}
	step := tf.Duration()
	start := end.Add(-time.Duration(n) * step)
	prev := 0.0
	for i := 0; i < n; i++ {
		z := -0.5
		vol := 900.0
		if i%2 == 1 {
			z = 0.5
			vol = 1100
		}
		if i == n-1 {
			vol = 1200
		}
		c := 100 + 0.24*float64(i) + z
		open := prev
		if i == 0 {
			open = c
		}
		f.Candles = append(f.Candles, Candle{
			OpenTime: start.Add(time.Duration(i) * step),
			Open:     open,
			High:     math.Max(open, c) + 0.1,
			Low:      math.Min(open, c) - 0.1,
			Close:    c,
			Volume:   vol,
		})
		prev = c
	}
	return f
}

// SyntheticCapitulation builds an n-bar frame that rises 0.1 per bar, rolls
// over for the last 20 bars and ends with a long-tailed capitulation bar
// (4.0 body, 9.0 lower wick) on flat volume
func SyntheticCapitulation(symbol string, tf Timeframe, n int, end time.Time) *Frame {
	f := &Frame{Symbol: symbol, Timeframe: tf}
	step := tf.Duration()
	start := end.Add(-time.Duration(n) * step)
	turn := n - 20
	prev := 0.0
	for i := 0; i < n; i++ {
		var c float64
		switch {
		case i < turn:
			c = 100 + 0.1*float64(i)
		case i < n-1:
			if (i-turn)%3 == 2 {
				c = prev + 0.3
			} else {
				c = prev - 0.6
			}
		default:
			c = prev - 4.0
		}
		open := prev
		if i == 0 {
			open = c
		}

		candle := Candle{
			OpenTime: start.Add(time.Duration(i) * step),
			Open:     open,
			High:     math.Max(open, c) + 0.05,
			Low:      math.Min(open, c) - 0.05,
			Close:    c,
			Volume:   1000,
		}
		if i == n-1 {
			candle.Low = c - 9
		}
		f.Candles = append(f.Candles, candle)
		prev = c
	}
	return f
}
