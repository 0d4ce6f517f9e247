package market

import (
	"fmt"
	"time"
)

// Resample aggregates a frame into a longer timeframe using
// open=first, high=max, low=min, close=last, volume=sum.
// Buckets are aligned to UTC multiples of the target duration; a trailing
// partial bucket is kept as the still-forming bar.
func Resample(src *Frame, target Timeframe) (*Frame, error) {
	if src.Len() == 0 {
		return nil, ErrNoData
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimeframe, target)
	}
	step := target.Duration()
	if src.Timeframe.Valid() && step < src.Timeframe.Duration() {
		return nil, fmt.Errorf("cannot resample %s down to %s", src.Timeframe, target)
	}
	if step%src.Timeframe.Duration() != 0 {
		return nil, fmt.Errorf("%s is not a multiple of %s", target, src.Timeframe)
	}

	out := &Frame{Symbol: src.Symbol, Timeframe: target, Candles: make([]Candle, 0, src.Len()/int(step/src.Timeframe.Duration())+1)}

	var cur Candle
	var bucket time.Time
	open := false
	for _, c := range src.Candles {
		b := bucketStart(c.OpenTime, step)
		if !open || !b.Equal(bucket) {
			if open {
				out.Candles = append(out.Candles, cur)
			}
			bucket = b
			cur = Candle{OpenTime: b, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
			open = true
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	if open {
		out.Candles = append(out.Candles, cur)
	}
	return out, nil
}

// bucketStart truncates t to the UTC boundary of step. time.Truncate counts from
// the zero time (a Monday), so weekly buckets start on Mondays.
func bucketStart(t time.Time, step time.Duration) time.Time {
	return t.UTC().Truncate(step)
}
