package market

import (
	"context"
	"errors"
)

// ErrNoData signals a fetch miss: the provider had no bars for the request
var ErrNoData = errors.New("no market data")

// Fetcher is the market-data collaborator contract. Implementations return
// bars in ascending time order with normalized OHLCV columns, or ErrNoData
// when the provider has nothing for (symbol, timeframe).
type Fetcher interface {
	FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error)

// FetchOHLCV calls f
func (f FetcherFunc) FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error) {
	return f(ctx, symbol, tf, limit)
}

// SynthesizingFetcher serves 4h frames by resampling 1h bars whenever the
// wrapped provider misses 4h directly.
type SynthesizingFetcher struct {
	Next Fetcher
}

// FetchOHLCV implements Fetcher
func (s *SynthesizingFetcher) FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error) {
	frame, err := s.Next.FetchOHLCV(ctx, symbol, tf, limit)
	if tf != TF4h || (err == nil && frame.Len() > 0) {
		return frame, err
	}
	if err != nil && !errors.Is(err, ErrNoData) {
		return nil, err
	}

	hourly, herr := s.Next.FetchOHLCV(ctx, symbol, TF1h, limit*4)
	if herr != nil {
		return nil, herr
	}
	if hourly.Len() == 0 {
		return nil, ErrNoData
	}
	resampled, rerr := Resample(hourly, TF4h)
	if rerr != nil {
		return nil, rerr
	}
	if limit > 0 && resampled.Len() > limit {
		resampled = resampled.Tail(limit)
	}
	return resampled, nil
}
