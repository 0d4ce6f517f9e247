package market

import (
	"context"
	"errors"
	"time"

	"signal-engine/internal/cache"
	"signal-engine/internal/logging"
)

// FrameCache is the subset of cache.CacheService used for frame caching
type FrameCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedFetcher serves recently fetched frames from a shared cache.
// Cache errors never fail a fetch; they only cause a pass-through.
type CachedFetcher struct {
	next   Fetcher
	cache  FrameCache
	ttl    time.Duration
	logger *logging.Logger

	// OnLookup, if set, is called with true on a hit and false on a miss
	OnLookup func(hit bool)
}

// NewCachedFetcher wraps next with a frame cache. ttl <= 0 uses cache.DefaultFrameTTL.
func NewCachedFetcher(next Fetcher, c FrameCache, ttl time.Duration, logger *logging.Logger) *CachedFetcher {
	if ttl <= 0 {
		ttl = cache.DefaultFrameTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedFetcher{next: next, cache: c, ttl: ttl, logger: logger.WithComponent("market")}
}

// FetchOHLCV implements Fetcher
func (c *CachedFetcher) FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error) {
	key := cache.FrameKey(symbol, string(tf), limit)

	var cached Frame
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil && cached.Len() > 0 {
		c.lookup(true)
		return &cached, nil
	}
	c.lookup(false)
	if err != nil && !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrUnavailable) {
		c.logger.Debug("Frame cache read failed", "key", key, "error", err)
	}

	frame, err := c.next.FetchOHLCV(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}

	// Bars never outlive the bar that is still forming
	ttl := c.ttl
	if d := tf.Duration(); d > 0 && d < ttl {
		ttl = d
	}
	if serr := c.cache.SetJSON(ctx, key, frame, ttl); serr != nil && !errors.Is(serr, cache.ErrUnavailable) {
		c.logger.Debug("Frame cache write failed", "key", key, "error", serr)
	}
	return frame, nil
}

func (c *CachedFetcher) lookup(hit bool) {
	if c.OnLookup != nil {
		c.OnLookup(hit)
	}
}
