package market

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"signal-engine/internal/cache"
	"signal-engine/internal/logging"
)

func hourlyFrame(n int, start time.Time) *Frame {
	f := &Frame{Symbol: "BTCUSDT", Timeframe: TF1h}
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		price += 1
		f.Candles = append(f.Candles, Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     open,
			High:     price + 0.5,
			Low:      open - 0.5,
			Close:    price,
			Volume:   10,
		})
	}
	return f
}

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in      string
		want    Timeframe
		wantErr bool
	}{
		{"1h", TF1h, false},
		{"4h", TF4h, false},
		{"1w", TF1w, false},
		{"2h", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTimeframe(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeframe(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeframe(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTimeframeHigher(t *testing.T) {
	got, ok := TF1h.Higher([]Timeframe{TF5m, TF1d, TF4h, TF1h})
	if !ok || got != TF4h {
		t.Errorf("Expected 4h above 1h, got %q (%v)", got, ok)
	}
	if _, ok := TF1w.Higher(DefaultTimeframes); ok {
		t.Error("Nothing should be above 1w")
	}
}

func TestCandleValidate(t *testing.T) {
	ts := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	good := Candle{OpenTime: ts, Open: 10, High: 12, Low: 9, Close: 11, Volume: 1}
	if err := good.Validate(); err != nil {
		t.Errorf("Valid candle rejected: %v", err)
	}

	bad := []Candle{
		{OpenTime: ts, Open: 10, High: 10.5, Low: 9, Close: 11, Volume: 1},
		{OpenTime: ts, Open: 10, High: 12, Low: 10.5, Close: 11, Volume: 1},
		{OpenTime: ts, Open: 10, High: 12, Low: 9, Close: 11, Volume: -1},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("Case %d: expected validation error", i)
		}
	}
}

func TestFrameValidateOrdering(t *testing.T) {
	f := hourlyFrame(3, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	if err := f.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	f.Candles[2].OpenTime = f.Candles[0].OpenTime
	if err := f.Validate(); err == nil {
		t.Error("Expected ordering error")
	}
	empty := &Frame{}
	if !errors.Is(empty.Validate(), ErrNoData) {
		t.Error("Empty frame should report ErrNoData")
	}
}

func TestFrameColumnsAreCopies(t *testing.T) {
	f := hourlyFrame(5, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	closes := f.Closes()
	closes[0] = -1
	if f.Candles[0].Close == -1 {
		t.Error("Closes() must not alias frame storage")
	}
}

func TestResampleTo4h(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	src := hourlyFrame(10, start)

	out, err := Resample(src, TF4h)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Len() != 3 {
		t.Fatalf("Expected 3 bars (two full and one partial), got %d", out.Len())
	}

	first := out.Candles[0]
	if !first.OpenTime.Equal(start) {
		t.Errorf("First bucket should start at %s, got %s", start, first.OpenTime)
	}
	if first.Open != src.Candles[0].Open {
		t.Errorf("Open should be first open: got %f", first.Open)
	}
	if first.Close != src.Candles[3].Close {
		t.Errorf("Close should be last close: got %f want %f", first.Close, src.Candles[3].Close)
	}
	if first.High != src.Candles[3].High {
		t.Errorf("High should be max high: got %f", first.High)
	}
	if first.Low != src.Candles[0].Low {
		t.Errorf("Low should be min low: got %f", first.Low)
	}
	if first.Volume != 40 {
		t.Errorf("Volume should be summed: got %f", first.Volume)
	}
	if out.Candles[2].Volume != 20 {
		t.Errorf("Partial bucket volume: got %f, want 20", out.Candles[2].Volume)
	}
}

func TestResampleAlignsToBoundary(t *testing.T) {
	start := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	out, err := Resample(hourlyFrame(4, start), TF4h)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("Expected 2 buckets for 02:00-05:00, got %d", out.Len())
	}
	if out.Candles[1].OpenTime.Hour() != 4 {
		t.Errorf("Second bucket should open at 04:00, got %s", out.Candles[1].OpenTime)
	}
}

func TestResampleRejectsDownsample(t *testing.T) {
	f := hourlyFrame(4, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	if _, err := Resample(f, TF15m); err == nil {
		t.Error("Expected error resampling 1h down to 15m")
	}
}

func TestSynthesizingFetcher(t *testing.T) {
	hourly := hourlyFrame(40, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	var requested []Timeframe
	inner := FetcherFunc(func(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error) {
		requested = append(requested, tf)
		if tf == TF4h {
			return nil, ErrNoData
		}
		return hourly, nil
	})

	s := &SynthesizingFetcher{Next: inner}
	frame, err := s.FetchOHLCV(context.Background(), "BTCUSDT", TF4h, 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if frame.Timeframe != TF4h {
		t.Errorf("Expected 4h frame, got %s", frame.Timeframe)
	}
	if frame.Len() != 5 {
		t.Errorf("Expected limit of 5 bars, got %d", frame.Len())
	}
	if len(requested) != 2 || requested[1] != TF1h {
		t.Errorf("Expected fallback request for 1h, got %v", requested)
	}

	// Other timeframes pass through untouched
	if _, err := s.FetchOHLCV(context.Background(), "BTCUSDT", TF1d, 5); err != nil {
		t.Errorf("Pass-through fetch failed: %v", err)
	}
}

type flakyFetcher struct {
	mu       sync.Mutex
	failures int
	calls    int
	err      error
	frame    *Frame
}

func (f *flakyFetcher) FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.frame, nil
}

func fastResilientConfig() ResilientConfig {
	cfg := DefaultResilientConfig("test")
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestResilientFetcherRetries(t *testing.T) {
	inner := &flakyFetcher{failures: 2, err: errors.New("connection reset"), frame: hourlyFrame(3, time.Now().UTC().Truncate(time.Hour))}
	r := NewResilientFetcher(inner, fastResilientConfig(), logging.Nop())

	frame, err := r.FetchOHLCV(context.Background(), "BTCUSDT", TF1h, 3)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if frame.Len() != 3 {
		t.Errorf("Expected 3 bars, got %d", frame.Len())
	}
	if inner.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", inner.calls)
	}
}

func TestResilientFetcherGivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyFetcher{failures: 100, err: errors.New("timeout")}
	cfg := fastResilientConfig()
	cfg.ConsecutiveFailures = 100
	r := NewResilientFetcher(inner, cfg, logging.Nop())

	if _, err := r.FetchOHLCV(context.Background(), "BTCUSDT", TF1h, 3); err == nil {
		t.Fatal("Expected failure")
	}
	if inner.calls != 4 {
		t.Errorf("Expected 1 attempt + 3 retries, got %d", inner.calls)
	}
}

func TestResilientFetcherNoDataIsPermanent(t *testing.T) {
	inner := &flakyFetcher{failures: 100, err: ErrNoData}
	r := NewResilientFetcher(inner, fastResilientConfig(), logging.Nop())

	_, err := r.FetchOHLCV(context.Background(), "NOPE", TF1h, 3)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("ErrNoData must not be retried, got %d calls", inner.calls)
	}
}

func TestResilientFetcherBreakerOpens(t *testing.T) {
	inner := &flakyFetcher{failures: 100, err: errors.New("503")}
	cfg := fastResilientConfig()
	cfg.MaxRetries = 0
	cfg.ConsecutiveFailures = 2
	r := NewResilientFetcher(inner, cfg, logging.Nop())

	for i := 0; i < 2; i++ {
		_, _ = r.FetchOHLCV(context.Background(), "BTCUSDT", TF1h, 3)
	}
	if r.State() != "open" {
		t.Fatalf("Expected open breaker, got %s", r.State())
	}
	if _, err := r.FetchOHLCV(context.Background(), "BTCUSDT", TF1h, 3); err == nil {
		t.Error("Expected open-state error")
	}
	if inner.calls != 2 {
		t.Errorf("Open breaker must not reach the provider, got %d calls", inner.calls)
	}
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	m.ttls[key] = ttl
	return nil
}

func TestCachedFetcher(t *testing.T) {
	inner := &flakyFetcher{frame: hourlyFrame(5, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))}
	mc := newMemoryCache()
	c := NewCachedFetcher(inner, mc, 10*time.Minute, logging.Nop())

	hits, misses := 0, 0
	c.OnLookup = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}

	first, err := c.FetchOHLCV(context.Background(), "btcusdt", TF1h, 5)
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}
	second, err := c.FetchOHLCV(context.Background(), "BTCUSDT", TF1h, 5)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("Expected one provider call, got %d", inner.calls)
	}
	if hits != 1 || misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
	if second.Len() != first.Len() || second.Last().Close != first.Last().Close {
		t.Error("Cached frame differs from fetched frame")
	}
	if ttl := mc.ttls[cache.FrameKey("BTCUSDT", "1h", 5)]; ttl != 10*time.Minute {
		t.Errorf("Unexpected ttl %s", ttl)
	}
}

func TestFileFetcher(t *testing.T) {
	frame := hourlyFrame(10, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	raw, err := json.Marshal([]*Frame{frame})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "frames.json")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}

	f, err := LoadFileFetcher(path)
	if err != nil {
		t.Fatalf("LoadFileFetcher failed: %v", err)
	}

	got, err := f.FetchOHLCV(context.Background(), "btcusdt", TF1h, 4)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Len() != 4 {
		t.Errorf("Expected 4 bars, got %d", got.Len())
	}
	if got.Last().Close != frame.Last().Close {
		t.Error("Tail should end at the most recent bar")
	}

	if _, err := f.FetchOHLCV(context.Background(), "BTCUSDT", TF1d, 4); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData for missing timeframe, got %v", err)
	}
}
