package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"signal-engine/internal/signal"
)

// fearGreedResponse from the alternative.me API
type fearGreedResponse struct {
	Name string `json:"name"`
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

// FearGreedProvider reads the crypto Fear & Greed index. It only answers for
// crypto symbols and caches the index for a TTL.
type FearGreedProvider struct {
	client *resty.Client
	ttl    time.Duration
	band   float64
	now    func() time.Time

	mu        sync.Mutex
	value     int
	fetchedAt time.Time
}

// NewFearGreedProvider creates a provider against baseURL
func NewFearGreedProvider(baseURL string, timeout, ttl time.Duration, neutralBand float64) *FearGreedProvider {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &FearGreedProvider{client: client, ttl: ttl, band: neutralBand, now: time.Now}
}

// Name implements Provider
func (f *FearGreedProvider) Name() string { return "fear_greed" }

// Analyze implements Provider
func (f *FearGreedProvider) Analyze(ctx context.Context, req Request) (*signal.SentimentReading, error) {
	if !isCrypto(req.Symbol) {
		return nil, ErrNoInput
	}
	value, err := f.index(ctx)
	if err != nil {
		return nil, err
	}

	// Convert fear/greed (0-100) to -1 to +1 scale
	score := (float64(value) - 50) / 50
	return &signal.SentimentReading{
		Sentiment:  Label(score, f.band),
		Score:      round3(score),
		Confidence: 0.6,
		Provider:   f.Name(),
	}, nil
}

func (f *FearGreedProvider) index(ctx context.Context) (int, error) {
	f.mu.Lock()
	if !f.fetchedAt.IsZero() && f.now().Sub(f.fetchedAt) < f.ttl {
		v := f.value
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("limit", "1").
		Get("/fng/")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch fear/greed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("fear/greed API error %d", resp.StatusCode())
	}

	var fg fearGreedResponse
	if err := json.Unmarshal(resp.Body(), &fg); err != nil {
		return 0, fmt.Errorf("failed to parse fear/greed: %w", err)
	}
	if len(fg.Data) == 0 {
		return 0, fmt.Errorf("no data in fear/greed response")
	}
	value, err := strconv.Atoi(fg.Data[0].Value)
	if err != nil || value < 0 || value > 100 {
		return 0, fmt.Errorf("invalid fear/greed value %q", fg.Data[0].Value)
	}

	f.mu.Lock()
	f.value = value
	f.fetchedAt = f.now()
	f.mu.Unlock()
	return value, nil
}

var cryptoQuotes = []string{"USDT", "USDC", "BUSD", "BTC", "ETH"}

func isCrypto(symbol string) bool {
	s := strings.ToUpper(symbol)
	for _, q := range cryptoQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return true
		}
	}
	return false
}
