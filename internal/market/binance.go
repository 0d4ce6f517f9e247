package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// BinanceFetcher pulls klines from the public Binance REST API
type BinanceFetcher struct {
	client *resty.Client
}

// NewBinanceFetcher creates a kline fetcher against baseURL (e.g. https://api.binance.com)
func NewBinanceFetcher(baseURL string, timeout time.Duration) *BinanceFetcher {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &BinanceFetcher{client: client}
}

// FetchOHLCV implements Fetcher
func (b *BinanceFetcher) FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   strings.ToUpper(symbol),
			"interval": string(tf),
			"limit":    strconv.Itoa(limit),
		}).
		Get("/api/v3/klines")
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusBadRequest:
		// Unknown symbol or unsupported interval is a miss, not a transport failure
		return nil, ErrNoData
	default:
		return nil, fmt.Errorf("kline API error %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var raw [][]interface{}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoData
	}

	frame := &Frame{Symbol: strings.ToUpper(symbol), Timeframe: tf, Candles: make([]Candle, 0, len(raw))}
	for _, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed kline row with %d fields", len(row))
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("malformed kline open time %v", row[0])
		}
		frame.Candles = append(frame.Candles, Candle{
			OpenTime: time.UnixMilli(int64(openTime)).UTC(),
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		})
	}
	return frame, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
