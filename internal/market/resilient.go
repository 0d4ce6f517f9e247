package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"signal-engine/internal/logging"
)

// ResilientConfig controls retry and circuit-breaker behaviour of ResilientFetcher
type ResilientConfig struct {
	Name                string
	MaxRetries          uint64        // retries after the first attempt
	InitialBackoff      time.Duration // first retry delay
	MaxBackoff          time.Duration
	ConsecutiveFailures uint32        // trips the breaker
	OpenTimeout         time.Duration // time the breaker stays open before half-open probing
}

// DefaultResilientConfig returns three retries with exponential backoff and a
// breaker that opens after five consecutive failures.
func DefaultResilientConfig(name string) ResilientConfig {
	return ResilientConfig{
		Name:                name,
		MaxRetries:          3,
		InitialBackoff:      200 * time.Millisecond,
		MaxBackoff:          2 * time.Second,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// ResilientFetcher retries transport failures with exponential backoff and
// guards the provider with a circuit breaker. ErrNoData is a definitive answer
// and is neither retried nor counted as a breaker failure.
type ResilientFetcher struct {
	next    Fetcher
	cfg     ResilientConfig
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
}

// NewResilientFetcher wraps next
func NewResilientFetcher(next Fetcher, cfg ResilientConfig, logger *logging.Logger) *ResilientFetcher {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("market")

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Market data circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled)
		},
	}

	return &ResilientFetcher{
		next:    next,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// State reports the breaker state ("closed", "half-open", "open")
func (r *ResilientFetcher) State() string {
	return r.breaker.State().String()
}

// FetchOHLCV implements Fetcher
func (r *ResilientFetcher) FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialBackoff
	policy.MaxInterval = r.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	var frame *Frame
	attempt := 0
	operation := func() error {
		attempt++
		result, err := r.breaker.Execute(func() (interface{}, error) {
			return r.next.FetchOHLCV(ctx, symbol, tf, limit)
		})
		if err != nil {
			if errors.Is(err, ErrNoData) || errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		frame, _ = result.(*Frame)
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logging.MarketDataContext(r.logger, r.cfg.Name, symbol, string(tf)).
			WithError(err).
			Debug("Retrying market data fetch", "attempt", attempt, "wait", wait)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, r.cfg.MaxRetries), ctx), notify)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("fetch %s %s after %d attempts: %w", symbol, tf, attempt, err)
	}
	if frame == nil || frame.Len() == 0 {
		return nil, ErrNoData
	}
	return frame, nil
}
