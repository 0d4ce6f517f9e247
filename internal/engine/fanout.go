package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"signal-engine/internal/analysis"
	"signal-engine/internal/logging"
	"signal-engine/internal/market"
	"signal-engine/internal/sentiment"
	"signal-engine/internal/signal"
)

// frameSet is what the fetch stage produced for one request
type frameSet struct {
	frames    map[market.Timeframe]*market.Frame
	sentiment *signal.SentimentReading
}

// timeframes lists the fetched timeframes, shortest first
func (s *frameSet) timeframes() []market.Timeframe {
	out := make([]market.Timeframe, 0, len(s.frames))
	for tf := range s.frames {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration() < out[j].Duration() })
	return out
}

// fetch loads every requested timeframe concurrently, each under its own
// timeout bounded by the request deadline, and reads sentiment alongside.
// Only a missing primary frame fails the request.
func (e *Engine) fetch(ctx context.Context, d deps, log *logging.Logger, req *Request) (*frameSet, error) {
	frames := make([]*market.Frame, len(req.Timeframes))
	errs := make([]error, len(req.Timeframes))

	var g errgroup.Group
	for i, label := range req.Timeframes {
		i, tf := i, market.Timeframe(label)
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()

			frame, err := e.fetcher.FetchOHLCV(fctx, req.Symbol, tf, e.cfg.HistoryLimit)
			if err == nil {
				err = frame.Validate()
			}
			frames[i], errs[i] = frame, err
			return nil
		})
	}

	set := &frameSet{frames: make(map[market.Timeframe]*market.Frame, len(req.Timeframes))}
	if d.sentiment != nil {
		g.Go(func() error {
			set.sentiment = d.sentiment.Read(ctx, sentiment.Request{Symbol: req.Symbol, Text: req.ContextText})
			return nil
		})
	}
	g.Wait()

	var primaryErr error
	for i, label := range req.Timeframes {
		tf := market.Timeframe(label)
		if errs[i] != nil {
			d.metrics.RecordFetchError(label)
			if label == req.Timeframe {
				primaryErr = errs[i]
				continue
			}
			log.Warn("Secondary timeframe unavailable", "timeframe", label, "error", errs[i])
			continue
		}
		set.frames[tf] = frames[i]
	}
	if primaryErr != nil {
		if errors.Is(primaryErr, market.ErrNoData) {
			return nil, fmt.Errorf("data missing: no %s bars for %s", req.Timeframe, req.Symbol)
		}
		return nil, fmt.Errorf("data missing: %s %s: %v", req.Symbol, req.Timeframe, primaryErr)
	}
	log.Debug("Frames fetched", "timeframes", len(set.frames), "bars", set.frames[market.Timeframe(req.Timeframe)].Len())
	return set, nil
}

// runAnalyzers fans the analyzers out over the shared bundles. Each analyzer
// writes only its own slot. On deadline expiry the partial votes are dropped
// and the context error is returned; a panicking analyzer fails the request.
func (e *Engine) runAnalyzers(ctx context.Context, set []analysis.Analyzer, frame *market.Frame, b *bundles) ([]signal.Vote, error) {
	votes := make([]signal.Vote, len(set))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range set {
		i, a := i, a
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("analyzer %s panicked: %v", a.ID(), r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			votes[i] = a.Analyze(frame, b.ind, b.pat)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return votes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
