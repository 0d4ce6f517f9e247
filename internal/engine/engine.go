// Package engine is the per-request orchestrator: it fetches frames, fans
// out to the Layer-1 analyzers, gates through Layer-2, builds the trade and
// its rationale, and feeds realized outcomes back to the weight engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"signal-engine/internal/analysis"
	"signal-engine/internal/confluence"
	"signal-engine/internal/events"
	"signal-engine/internal/indicators"
	"signal-engine/internal/logging"
	"signal-engine/internal/market"
	"signal-engine/internal/metrics"
	"signal-engine/internal/patterns"
	"signal-engine/internal/rationale"
	"signal-engine/internal/risk"
	"signal-engine/internal/sentiment"
	"signal-engine/internal/signal"
	"signal-engine/internal/validators"
	"signal-engine/internal/weights"
)

// Config holds orchestrator settings
type Config struct {
	Deadline         time.Duration `json:"deadline" yaml:"deadline" default:"10s" validate:"gt=0"`
	FetchTimeout     time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" default:"8s" validate:"gt=0"`
	CacheSize        int           `json:"cache_size" yaml:"cache_size" default:"512" validate:"gte=1"`
	MinAgents        int           `json:"min_agents" yaml:"min_agents" default:"3" validate:"gte=1,lte=5"`
	MinConfidence    float64       `json:"min_confidence" yaml:"min_confidence" default:"70" validate:"gte=0,lte=100"`
	Margin           float64       `json:"margin" yaml:"margin" default:"0.15" validate:"gte=0,lt=1"`
	Timeframes       []string      `json:"timeframes" yaml:"timeframes" default:"[\"5m\",\"15m\",\"30m\",\"1h\",\"4h\",\"1d\",\"1w\"]" validate:"min=1,dive,oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
	PrimaryTimeframe string        `json:"primary_timeframe" yaml:"primary_timeframe" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
	HistoryLimit     int           `json:"history_limit" yaml:"history_limit" default:"500" validate:"gte=50"`
	PatternWindow    int           `json:"pattern_window" yaml:"pattern_window" default:"5" validate:"gte=1"`
	RegistrySize     int           `json:"registry_size" yaml:"registry_size" default:"4096" validate:"gte=1"`
}

// DefaultConfig returns the standard orchestrator settings
func DefaultConfig() Config {
	return Config{
		Deadline:         10 * time.Second,
		FetchTimeout:     8 * time.Second,
		CacheSize:        512,
		MinAgents:        3,
		MinConfidence:    70,
		Margin:           confluence.DefaultMargin,
		Timeframes:       []string{"5m", "15m", "30m", "1h", "4h", "1d", "1w"},
		PrimaryTimeframe: "1h",
		HistoryLimit:     500,
		PatternWindow:    5,
		RegistrySize:     4096,
	}
}

// GuardChecker answers the news/time guard status for (time, symbol)
type GuardChecker interface {
	Check(ctx context.Context, t time.Time, symbol string) signal.GuardStatus
}

// SentimentReader returns an optional sentiment reading; nil means none
type SentimentReader interface {
	Read(ctx context.Context, req sentiment.Request) *signal.SentimentReading
}

// Engine runs the signal pipeline. It is safe for concurrent use.
type Engine struct {
	cfg       Config
	fetcher   market.Fetcher
	weights   *weights.Engine
	scorer    *confluence.Scorer
	rationale *rationale.Generator
	trailer   *risk.Trailer
	cache     *bundleCache
	registry  *registry
	logger    *logging.Logger

	mu          sync.RWMutex
	analyzers   []analysis.Analyzer
	chain       *validators.Chain
	constructor *risk.Constructor
	guard       GuardChecker
	sentiment   SentimentReader
	eventBus    *events.EventBus
	metrics     *metrics.Recorder
	now         func() time.Time
}

// New creates an engine over a market-data fetcher and the weight engine.
// 4h frames the fetcher cannot serve are synthesized from 1h bars.
func New(cfg Config, fetcher market.Fetcher, w *weights.Engine, logger *logging.Logger) (*Engine, error) {
	if fetcher == nil {
		return nil, errors.New("engine: market data fetcher is required")
	}
	if w == nil {
		return nil, errors.New("engine: weight engine is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	scorer := confluence.NewScorer()
	if err := scorer.SetMargin(cfg.Margin); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Engine{
		cfg:         cfg,
		fetcher:     &market.SynthesizingFetcher{Next: fetcher},
		weights:     w,
		scorer:      scorer,
		rationale:   rationale.NewGenerator(),
		trailer:     risk.NewTrailer(),
		cache:       newBundleCache(cfg.CacheSize),
		registry:    newRegistry(cfg.RegistrySize),
		logger:      logger.WithComponent("engine"),
		analyzers:   analysis.DefaultSet(),
		chain:       validators.DefaultChain(validators.DefaultConfig()),
		constructor: risk.NewConstructor(risk.DefaultConfig(), logger),
		now:         time.Now,
	}, nil
}

// SetAnalyzers replaces the Layer-1 analyzer set
func (e *Engine) SetAnalyzers(a ...analysis.Analyzer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.analyzers = a
}

// SetValidators replaces the Layer-2 chain
func (e *Engine) SetValidators(c *validators.Chain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chain = c
}

// SetConstructor replaces the trade constructor
func (e *Engine) SetConstructor(c *risk.Constructor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constructor = c
}

// SetGuard sets the news/time guard
func (e *Engine) SetGuard(g GuardChecker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guard = g
}

// SetSentiment sets the optional sentiment collaborator
func (e *Engine) SetSentiment(s SentimentReader) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sentiment = s
}

// SetEventBus sets the event bus for proposal, rejection and outcome events
func (e *Engine) SetEventBus(bus *events.EventBus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventBus = bus
}

// SetMetrics sets the metrics recorder and publishes the current weights
func (e *Engine) SetMetrics(m *metrics.Recorder) {
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()
	m.SetWeights(weightsByName(e.weights.Current()))
}

// SetClock overrides the wall clock (tests and replays)
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
	e.trailer.SetClock(now)
}

// Weights returns the published weight snapshot
func (e *Engine) Weights() *weights.Snapshot {
	return e.weights.Current()
}

// Trailer returns the stop manager tracking emitted proposals
func (e *Engine) Trailer() *risk.Trailer {
	return e.trailer
}

// deps is a consistent view of the swappable collaborators for one request
type deps struct {
	analyzers   []analysis.Analyzer
	chain       *validators.Chain
	constructor *risk.Constructor
	guard       GuardChecker
	sentiment   SentimentReader
	bus         *events.EventBus
	metrics     *metrics.Recorder
	now         func() time.Time
}

func (e *Engine) current() deps {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return deps{
		analyzers:   e.analyzers,
		chain:       e.chain,
		constructor: e.constructor,
		guard:       e.guard,
		sentiment:   e.sentiment,
		bus:         e.eventBus,
		metrics:     e.metrics,
		now:         e.now,
	}
}

// ============ Generate ============

// Generate runs the full pipeline for one request. The returned response is
// never nil; logical failures are reported in it, not as errors.
func (e *Engine) Generate(ctx context.Context, req Request) *Response {
	start := time.Now()
	d := e.current()
	ctx, log := logging.WithTraceContext(ctx, e.logger)

	resp := &Response{
		TraceID:   logging.TraceIDFromContext(ctx),
		Symbol:    req.Symbol,
		Direction: signal.DirectionHold,
	}
	defer func() {
		resp.Duration = time.Since(start)
		d.metrics.RecordRequest(resp.Success, resp.Layer, string(resp.Kind))
		d.metrics.ObserveStage("total", resp.Duration)
	}()

	if err := req.normalize(e.cfg); err != nil {
		return e.fail(d, resp, log, signal.KindInvalidRequest, signal.LayerData, err.Error())
	}
	resp.Symbol, resp.Timeframe = req.Symbol, req.Timeframe
	log = logging.SignalContext(log, req.Symbol, req.Timeframe)

	at := d.now().UTC()
	if req.AsOf != nil {
		at = req.AsOf.UTC()
	}
	resp.AsOf = at

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Deadline)
	defer cancel()

	// Guard pre-check: a blackout ends the request before any fetch
	stage := time.Now()
	guard := signal.GuardStatus{Level: signal.GuardOK, NextSafeAt: at}
	if d.guard != nil {
		guard = d.guard.Check(ctx, at, req.Symbol)
	}
	resp.Guard = &guard
	d.metrics.ObserveStage("guard", time.Since(stage))
	if guard.Level == signal.GuardBlackout {
		result := validators.NewTimingValidator().Validate(signal.Decision{}, req.Portfolio, &signal.MarketContext{Guard: guard})
		resp.Layer2 = []signal.ValidatorResult{result}
		return e.fail(d, resp, log, signal.KindValidatorReject, signal.LayerL2, result.Reason)
	}

	// Fetch
	stage = time.Now()
	set, err := e.fetch(ctx, d, log, &req)
	d.metrics.ObserveStage("fetch", time.Since(stage))
	if ctx.Err() != nil {
		return e.timeout(d, resp, log, "fetch")
	}
	if err != nil {
		return e.fail(d, resp, log, signal.KindDataMissing, signal.LayerData, err.Error())
	}
	primaryTF := market.Timeframe(req.Timeframe)
	frame := set.frames[primaryTF]

	// Indicator and pattern bundles, computed on this goroutine
	stage = time.Now()
	b := e.bundlesFor(frame, d)
	mctx := &signal.MarketContext{
		Symbol:    req.Symbol,
		Timestamp: at,
		Price:     frame.Last().Close,
		ATR:       indicators.Last(b.ind.ATR),
		Sentiment: set.sentiment,
		Guard:     guard,
	}
	if req.CurrentPrice != nil {
		mctx.Price = *req.CurrentPrice
	}
	if htf, ok := primaryTF.Higher(set.timeframes()); ok {
		hf := set.frames[htf]
		hb := e.bundlesFor(hf, d)
		mctx.HigherTimeframe = string(htf)
		mctx.HigherTrend = analysis.TrendOf(hf, hb.ind, hb.pat)
	}
	mctx.Levels = analysis.Levels(b.pat, mctx.Price)
	d.metrics.ObserveStage("bundle", time.Since(stage))

	// Layer 1
	stage = time.Now()
	snap := e.weights.Current()
	votes, err := e.runAnalyzers(ctx, d.analyzers, frame, b)
	d.metrics.ObserveStage("layer1", time.Since(stage))
	if ctx.Err() != nil {
		return e.timeout(d, resp, log, "layer1")
	}
	if err != nil {
		return e.fail(d, resp, log, signal.KindInternal, signal.LayerL1, err.Error())
	}
	decision := e.scorer.Aggregate(votes, snap.Layer1())
	resp.Layer1 = newLayer1Report(decision)
	resp.Direction = decision.Direction
	log.Debug("Layer 1 aggregated",
		"direction", decision.Direction,
		"raw_confidence", decision.RawConfidence,
		"agreeing", decision.AgreeingCount,
		"margin", decision.Margin)

	if f := confluence.Gate(decision, req.MinAgents, *req.MinConfidence); f != nil {
		return e.fail(d, resp, log, f.Kind, f.Layer, f.Reason)
	}

	// Layer 2
	stage = time.Now()
	results, rejected := d.chain.Run(decision, req.Portfolio, mctx)
	resp.Layer2 = results
	d.metrics.ObserveStage("layer2", time.Since(stage))
	if rejected {
		last := results[len(results)-1]
		return e.fail(d, resp, log, signal.KindValidatorReject, signal.LayerL2, last.Reason)
	}
	final := round2(validators.FinalConfidence(decision.RawConfidence, results))
	if final < *req.MinConfidence {
		return e.fail(d, resp, log, signal.KindLowConfidence, signal.LayerL2,
			fmt.Sprintf("final confidence %.1f below minimum %.1f after validation", final, *req.MinConfidence))
	}

	// Trade construction
	stage = time.Now()
	_, spec := d.constructor.ClassSpec(req.Symbol)
	in := risk.Input{
		Symbol:         req.Symbol,
		Timeframe:      primaryTF,
		Direction:      decision.Direction,
		Entry:          mctx.Price,
		ATR:            mctx.ATR,
		Frame:          frame,
		PivotHighs:     b.pat.PivotHighs,
		PivotLows:      b.pat.PivotLows,
		Confidence:     final,
		EnforceMaxStop: *req.EnforceMaxStop,
		MaxStopPips:    req.MaxStopPips,
		Now:            at,
	}
	if req.Portfolio != nil {
		in.AccountBalance = req.Portfolio.AccountBalance
	}
	plan, err := d.constructor.Build(in)
	d.metrics.ObserveStage("construct", time.Since(stage))
	switch {
	case errors.Is(err, risk.ErrStopUnsafe):
		return e.fail(d, resp, log, signal.KindStopUnsafe, signal.LayerL2, err.Error())
	case errors.Is(err, risk.ErrRewardTooLow):
		return e.fail(d, resp, log, signal.KindValidatorReject, signal.LayerL2, err.Error())
	case err != nil:
		return e.fail(d, resp, log, signal.KindInternal, signal.LayerL1, err.Error())
	}

	// Rationale
	stage = time.Now()
	var pattern *patterns.Pattern
	age := 0
	if p, ok := b.pat.Dominant(e.cfg.PatternWindow); ok && p.Direction == decision.Direction {
		pattern = &p
		age = b.pat.Len - 1 - p.Completed
	}
	user, admin := e.rationale.Build(rationale.Input{
		Symbol:          req.Symbol,
		Timeframe:       req.Timeframe,
		Decision:        decision,
		Meta:            results,
		FinalConfidence: final,
		Plan:            plan,
		Pattern:         pattern,
		PatternAge:      age,
		Context:         mctx,
		TickSize:        spec.TickSize,
	})
	d.metrics.ObserveStage("rationale", time.Since(stage))

	proposal := &signal.Proposal{
		ID:                  uuid.NewString(),
		Symbol:              req.Symbol,
		Timeframe:           req.Timeframe,
		Direction:           decision.Direction,
		Entry:               plan.Entry,
		StopLoss:            plan.StopLoss,
		StopPips:            plan.StopPips,
		Targets:             plan.Targets,
		ExpectedRR:          plan.ExpectedRR,
		SizeFraction:        plan.SizeFraction,
		ConfidenceAfterMeta: final,
		RationaleUser:       user,
		RationaleAdmin:      admin,
		TrailPlan:           plan.TrailPlan,
		Votes:               decision.Votes,
		CreatedAt:           at,
		ExpiresAt:           plan.ExpiresAt,
	}
	e.register(ctx, log, proposal)
	e.trailer.Track(proposal)

	resp.Success = true
	resp.Proposal = proposal
	d.bus.PublishProposal(proposal.ID, proposal.Symbol, proposal.Timeframe, string(proposal.Direction),
		proposal.Entry, proposal.StopLoss, proposal.ConfidenceAfterMeta)
	d.metrics.RecordProposal(string(proposal.Direction))
	log.Info("Proposal emitted",
		"proposal_id", proposal.ID,
		"direction", proposal.Direction,
		"entry", proposal.Entry,
		"stop_loss", proposal.StopLoss,
		"confidence", final)
	return resp
}

// register records the proposal in the in-memory registry and the store.
// A store failure is logged; the registry still matches the outcome while the
// process lives.
func (e *Engine) register(ctx context.Context, log *logging.Logger, p *signal.Proposal) {
	rec := signal.ProposalRecord{
		ID:        p.ID,
		Symbol:    p.Symbol,
		Direction: p.Direction,
		Votes:     signal.Snapshots(p.Votes),
		CreatedAt: p.CreatedAt,
	}
	e.registry.add(rec)
	if err := e.weights.SaveProposal(context.WithoutCancel(ctx), rec); err != nil {
		log.Error("Failed to persist proposal", "proposal_id", p.ID, "error", err)
	}
}

func (e *Engine) fail(d deps, resp *Response, log *logging.Logger, kind signal.FailureKind, layer, reason string) *Response {
	resp.Success = false
	resp.Kind = kind
	resp.Layer = layer
	resp.Reason = reason
	resp.Direction = signal.DirectionHold
	resp.Proposal = nil
	if kind == signal.KindInternal {
		log.Error("Signal pipeline failed", "layer", layer, "kind", kind, "reason", reason)
		d.bus.PublishError("engine", reason, nil)
	} else {
		log.Warn("Signal rejected", "layer", layer, "kind", kind, "reason", reason)
	}
	d.bus.PublishRejection(resp.Symbol, layer, string(kind), reason)
	return resp
}

func (e *Engine) timeout(d deps, resp *Response, log *logging.Logger, stage string) *Response {
	return e.fail(d, resp, log, signal.KindTimeout, signal.LayerTimeout,
		fmt.Sprintf("deadline of %s expired during %s", e.cfg.Deadline, stage))
}

// bundlesFor returns the cached bundles for frame or computes them
func (e *Engine) bundlesFor(frame *market.Frame, d deps) *bundles {
	key := keyOf(frame)
	if b, ok := e.cache.get(key); ok {
		d.metrics.RecordCache(true)
		return b
	}
	d.metrics.RecordCache(false)
	ind := indicators.Compute(frame)
	b := &bundles{ind: ind, pat: patterns.Detect(frame, ind)}
	e.cache.add(key, b)
	return b
}

func weightsByName(s *weights.Snapshot) map[string]float64 {
	out := make(map[string]float64, len(s.Weights))
	for id, w := range s.Weights {
		out[string(id)] = w
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
