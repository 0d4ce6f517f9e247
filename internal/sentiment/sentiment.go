// Package sentiment provides the optional sentiment reading read by the
// context validator: a keyword lexicon over caller-supplied text and the
// crypto Fear & Greed index, combined by a router.
package sentiment

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
	"time"

	"signal-engine/internal/logging"
	"signal-engine/internal/signal"
)

// ErrNoInput is returned when a provider has nothing to read for the request
var ErrNoInput = errors.New("no sentiment input")

// Sentiment labels
const (
	Positive = "pos"
	Negative = "neg"
	Neutral  = "neu"
)

// Config holds sentiment settings
type Config struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" default:"true"`
	FearGreed    bool          `json:"fear_greed" yaml:"fear_greed" default:"false"`
	FearGreedURL string        `json:"fear_greed_url" yaml:"fear_greed_url" default:"https://api.alternative.me"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" default:"3s"`
	CacheTTL     time.Duration `json:"cache_ttl" yaml:"cache_ttl" default:"15m"`
	TextWeight   float64       `json:"text_weight" yaml:"text_weight" default:"0.3" validate:"gte=0,lte=1"`
	NeutralBand  float64       `json:"neutral_band" yaml:"neutral_band" default:"0.2" validate:"gte=0,lt=1"`
}

// DefaultConfig returns sentiment defaults
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		FearGreedURL: "https://api.alternative.me",
		Timeout:      3 * time.Second,
		CacheTTL:     15 * time.Minute,
		TextWeight:   0.3,
		NeutralBand:  0.2,
	}
}

// Request is what the caller knows about the situation
type Request struct {
	Symbol string
	Text   string
}

// Provider produces a reading for a request
type Provider interface {
	Name() string
	Analyze(ctx context.Context, req Request) (*signal.SentimentReading, error)
}

// Label maps a score to pos/neg/neu using a symmetric neutral band
func Label(score, band float64) string {
	switch {
	case score >= band:
		return Positive
	case score <= -band:
		return Negative
	default:
		return Neutral
	}
}

// ============ Lexicon ============

var wordRe = regexp.MustCompile(`[a-z]+`)

var bullishWords = map[string]float64{
	"bullish": 1, "rally": 1, "surge": 1, "breakout": 0.8, "beat": 0.6, "beats": 0.6,
	"upgrade": 0.8, "strong": 0.5, "growth": 0.5, "gains": 0.6, "record": 0.5,
	"hawkish": 0.3, "approval": 0.7, "inflows": 0.7, "optimism": 0.8, "recovery": 0.6,
}

var bearishWords = map[string]float64{
	"bearish": 1, "crash": 1, "plunge": 1, "selloff": 0.9, "miss": 0.6, "misses": 0.6,
	"downgrade": 0.8, "weak": 0.5, "recession": 0.9, "losses": 0.6, "default": 0.8,
	"dovish": 0.3, "ban": 0.8, "outflows": 0.7, "fear": 0.7, "hack": 1, "lawsuit": 0.6,
}

var negators = map[string]struct{}{"not": {}, "no": {}, "never": {}, "without": {}}

// Lexicon scores free text with weighted keyword lists
type Lexicon struct {
	band float64
}

// NewLexicon creates a lexicon provider
func NewLexicon(neutralBand float64) *Lexicon {
	return &Lexicon{band: neutralBand}
}

// Name implements Provider
func (l *Lexicon) Name() string { return "lexicon" }

// Analyze implements Provider. A negator directly before a keyword flips it.
func (l *Lexicon) Analyze(ctx context.Context, req Request) (*signal.SentimentReading, error) {
	text := strings.ToLower(strings.TrimSpace(req.Text))
	if text == "" {
		return nil, ErrNoInput
	}
	words := wordRe.FindAllString(text, -1)

	var pos, neg float64
	hits := 0
	for i, w := range words {
		sign := 1.0
		if i > 0 {
			if _, ok := negators[words[i-1]]; ok {
				sign = -1
			}
		}
		if v, ok := bullishWords[w]; ok {
			hits++
			if sign > 0 {
				pos += v
			} else {
				neg += v
			}
		}
		if v, ok := bearishWords[w]; ok {
			hits++
			if sign > 0 {
				neg += v
			} else {
				pos += v
			}
		}
	}

	reading := &signal.SentimentReading{Sentiment: Neutral, Provider: l.Name()}
	if hits == 0 {
		reading.Confidence = 0.2
		return reading, nil
	}
	score := (pos - neg) / (pos + neg)
	reading.Score = round3(score)
	reading.Sentiment = Label(score, l.band)
	reading.Confidence = round3(math.Min(0.9, 0.4+0.1*float64(hits)))
	return reading, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// ============ Router ============

// Router queries providers in order and blends the readings that answer.
// The first provider carries (1 - TextWeight) when more than one answers.
type Router struct {
	providers  []Provider
	textWeight float64
	band       float64
	logger     *logging.Logger
}

// NewRouter creates a router over providers. The text provider, if any,
// should come last.
func NewRouter(cfg Config, logger *logging.Logger, providers ...Provider) *Router {
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{
		providers:  providers,
		textWeight: cfg.TextWeight,
		band:       cfg.NeutralBand,
		logger:     logger.WithComponent("sentiment"),
	}
}

// NewDefaultRouter builds the router from configuration
func NewDefaultRouter(cfg Config, logger *logging.Logger) *Router {
	var providers []Provider
	if cfg.FearGreed {
		providers = append(providers, NewFearGreedProvider(cfg.FearGreedURL, cfg.Timeout, cfg.CacheTTL, cfg.NeutralBand))
	}
	providers = append(providers, NewLexicon(cfg.NeutralBand))
	return NewRouter(cfg, logger, providers...)
}

// Read returns the blended reading, or nil when no provider answers
func (r *Router) Read(ctx context.Context, req Request) *signal.SentimentReading {
	var readings []*signal.SentimentReading
	for _, p := range r.providers {
		reading, err := p.Analyze(ctx, req)
		if err != nil {
			if !errors.Is(err, ErrNoInput) {
				r.logger.Warn("Sentiment provider failed", "provider", p.Name(), "error", err)
			}
			continue
		}
		if reading != nil {
			readings = append(readings, reading)
		}
	}

	switch len(readings) {
	case 0:
		return nil
	case 1:
		return readings[0]
	}

	// Blend the first answer with the last one (text)
	first, last := readings[0], readings[len(readings)-1]
	score := first.Score*(1-r.textWeight) + last.Score*r.textWeight
	conf := first.Confidence*(1-r.textWeight) + last.Confidence*r.textWeight
	return &signal.SentimentReading{
		Sentiment:  Label(score, r.band),
		Score:      round3(score),
		Confidence: round3(conf),
		Provider:   first.Provider + "+" + last.Provider,
	}
}
