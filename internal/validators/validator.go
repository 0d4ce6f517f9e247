// Package validators implements the Layer-2 meta-validators that approve,
// attenuate or reject a Layer-1 decision.
package validators

import (
	"signal-engine/internal/signal"
)

// Validator inspects a Layer-1 decision against the portfolio and market context
type Validator interface {
	Name() string
	Validate(decision signal.Decision, portfolio *signal.Portfolio, ctx *signal.MarketContext) signal.ValidatorResult
}

// Config holds the Layer-2 thresholds
type Config struct {
	ExposureCap         float64 `json:"exposure_cap" yaml:"exposure_cap" default:"0.05" validate:"gt=0,lte=1"`
	DrawdownCap         float64 `json:"drawdown_cap" yaml:"drawdown_cap" default:"0.03" validate:"gt=0,lte=1"`
	MaxPositions        int     `json:"max_positions" yaml:"max_positions" default:"5" validate:"gte=1"`
	AttenuationBand     float64 `json:"attenuation_band" yaml:"attenuation_band" default:"0.8" validate:"gt=0,lt=1"`
	SRProximity         float64 `json:"sr_proximity" yaml:"sr_proximity" default:"0.003" validate:"gte=0,lt=1"`
	SentimentScore      float64 `json:"sentiment_score" yaml:"sentiment_score" default:"0.5" validate:"gte=0,lte=1"`
	SentimentConfidence float64 `json:"sentiment_confidence" yaml:"sentiment_confidence" default:"0.6" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the standard Layer-2 thresholds
func DefaultConfig() Config {
	return Config{
		ExposureCap:         0.05,
		DrawdownCap:         0.03,
		MaxPositions:        5,
		AttenuationBand:     0.8,
		SRProximity:         0.003,
		SentimentScore:      0.5,
		SentimentConfidence: 0.6,
	}
}

// Chain runs validators in order and stops at the first REJECT
type Chain struct {
	validators []Validator
}

// NewChain creates a chain over the given validators
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// DefaultChain returns risk -> timing -> context
func DefaultChain(cfg Config) *Chain {
	return NewChain(NewRiskValidator(cfg), NewTimingValidator(), NewContextValidator(cfg))
}

// Run validates the decision. The returned slice ends at the first REJECT;
// rejected reports whether that happened.
func (c *Chain) Run(decision signal.Decision, portfolio *signal.Portfolio, ctx *signal.MarketContext) (results []signal.ValidatorResult, rejected bool) {
	for _, v := range c.validators {
		r := v.Validate(decision, portfolio, ctx)
		if r.Validator == "" {
			r.Validator = v.Name()
		}
		results = append(results, r)
		if r.Verdict == signal.VerdictReject {
			return results, true
		}
	}
	return results, false
}

// FinalConfidence multiplies the raw confidence by each validator factor
func FinalConfidence(raw float64, results []signal.ValidatorResult) float64 {
	final := raw
	for _, r := range results {
		final *= r.Verdict.Factor()
	}
	return final
}

func approve(name, reason string, confidence float64) signal.ValidatorResult {
	return signal.ValidatorResult{Validator: name, Verdict: signal.VerdictApprove, Confidence: confidence, Reason: reason}
}

func attenuate(name, reason string, confidence float64) signal.ValidatorResult {
	return signal.ValidatorResult{Validator: name, Verdict: signal.VerdictAttenuate, Confidence: confidence, Reason: reason}
}

func reject(name, reason string, confidence float64) signal.ValidatorResult {
	return signal.ValidatorResult{Validator: name, Verdict: signal.VerdictReject, Confidence: confidence, Reason: reason}
}
