package validators

import (
	"signal-engine/internal/signal"
)

// TimingValidator maps the news/time guard status onto a verdict
type TimingValidator struct{}

// NewTimingValidator creates a timing validator
func NewTimingValidator() *TimingValidator {
	return &TimingValidator{}
}

// Name implements Validator
func (tv *TimingValidator) Name() string { return "timing" }

// Validate implements Validator
func (tv *TimingValidator) Validate(decision signal.Decision, portfolio *signal.Portfolio, ctx *signal.MarketContext) signal.ValidatorResult {
	if ctx == nil {
		return approve(tv.Name(), "no timing context", 50)
	}

	reason := ctx.Guard.Reason
	switch ctx.Guard.Level {
	case signal.GuardBlackout:
		if reason == "" {
			reason = "trading blackout"
		}
		return reject(tv.Name(), reason, 100)
	case signal.GuardCaution:
		if reason == "" {
			reason = "reduced liquidity window"
		}
		return attenuate(tv.Name(), reason, 70)
	default:
		return approve(tv.Name(), "no scheduled risk", 90)
	}
}
