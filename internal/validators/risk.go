package validators

import (
	"fmt"
	"math"
	"sort"

	"signal-engine/internal/signal"
)

// RiskValidator checks open risk: correlated exposure, daily drawdown and
// position count
type RiskValidator struct {
	cfg Config
}

// NewRiskValidator creates a risk validator
func NewRiskValidator(cfg Config) *RiskValidator {
	return &RiskValidator{cfg: cfg}
}

// Name implements Validator
func (rv *RiskValidator) Name() string { return "risk" }

// Validate implements Validator
func (rv *RiskValidator) Validate(decision signal.Decision, portfolio *signal.Portfolio, ctx *signal.MarketContext) signal.ValidatorResult {
	if portfolio == nil {
		return approve(rv.Name(), "no portfolio snapshot supplied", 50)
	}

	// Check max positions
	open := portfolio.OpenPositions
	if len(portfolio.OpenSymbols) > open {
		open = len(portfolio.OpenSymbols)
	}
	if open >= rv.cfg.MaxPositions {
		return reject(rv.Name(), fmt.Sprintf("max positions reached (%d/%d)", open, rv.cfg.MaxPositions), 95)
	}

	// Check daily drawdown
	drawdown := rv.drawdown(portfolio)
	if drawdown > rv.cfg.DrawdownCap {
		return reject(rv.Name(), fmt.Sprintf("daily drawdown limit reached (%.2f%%)", drawdown*100), 95)
	}

	if portfolio.AccountBalance <= 0 {
		return approve(rv.Name(), "no account balance to measure exposure against", 50)
	}

	symbol := ""
	if ctx != nil {
		symbol = ctx.Symbol
	}
	exposure := rv.correlatedExposure(portfolio, symbol) / portfolio.AccountBalance
	usage := exposure / rv.cfg.ExposureCap

	switch {
	case exposure > rv.cfg.ExposureCap:
		return reject(rv.Name(), fmt.Sprintf("correlated exposure %.2f%% exceeds cap %.2f%%", exposure*100, rv.cfg.ExposureCap*100), 90)
	case usage >= rv.cfg.AttenuationBand:
		return attenuate(rv.Name(), fmt.Sprintf("correlated exposure %.2f%% is %.0f%% of cap", exposure*100, usage*100), 70)
	default:
		return approve(rv.Name(), fmt.Sprintf("correlated exposure %.2f%% within cap", exposure*100), 100*(1-usage))
	}
}

// drawdown returns the worse of the reported drawdown and today's realized loss
func (rv *RiskValidator) drawdown(p *signal.Portfolio) float64 {
	dd := p.CurrentDrawdown
	if p.AccountBalance > 0 && p.DailyPnL < 0 {
		dd = math.Max(dd, -p.DailyPnL/p.AccountBalance)
	}
	return dd
}

// correlatedExposure sums exposure in symbols correlated with symbol. Without
// a per-symbol breakdown the whole book is treated as correlated.
func (rv *RiskValidator) correlatedExposure(p *signal.Portfolio, symbol string) float64 {
	if len(p.Exposures) == 0 || symbol == "" {
		return math.Abs(p.TotalExposure)
	}
	symbols := make([]string, 0, len(p.Exposures))
	for s := range p.Exposures {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	total := 0.0
	for _, s := range symbols {
		if Correlated(symbol, s) {
			total += math.Abs(p.Exposures[s])
		}
	}
	return total
}
