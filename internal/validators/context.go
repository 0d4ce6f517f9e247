package validators

import (
	"fmt"
	"math"
	"strings"

	"signal-engine/internal/signal"
)

// ContextValidator checks the decision against the higher-timeframe trend,
// nearby opposing support/resistance and external sentiment
type ContextValidator struct {
	cfg Config
}

// NewContextValidator creates a context validator
func NewContextValidator(cfg Config) *ContextValidator {
	return &ContextValidator{cfg: cfg}
}

// Name implements Validator
func (cv *ContextValidator) Name() string { return "context" }

// Validate implements Validator
func (cv *ContextValidator) Validate(decision signal.Decision, portfolio *signal.Portfolio, ctx *signal.MarketContext) signal.ValidatorResult {
	if ctx == nil || !decision.Direction.IsTrade() {
		return approve(cv.Name(), "no market context", 50)
	}
	dir := decision.Direction

	if ctx.HigherTrend.IsTrade() && ctx.HigherTrend == dir.Opposite() {
		tf := ctx.HigherTimeframe
		if tf == "" {
			tf = "higher timeframe"
		}
		return reject(cv.Name(), fmt.Sprintf("%s trend is %s against a %s signal", tf, ctx.HigherTrend, dir), 85)
	}

	var cautions []string
	if lvl, ok := cv.opposingLevel(dir, ctx); ok {
		cautions = append(cautions, fmt.Sprintf("%s at %.5g within %.2f%%", lvl.Kind, lvl.Price, cv.cfg.SRProximity*100))
	}
	if s := ctx.Sentiment; s != nil && cv.opposingSentiment(dir, s) {
		cautions = append(cautions, fmt.Sprintf("%s sentiment %.2f (confidence %.2f)", s.Sentiment, s.Score, s.Confidence))
	}
	if len(cautions) > 0 {
		return attenuate(cv.Name(), strings.Join(cautions, "; "), 65)
	}

	if ctx.HigherTrend == dir {
		return approve(cv.Name(), "higher timeframe trend agrees", 90)
	}
	return approve(cv.Name(), "no opposing context", 75)
}

// opposingLevel finds resistance just above price for a BUY or support just
// below price for a SELL
func (cv *ContextValidator) opposingLevel(dir signal.Direction, ctx *signal.MarketContext) (signal.Level, bool) {
	if ctx.Price <= 0 {
		return signal.Level{}, false
	}
	band := cv.cfg.SRProximity * ctx.Price
	for _, lvl := range ctx.Levels {
		dist := lvl.Price - ctx.Price
		if dir == signal.DirectionBuy && lvl.Kind == "resistance" && dist >= 0 && dist <= band {
			return lvl, true
		}
		if dir == signal.DirectionSell && lvl.Kind == "support" && dist <= 0 && -dist <= band {
			return lvl, true
		}
	}
	return signal.Level{}, false
}

func (cv *ContextValidator) opposingSentiment(dir signal.Direction, s *signal.SentimentReading) bool {
	if math.Abs(s.Score) < cv.cfg.SentimentScore || s.Confidence < cv.cfg.SentimentConfidence {
		return false
	}
	return (dir == signal.DirectionBuy && s.Score < 0) || (dir == signal.DirectionSell && s.Score > 0)
}
