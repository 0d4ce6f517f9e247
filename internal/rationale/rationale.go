// Package rationale turns a decision and its trade plan into a short user
// explanation and a structured audit record. Output is template driven and
// deterministic for identical inputs.
package rationale

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"signal-engine/internal/analysis"
	"signal-engine/internal/confluence"
	"signal-engine/internal/patterns"
	"signal-engine/internal/risk"
	"signal-engine/internal/signal"
)

// MaxConfirmations bounds the technical confirmations listed to the user
const MaxConfirmations = 3

// Input carries everything the generator reads
type Input struct {
	Symbol          string
	Timeframe       string
	Decision        signal.Decision
	Meta            []signal.ValidatorResult
	FinalConfidence float64
	Plan            *risk.Plan
	Pattern         *patterns.Pattern
	PatternAge      int
	Context         *signal.MarketContext
	TickSize        float64
}

// Generator builds rationales
type Generator struct{}

// NewGenerator creates a rationale generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Build returns the user text and the admin record
func (g *Generator) Build(in Input) (string, *AdminRecord) {
	return g.User(in), g.Admin(in)
}

// User composes 3 to 5 sentences in a fixed order: price, pattern,
// confirmations, context, then risk/reward with confidence
func (g *Generator) User(in Input) string {
	prec := Decimals(in.TickSize)
	dir := in.Decision.Direction
	sentences := make([]string, 0, 5)

	if in.Plan != nil {
		sentences = append(sentences, fmt.Sprintf("%s %s on %s at %s with a stop at %s (%s pips).",
			in.Symbol, actionWord(dir), in.Timeframe,
			formatPrice(in.Plan.Entry, prec), formatPrice(in.Plan.StopLoss, prec), trimFloat(in.Plan.StopPips, 1)))
	} else {
		sentences = append(sentences, fmt.Sprintf("%s %s on %s.", in.Symbol, actionWord(dir), in.Timeframe))
	}

	if in.Pattern != nil {
		sentences = append(sentences, patternSentence(*in.Pattern, in.PatternAge))
	}

	if conf := confirmations(in.Decision, in.Pattern != nil); len(conf) > 0 {
		sentences = append(sentences, fmt.Sprintf("Technical confirmations: %s.", strings.Join(conf, ", ")))
	}

	sentences = append(sentences, contextSentence(in, prec))
	sentences = append(sentences, riskSentence(in))

	return strings.Join(sentences, " ")
}

func actionWord(d signal.Direction) string {
	switch d {
	case signal.DirectionBuy:
		return "buy"
	case signal.DirectionSell:
		return "sell"
	default:
		return "hold"
	}
}

func biasWord(d signal.Direction) string {
	switch d {
	case signal.DirectionBuy:
		return "bullish"
	case signal.DirectionSell:
		return "bearish"
	default:
		return "neutral"
	}
}

func patternSentence(p patterns.Pattern, age int) string {
	when := "on the last bar"
	switch {
	case age == 1:
		when = "1 bar ago"
	case age > 1:
		when = fmt.Sprintf("%d bars ago", age)
	}
	return fmt.Sprintf("A %s %s completed %s (strength %.0f).",
		biasWord(p.Direction), analysis.PatternName(p.Kind), when, p.Strength)
}

// confirmations lists the reasons of agreeing voters, strongest first. The
// pattern analyzer is left out when the pattern already has its own sentence.
func confirmations(d signal.Decision, skipPattern bool) []string {
	agreeing := make([]signal.Vote, 0, len(d.Votes))
	for _, v := range d.Agreeing() {
		if v.Reason == "" {
			continue
		}
		if skipPattern && v.Analyzer == signal.AnalyzerPattern {
			continue
		}
		agreeing = append(agreeing, v)
	}
	sort.SliceStable(agreeing, func(i, j int) bool {
		if agreeing[i].Confidence != agreeing[j].Confidence {
			return agreeing[i].Confidence > agreeing[j].Confidence
		}
		return analyzerRank(agreeing[i].Analyzer) < analyzerRank(agreeing[j].Analyzer)
	})
	if len(agreeing) > MaxConfirmations {
		agreeing = agreeing[:MaxConfirmations]
	}
	out := make([]string, 0, len(agreeing))
	for _, v := range agreeing {
		out = append(out, fmt.Sprintf("%s (%s)", v.Reason, v.Analyzer))
	}
	return out
}

func analyzerRank(id signal.AnalyzerID) int {
	for i, a := range signal.AllAnalyzers {
		if a == id {
			return i
		}
	}
	return len(signal.AllAnalyzers)
}

func contextSentence(in Input, prec int) string {
	var parts []string
	ctx := in.Context
	if ctx != nil {
		if ctx.HigherTimeframe != "" && ctx.HigherTrend.IsTrade() {
			parts = append(parts, fmt.Sprintf("the %s trend is %s", ctx.HigherTimeframe, biasWord(ctx.HigherTrend)))
		}
		if lvl, ok := nearestOpposing(ctx, in.Decision.Direction); ok {
			parts = append(parts, fmt.Sprintf("the nearest %s is at %s", lvl.Kind, formatPrice(lvl.Price, prec)))
		}
		if s := ctx.Sentiment; s != nil && s.Sentiment != "" {
			parts = append(parts, fmt.Sprintf("sentiment reads %s (%+.2f)", sentimentWord(s.Sentiment), s.Score))
		}
		if ctx.Guard.Level == signal.GuardCaution && ctx.Guard.Reason != "" {
			parts = append(parts, fmt.Sprintf("timing is cautious (%s)", ctx.Guard.Reason))
		}
	}
	for _, r := range in.Meta {
		if r.Verdict == signal.VerdictAttenuate && r.Validator != "timing" {
			parts = append(parts, fmt.Sprintf("%s check attenuated: %s", r.Validator, r.Reason))
		}
	}
	if len(parts) == 0 {
		return "Context: no opposing higher-timeframe, level or sentiment signal."
	}
	return "Context: " + strings.Join(parts, "; ") + "."
}

func sentimentWord(s string) string {
	switch s {
	case "pos":
		return "positive"
	case "neg":
		return "negative"
	default:
		return "neutral"
	}
}

// nearestOpposing finds the closest level in the trade's path: resistance
// above a buy, support below a sell
func nearestOpposing(ctx *signal.MarketContext, dir signal.Direction) (signal.Level, bool) {
	var best signal.Level
	bestDist := math.Inf(1)
	for _, lvl := range ctx.Levels {
		var dist float64
		switch {
		case dir == signal.DirectionBuy && lvl.Kind == "resistance" && lvl.Price > ctx.Price:
			dist = lvl.Price - ctx.Price
		case dir == signal.DirectionSell && lvl.Kind == "support" && lvl.Price < ctx.Price:
			dist = ctx.Price - lvl.Price
		default:
			continue
		}
		if dist < bestDist {
			best, bestDist = lvl, dist
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

func riskSentence(in Input) string {
	conf := in.FinalConfidence
	label := confluence.ConfidenceLabel(conf)
	grade := confluence.Grade(conf)
	if in.Plan == nil || len(in.Plan.Targets) == 0 {
		return fmt.Sprintf("Confidence is %s at %.1f%% (grade %s).", label, conf, grade)
	}
	last := in.Plan.Targets[len(in.Plan.Targets)-1]
	return fmt.Sprintf("Risk/reward is 1:%s to the first target with %d targets out to %sR; confidence is %s at %.1f%% (grade %s).",
		trimFloat(in.Plan.ExpectedRR, 2), len(in.Plan.Targets), trimFloat(last.RMultiple, 2), label, conf, grade)
}

// Decimals returns the number of decimals needed to print a tick size
func Decimals(tick float64) int {
	if tick <= 0 || math.IsNaN(tick) {
		return 2
	}
	d := 0
	for d < 10 && math.Abs(tick-math.Round(tick)) > 1e-12 {
		tick *= 10
		d++
	}
	return d
}

func formatPrice(p float64, prec int) string {
	return fmt.Sprintf("%.*f", prec, p)
}

// trimFloat prints up to places decimals without trailing zeros
func trimFloat(v float64, places int) string {
	s := fmt.Sprintf("%.*f", places, v)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
