// Package signal holds the domain records shared by every pipeline stage:
// votes, decisions, validator results, proposals and outcomes.
package signal

import (
	"time"
)

// Direction is a trade direction or abstention
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Opposite returns the opposing trade direction; HOLD maps to HOLD
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	default:
		return DirectionHold
	}
}

// Sign returns +1 for BUY, -1 for SELL and 0 for HOLD
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	default:
		return 0
	}
}

// IsTrade reports BUY or SELL
func (d Direction) IsTrade() bool {
	return d == DirectionBuy || d == DirectionSell
}

// AnalyzerID tags one of the five Layer-1 analyzers
type AnalyzerID string

const (
	AnalyzerTrend      AnalyzerID = "trend"
	AnalyzerMomentum   AnalyzerID = "momentum"
	AnalyzerVolatility AnalyzerID = "volatility"
	AnalyzerPattern    AnalyzerID = "pattern"
	AnalyzerVolume     AnalyzerID = "volume"
)

// AllAnalyzers lists analyzer ids in their canonical order
var AllAnalyzers = []AnalyzerID{AnalyzerTrend, AnalyzerMomentum, AnalyzerVolatility, AnalyzerPattern, AnalyzerVolume}

// Valid reports whether id is one of the five analyzers
func (id AnalyzerID) Valid() bool {
	for _, a := range AllAnalyzers {
		if a == id {
			return true
		}
	}
	return false
}

// Layer names used in weight vectors and failure responses
const (
	LayerL1      = "L1"
	LayerL2      = "L2"
	LayerData    = "data"
	LayerTimeout = "timeout"
)

// ReasonInsufficientHistory is the reason attached to HOLD@0 votes
const ReasonInsufficientHistory = "insufficient_history"

// MaxConfidence is the analyzer confidence ceiling
const MaxConfidence = 95.0

// Vote is one analyzer's opinion on the frame
type Vote struct {
	Analyzer   AnalyzerID             `json:"analyzer"`
	Direction  Direction              `json:"direction"`
	Confidence float64                `json:"confidence"`
	Reason     string                 `json:"reason"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
}

// Hold returns a HOLD vote
func Hold(id AnalyzerID, confidence float64, reason string) Vote {
	return Vote{Analyzer: id, Direction: DirectionHold, Confidence: confidence, Reason: reason}
}

// InsufficientHistory returns the HOLD@0 vote for missing indicator data
func InsufficientHistory(id AnalyzerID) Vote {
	return Hold(id, 0, ReasonInsufficientHistory)
}

// Decision is the Layer-1 aggregate
type Decision struct {
	Direction     Direction              `json:"direction"`
	RawConfidence float64                `json:"raw_confidence"`
	AgreeingCount int                    `json:"agreeing_count"`
	WeightedScore float64                `json:"weighted_score"`
	Scores        map[Direction]float64  `json:"scores"`
	Margin        float64                `json:"margin"`
	Votes         []Vote                 `json:"votes"`
	Weights       map[AnalyzerID]float64 `json:"weights"`
}

// Agreeing returns the analyzers voting with the decision direction
func (d Decision) Agreeing() []Vote {
	var out []Vote
	for _, v := range d.Votes {
		if d.Direction.IsTrade() && v.Direction == d.Direction {
			out = append(out, v)
		}
	}
	return out
}

// MetaVerdict is a Layer-2 validator outcome
type MetaVerdict string

const (
	VerdictApprove   MetaVerdict = "APPROVE"
	VerdictAttenuate MetaVerdict = "ATTENUATE"
	VerdictReject    MetaVerdict = "REJECT"
)

// AttenuationFactor is the multiplier applied for ATTENUATE
const AttenuationFactor = 0.8

// Factor returns the confidence multiplier for the verdict
func (v MetaVerdict) Factor() float64 {
	switch v {
	case VerdictApprove:
		return 1
	case VerdictAttenuate:
		return AttenuationFactor
	default:
		return 0
	}
}

// ValidatorResult is one Layer-2 validator's answer
type ValidatorResult struct {
	Validator  string      `json:"validator"`
	Verdict    MetaVerdict `json:"verdict"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`
}

// Portfolio is a caller-supplied read-only snapshot
type Portfolio struct {
	TotalExposure   float64            `json:"total_exposure"`
	OpenSymbols     []string           `json:"open_symbols"`
	Exposures       map[string]float64 `json:"exposures,omitempty"` // per-symbol exposure in account currency
	CurrentDrawdown float64            `json:"current_drawdown"`    // fraction of balance, e.g. 0.02
	AccountBalance  float64            `json:"account_balance"`
	DailyPnL        float64            `json:"daily_pnl"`
	OpenPositions   int                `json:"open_positions"`
}

// GuardLevel is the news/time guard status
type GuardLevel string

const (
	GuardOK       GuardLevel = "OK"
	GuardCaution  GuardLevel = "CAUTION"
	GuardBlackout GuardLevel = "BLACKOUT"
)

// GuardStatus is the guard's answer for (time, symbol)
type GuardStatus struct {
	Level      GuardLevel `json:"status"`
	Reason     string     `json:"reason"`
	NextSafeAt time.Time  `json:"next_safe_at"`
}

// SentimentReading is the optional sentiment collaborator answer
type SentimentReading struct {
	Sentiment  string  `json:"sentiment"` // pos, neg, neu
	Score      float64 `json:"score"`     // [-1, 1]
	Confidence float64 `json:"confidence"`
	Provider   string  `json:"provider"`
}

// Level is a support or resistance price level
type Level struct {
	Price    float64 `json:"price"`
	Kind     string  `json:"kind"` // support, resistance
	Touches  int     `json:"touches"`
	Strength float64 `json:"strength"`
}

// MarketContext is the Layer-2 view of the market around the decision
type MarketContext struct {
	Symbol          string            `json:"symbol"`
	Timestamp       time.Time         `json:"timestamp"`
	Price           float64           `json:"price"`
	ATR             float64           `json:"atr"`
	HigherTimeframe string            `json:"higher_timeframe,omitempty"`
	HigherTrend     Direction         `json:"higher_trend,omitempty"`
	Levels          []Level           `json:"levels,omitempty"`
	Sentiment       *SentimentReading `json:"sentiment,omitempty"`
	Guard           GuardStatus       `json:"guard"`
}

// Target is one rung of the take-profit ladder
type Target struct {
	Price      float64 `json:"price"`
	RMultiple  float64 `json:"r_multiple"`
	Allocation float64 `json:"allocation"`
}

// TrailPlan describes stop management after entry
type TrailPlan struct {
	BreakEvenAt float64 `json:"break_even_at"` // price at which SL moves to entry
	TrailATR    float64 `json:"trail_atr"`     // ATR multiple trailed after break-even
	TrailBy     float64 `json:"trail_by"`      // absolute trail distance
}

// Proposal is an emitted trade recommendation
type Proposal struct {
	ID                  string      `json:"id"`
	Symbol              string      `json:"symbol"`
	Timeframe           string      `json:"timeframe"`
	Direction           Direction   `json:"direction"`
	Entry               float64     `json:"entry"`
	StopLoss            float64     `json:"stop_loss"`
	StopPips            float64     `json:"stop_pips"`
	Targets             []Target    `json:"targets"`
	ExpectedRR          float64     `json:"expected_rr"`
	SizeFraction        float64     `json:"size_fraction"`
	ConfidenceAfterMeta float64     `json:"confidence_after_meta"`
	RationaleUser       string      `json:"rationale_user"`
	RationaleAdmin      interface{} `json:"rationale_admin"`
	TrailPlan           TrailPlan   `json:"trail_plan"`
	Votes               []Vote      `json:"votes"`
	CreatedAt           time.Time   `json:"created_at"`
	ExpiresAt           time.Time   `json:"expires_at"`
}

// OutcomeResult is the realized result of a proposal
type OutcomeResult string

const (
	ResultWin       OutcomeResult = "WIN"
	ResultLoss      OutcomeResult = "LOSS"
	ResultBreakeven OutcomeResult = "BREAKEVEN"
)

// Valid reports a known result
func (r OutcomeResult) Valid() bool {
	return r == ResultWin || r == ResultLoss || r == ResultBreakeven
}

// VoteSnapshot is the per-analyzer direction recorded with a proposal
type VoteSnapshot struct {
	Analyzer   AnalyzerID `json:"analyzer"`
	Direction  Direction  `json:"direction"`
	Confidence float64    `json:"confidence"`
}

// Snapshots converts votes into outcome snapshots
func Snapshots(votes []Vote) []VoteSnapshot {
	out := make([]VoteSnapshot, 0, len(votes))
	for _, v := range votes {
		out = append(out, VoteSnapshot{Analyzer: v.Analyzer, Direction: v.Direction, Confidence: v.Confidence})
	}
	return out
}

// Outcome is a finalized, immutable outcome record
type Outcome struct {
	ProposalID string         `json:"proposal_id"`
	Symbol     string         `json:"symbol,omitempty"`
	Direction  Direction      `json:"direction"`
	Result     OutcomeResult  `json:"result"`
	PnLPips    float64        `json:"pnl_pips"`
	ClosedAt   time.Time      `json:"closed_at"`
	Votes      []VoteSnapshot `json:"votes"`
}

// ProposalRecord is the registry entry kept for outcome matching
type ProposalRecord struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Direction Direction      `json:"direction"`
	Votes     []VoteSnapshot `json:"votes"`
	CreatedAt time.Time      `json:"created_at"`
}

// FailureKind classifies a logical pipeline failure
type FailureKind string

const (
	KindDataMissing           FailureKind = "data_missing"
	KindInsufficientHistory   FailureKind = "insufficient_history"
	KindStopUnsafe            FailureKind = "stop_unsafe"
	KindValidatorReject       FailureKind = "validator_reject"
	KindTimeout               FailureKind = "timeout"
	KindOutcomeUnknown        FailureKind = "outcome_unknown"
	KindInternal              FailureKind = "internal"
	KindInvalidRequest        FailureKind = "invalid_request"
	KindInsufficientAgreement FailureKind = "insufficient_agreement"
	KindLowConfidence         FailureKind = "low_confidence"
	KindNoConsensus           FailureKind = "no_consensus"
)
