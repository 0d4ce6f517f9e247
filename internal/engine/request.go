package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"signal-engine/internal/market"
	"signal-engine/internal/signal"
)

// ErrInvalidRequest wraps request validation failures
var ErrInvalidRequest = errors.New("invalid request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("timeframe", func(fl validator.FieldLevel) bool {
		return market.Timeframe(fl.Field().String()).Valid()
	})
	return v
}

// Request is a generate-signal request
type Request struct {
	Symbol         string            `json:"symbol" validate:"required,min=3,max=20,alphanum"`
	Timeframes     []string          `json:"timeframes,omitempty" validate:"omitempty,max=8,dive,timeframe"`
	Timeframe      string            `json:"timeframe,omitempty" validate:"omitempty,timeframe"`
	CurrentPrice   *float64          `json:"current_price,omitempty" validate:"omitempty,gt=0"`
	EnforceMaxStop *bool             `json:"enforce_max_stop,omitempty" default:"true"`
	MaxStopPips    float64           `json:"max_stop_pips,omitempty" validate:"gte=0"`
	MinAgents      int               `json:"min_agents,omitempty" validate:"gte=0,lte=5"`
	MinConfidence  *float64          `json:"min_confidence,omitempty" validate:"omitempty,gte=0,lte=100"`
	AsOf           *time.Time        `json:"as_of,omitempty"`
	ContextText    string            `json:"context_text,omitempty" validate:"max=4096"`
	Portfolio      *signal.Portfolio `json:"portfolio,omitempty"`
}

// symbolSeparators are dropped from symbols so EUR/USD and BTC-USDT resolve
// to their exchange form
var symbolSeparators = strings.NewReplacer("/", "", "-", "", "_", "", ".", "")

// normalize applies defaults from cfg and validates the request
func (r *Request) normalize(cfg Config) error {
	if err := defaults.Set(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Symbol = symbolSeparators.Replace(strings.ToUpper(strings.TrimSpace(r.Symbol)))
	if len(r.Timeframes) == 0 {
		r.Timeframes = append([]string(nil), cfg.Timeframes...)
	}
	if r.Timeframe == "" {
		r.Timeframe = primaryOf(r.Timeframes, cfg.PrimaryTimeframe)
	}
	if !contains(r.Timeframes, r.Timeframe) {
		r.Timeframes = append(r.Timeframes, r.Timeframe)
	}
	if r.MinAgents == 0 {
		r.MinAgents = cfg.MinAgents
	}
	if r.MinConfidence == nil {
		mc := cfg.MinConfidence
		r.MinConfidence = &mc
	}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// primaryOf picks the preferred timeframe when requested, otherwise the
// shortest requested timeframe
func primaryOf(timeframes []string, preferred string) string {
	if contains(timeframes, preferred) {
		return preferred
	}
	best := ""
	for _, tf := range timeframes {
		d := market.Timeframe(tf).Duration()
		if d > 0 && (best == "" || d < market.Timeframe(best).Duration()) {
			best = tf
		}
	}
	if best == "" {
		return preferred
	}
	return best
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "timeframe":
		return fmt.Sprintf("%s has unknown timeframe %q", field, fe.Value())
	case "min", "gte", "gt":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte", "lt":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// WeightedVote is a Layer-1 vote with the weight it carried
type WeightedVote struct {
	signal.Vote
	Weight float64 `json:"weight"`
}

// Layer1Report is the per-analyzer view returned with every response that
// reached aggregation
type Layer1Report struct {
	Direction     signal.Direction             `json:"direction"`
	RawConfidence float64                      `json:"raw_confidence"`
	AgreeingCount int                          `json:"agreeing_count"`
	WeightedScore float64                      `json:"weighted_score"`
	Margin        float64                      `json:"margin"`
	Scores        map[signal.Direction]float64 `json:"scores"`
	Votes         []WeightedVote               `json:"votes"`
}

func newLayer1Report(d signal.Decision) *Layer1Report {
	r := &Layer1Report{
		Direction:     d.Direction,
		RawConfidence: d.RawConfidence,
		AgreeingCount: d.AgreeingCount,
		WeightedScore: d.WeightedScore,
		Margin:        d.Margin,
		Scores:        d.Scores,
		Votes:         make([]WeightedVote, 0, len(d.Votes)),
	}
	for _, v := range d.Votes {
		w, ok := d.Weights[v.Analyzer]
		if !ok {
			w = 1
		}
		r.Votes = append(r.Votes, WeightedVote{Vote: v, Weight: w})
	}
	return r
}

// Response is the generate-signal result. Logical failures set Success=false
// with Kind, Layer and Reason; they are never returned as Go errors.
type Response struct {
	Success   bool                     `json:"success"`
	Kind      signal.FailureKind       `json:"kind,omitempty"`
	Layer     string                   `json:"layer,omitempty"`
	Reason    string                   `json:"reason,omitempty"`
	TraceID   string                   `json:"trace_id"`
	Symbol    string                   `json:"symbol"`
	Timeframe string                   `json:"timeframe,omitempty"`
	Direction signal.Direction         `json:"direction"`
	AsOf      time.Time                `json:"as_of"`
	Proposal  *signal.Proposal         `json:"proposal,omitempty"`
	Layer1    *Layer1Report            `json:"layer1,omitempty"`
	Layer2    []signal.ValidatorResult `json:"layer2,omitempty"`
	Guard     *signal.GuardStatus      `json:"guard,omitempty"`
	Duration  time.Duration            `json:"duration_ns"`
}

// ExitCode maps a response to a CLI exit status: 0 success, 1 failure, 2 timeout
func ExitCode(resp *Response) int {
	switch {
	case resp == nil:
		return 1
	case resp.Success:
		return 0
	case resp.Kind == signal.KindTimeout:
		return 2
	default:
		return 1
	}
}

// OutcomeRequest reports how an emitted proposal closed
type OutcomeRequest struct {
	ProposalID string                `json:"proposal_id" validate:"required,max=64"`
	Result     signal.OutcomeResult  `json:"result" validate:"required,oneof=WIN LOSS BREAKEVEN"`
	PnLPips    float64               `json:"pnl_pips"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
	Votes      []signal.VoteSnapshot `json:"votes_snapshot,omitempty" validate:"omitempty,max=5"`
}

func (r *OutcomeRequest) check() error {
	r.Result = signal.OutcomeResult(strings.ToUpper(string(r.Result)))
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidRequest, fieldMessage(verrs[0]))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// OutcomeResponse carries the precision stats and the published weight vector
// after an outcome was recorded
type OutcomeResponse struct {
	ProposalID   string                        `json:"proposal_id"`
	Applied      bool                          `json:"applied"`
	Weights      map[signal.AnalyzerID]float64 `json:"weights"`
	Precision    map[signal.AnalyzerID]float64 `json:"precision"`
	SampleCounts map[signal.AnalyzerID]int     `json:"sample_counts"`
	Outcomes     int                           `json:"outcomes"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}
