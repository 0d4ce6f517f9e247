package rationale

import (
	"signal-engine/internal/analysis"
	"signal-engine/internal/confluence"
	"signal-engine/internal/signal"
)

// AdminRecord is the audit view of one decision
type AdminRecord struct {
	Symbol          string                       `json:"symbol"`
	Timeframe       string                       `json:"timeframe"`
	Direction       signal.Direction             `json:"direction"`
	Votes           []VoteRecord                 `json:"votes"`
	Scores          map[signal.Direction]float64 `json:"scores"`
	WeightedScore   float64                      `json:"weighted_score"`
	Margin          float64                      `json:"margin"`
	AgreeingCount   int                          `json:"agreeing_count"`
	RawConfidence   float64                      `json:"raw_confidence"`
	Meta            []MetaRecord                 `json:"meta"`
	MetaFactor      float64                      `json:"meta_factor"`
	FinalConfidence float64                      `json:"final_confidence"`
	Grade           string                       `json:"grade"`
	Pattern         *PatternRecord               `json:"pattern,omitempty"`
	Stop            *StopMath                    `json:"stop,omitempty"`
	Sizing          *SizingMath                  `json:"sizing,omitempty"`
	Targets         []signal.Target              `json:"targets,omitempty"`
}

// VoteRecord is one analyzer vote with the weight it carried
type VoteRecord struct {
	Analyzer   signal.AnalyzerID      `json:"analyzer"`
	Direction  signal.Direction       `json:"direction"`
	Confidence float64                `json:"confidence"`
	Weight     float64                `json:"weight"`
	Weighted   float64                `json:"weighted"`
	Reason     string                 `json:"reason"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
}

// MetaRecord is one Layer-2 validator result with its multiplier
type MetaRecord struct {
	Validator  string             `json:"validator"`
	Verdict    signal.MetaVerdict `json:"verdict"`
	Factor     float64            `json:"factor"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason"`
}

// PatternRecord describes the dominant pattern
type PatternRecord struct {
	Name        string           `json:"name"`
	Family      string           `json:"family"`
	Direction   signal.Direction `json:"direction"`
	Strength    float64          `json:"strength"`
	AnchorPrice float64          `json:"anchor_price"`
	BarsAgo     int              `json:"bars_ago"`
}

// StopMath records how the stop was placed
type StopMath struct {
	Entry         float64 `json:"entry"`
	StopLoss      float64 `json:"stop_loss"`
	ATR           float64 `json:"atr"`
	ATRDistance   float64 `json:"atr_distance"`
	PivotDistance float64 `json:"pivot_distance"`
	StopDistance  float64 `json:"stop_distance"`
	StopPips      float64 `json:"stop_pips"`
	MaxStopPips   float64 `json:"max_stop_pips"`
	Capped        bool    `json:"capped"`
	AssetClass    string  `json:"asset_class"`
}

// SizingMath records the Kelly inputs and result
type SizingMath struct {
	WinProbability   float64 `json:"win_probability"`
	RewardRisk       float64 `json:"reward_risk"`
	Kelly            float64 `json:"kelly"`
	VolatilityScalar float64 `json:"volatility_scalar"`
	SizeFraction     float64 `json:"size_fraction"`
}

// Admin builds the audit record
func (g *Generator) Admin(in Input) *AdminRecord {
	d := in.Decision
	rec := &AdminRecord{
		Symbol:          in.Symbol,
		Timeframe:       in.Timeframe,
		Direction:       d.Direction,
		Votes:           make([]VoteRecord, 0, len(d.Votes)),
		Scores:          make(map[signal.Direction]float64, len(d.Scores)),
		WeightedScore:   d.WeightedScore,
		Margin:          d.Margin,
		AgreeingCount:   d.AgreeingCount,
		RawConfidence:   d.RawConfidence,
		Meta:            make([]MetaRecord, 0, len(in.Meta)),
		MetaFactor:      1,
		FinalConfidence: in.FinalConfidence,
		Grade:           confluence.Grade(in.FinalConfidence),
	}
	for k, v := range d.Scores {
		rec.Scores[k] = v
	}

	for _, v := range d.Votes {
		w, ok := d.Weights[v.Analyzer]
		if !ok || w <= 0 {
			w = 1
		}
		weighted := 0.0
		if v.Direction.IsTrade() {
			weighted = w * v.Confidence
		}
		rec.Votes = append(rec.Votes, VoteRecord{
			Analyzer:   v.Analyzer,
			Direction:  v.Direction,
			Confidence: v.Confidence,
			Weight:     w,
			Weighted:   weighted,
			Reason:     v.Reason,
			Evidence:   v.Evidence,
		})
	}

	for _, r := range in.Meta {
		f := r.Verdict.Factor()
		rec.MetaFactor *= f
		rec.Meta = append(rec.Meta, MetaRecord{
			Validator:  r.Validator,
			Verdict:    r.Verdict,
			Factor:     f,
			Confidence: r.Confidence,
			Reason:     r.Reason,
		})
	}

	if p := in.Pattern; p != nil {
		rec.Pattern = &PatternRecord{
			Name:        analysis.PatternName(p.Kind),
			Family:      string(p.Family),
			Direction:   p.Direction,
			Strength:    p.Strength,
			AnchorPrice: p.AnchorPrice,
			BarsAgo:     in.PatternAge,
		}
	}

	if pl := in.Plan; pl != nil {
		rec.Stop = &StopMath{
			Entry:         pl.Entry,
			StopLoss:      pl.StopLoss,
			ATR:           pl.ATR,
			ATRDistance:   pl.ATRDistance,
			PivotDistance: pl.PivotDistance,
			StopDistance:  pl.StopDistance,
			StopPips:      pl.StopPips,
			MaxStopPips:   pl.MaxStopPips,
			Capped:        pl.StopCapped,
			AssetClass:    string(pl.Class),
		}
		rec.Sizing = &SizingMath{
			WinProbability:   pl.WinProb,
			RewardRisk:       pl.ExpectedRR,
			Kelly:            pl.Kelly,
			VolatilityScalar: pl.VolScalar,
			SizeFraction:     pl.SizeFraction,
		}
		rec.Targets = append([]signal.Target(nil), pl.Targets...)
	}
	return rec
}
