// Package weights maintains the adaptive Layer-1 analyzer weights: a running
// exponentially weighted precision per analyzer, turned into a bounded weight
// vector that is published atomically and rebuilt from the outcome journal.
package weights

import (
	"errors"
	"math"
	"time"

	"signal-engine/internal/signal"
)

var (
	// ErrOutcomeUnknown is returned for an outcome whose proposal was never emitted
	ErrOutcomeUnknown = errors.New("outcome_unknown")
	// ErrInvalidOutcome is returned for an outcome missing its id or result
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// Config holds the precision estimator and weight mapping parameters
type Config struct {
	Alpha            float64 `json:"alpha" yaml:"alpha" default:"0.05" validate:"gt=0,lt=1"`
	Gamma            float64 `json:"gamma" yaml:"gamma" default:"1.5" validate:"gt=0"`
	WMin             float64 `json:"w_min" yaml:"w_min" default:"0.1" validate:"gt=0"`
	WMax             float64 `json:"w_max" yaml:"w_max" default:"2.5" validate:"gtfield=WMin"`
	WRef             float64 `json:"w_ref" yaml:"w_ref" default:"1" validate:"gt=0"`
	MinSamples       int     `json:"min_samples" yaml:"min_samples" default:"20" validate:"gte=0"`
	InitialPrecision float64 `json:"initial_precision" yaml:"initial_precision" default:"0.5" validate:"gt=0,lt=1"`
	Store            string  `json:"store" yaml:"store" default:"file" validate:"oneof=file postgres memory"`
	DataDir          string  `json:"data_dir" yaml:"data_dir" default:"data"`
}

// DefaultConfig returns the standard estimator parameters
func DefaultConfig() Config {
	return Config{
		Alpha:            0.05,
		Gamma:            1.5,
		WMin:             0.1,
		WMax:             2.5,
		WRef:             1.0,
		MinSamples:       20,
		InitialPrecision: 0.5,
		Store:            "file",
		DataDir:          "data",
	}
}

// Snapshot is one immutable published state of the estimator. Readers must
// not modify it.
type Snapshot struct {
	Weights      map[signal.AnalyzerID]float64 `json:"weights"`
	Precision    map[signal.AnalyzerID]float64 `json:"precision"`
	SampleCounts map[signal.AnalyzerID]int     `json:"sample_counts"`
	Outcomes     int                           `json:"outcomes"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}

// NewSnapshot returns the cold-start state: uniform weights, initial precision
func NewSnapshot(cfg Config) *Snapshot {
	s := &Snapshot{
		Weights:      make(map[signal.AnalyzerID]float64, len(signal.AllAnalyzers)),
		Precision:    make(map[signal.AnalyzerID]float64, len(signal.AllAnalyzers)),
		SampleCounts: make(map[signal.AnalyzerID]int, len(signal.AllAnalyzers)),
	}
	for _, id := range signal.AllAnalyzers {
		s.Weights[id] = cfg.WRef
		s.Precision[id] = cfg.InitialPrecision
		s.SampleCounts[id] = 0
	}
	return s
}

func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		Weights:      make(map[signal.AnalyzerID]float64, len(s.Weights)),
		Precision:    make(map[signal.AnalyzerID]float64, len(s.Precision)),
		SampleCounts: make(map[signal.AnalyzerID]int, len(s.SampleCounts)),
		Outcomes:     s.Outcomes,
		UpdatedAt:    s.UpdatedAt,
	}
	for k, v := range s.Weights {
		c.Weights[k] = v
	}
	for k, v := range s.Precision {
		c.Precision[k] = v
	}
	for k, v := range s.SampleCounts {
		c.SampleCounts[k] = v
	}
	return c
}

// Layer1 returns a copy of the Layer-1 weight vector
func (s *Snapshot) Layer1() map[signal.AnalyzerID]float64 {
	out := make(map[signal.AnalyzerID]float64, len(s.Weights))
	for k, v := range s.Weights {
		out[k] = v
	}
	return out
}

// Warm reports whether every analyzer has reached the sample threshold
func (s *Snapshot) Warm(cfg Config) bool {
	for _, id := range signal.AllAnalyzers {
		if !s.warm(id, cfg) {
			return false
		}
	}
	return true
}

// WarmAnalyzers lists the analyzers past the sample threshold, in canonical order
func (s *Snapshot) WarmAnalyzers(cfg Config) []signal.AnalyzerID {
	var ids []signal.AnalyzerID
	for _, id := range signal.AllAnalyzers {
		if s.warm(id, cfg) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Snapshot) warm(id signal.AnalyzerID, cfg Config) bool {
	return s.SampleCounts[id] >= cfg.MinSamples
}

// Document is the persisted weights.v1 layout
type Document struct {
	Vector       map[string]map[signal.AnalyzerID]float64 `json:"vector"`
	UpdatedAt    time.Time                                `json:"updated_at"`
	SampleCounts map[signal.AnalyzerID]int                `json:"sample_counts"`
	Precision    map[signal.AnalyzerID]float64            `json:"precision"`
	Outcomes     int                                      `json:"outcomes"`
}

// Document converts the snapshot to its persisted layout
func (s *Snapshot) Document() *Document {
	c := s.clone()
	return &Document{
		Vector:       map[string]map[signal.AnalyzerID]float64{signal.LayerL1: c.Weights},
		UpdatedAt:    c.UpdatedAt,
		SampleCounts: c.SampleCounts,
		Precision:    c.Precision,
		Outcomes:     c.Outcomes,
	}
}

// FromDocument restores a snapshot, filling analyzers the document lacks with
// cold-start values
func FromDocument(doc *Document, cfg Config) *Snapshot {
	s := NewSnapshot(cfg)
	if doc == nil {
		return s
	}
	for id, w := range doc.Vector[signal.LayerL1] {
		s.Weights[id] = w
	}
	for id, p := range doc.Precision {
		s.Precision[id] = p
	}
	for id, n := range doc.SampleCounts {
		s.SampleCounts[id] = n
	}
	s.Outcomes = doc.Outcomes
	s.UpdatedAt = doc.UpdatedAt
	return s
}

// Sample is one labeled analyzer observation
type Sample struct {
	Analyzer  signal.AnalyzerID
	Direction signal.Direction
	Correct   bool
}

// Label turns an outcome into per-analyzer samples. A vote with the proposal
// is correct on WIN and incorrect on LOSS; an opposing vote is the reverse.
// HOLD votes and BREAKEVEN outcomes produce no samples.
func Label(o signal.Outcome) []Sample {
	if o.Result == signal.ResultBreakeven || !o.Direction.IsTrade() {
		return nil
	}
	win := o.Result == signal.ResultWin
	var samples []Sample
	for _, v := range o.Votes {
		if !v.Direction.IsTrade() || !v.Analyzer.Valid() {
			continue
		}
		agrees := v.Direction == o.Direction
		samples = append(samples, Sample{
			Analyzer:  v.Analyzer,
			Direction: v.Direction,
			Correct:   agrees == win,
		})
	}
	return samples
}

// apply folds one outcome into the snapshot in place
func (s *Snapshot) apply(o signal.Outcome, cfg Config) {
	s.Outcomes++
	if !o.ClosedAt.IsZero() {
		s.UpdatedAt = o.ClosedAt
	}

	samples := Label(o)
	if len(samples) == 0 {
		return
	}
	for _, smp := range samples {
		x := 0.0
		if smp.Correct {
			x = 1
		}
		s.Precision[smp.Analyzer] = (1-cfg.Alpha)*s.Precision[smp.Analyzer] + cfg.Alpha*x
		s.SampleCounts[smp.Analyzer]++
	}
	s.reweight(cfg)
}

// reweight maps precision to weights per analyzer. An analyzer below the
// sample threshold stays at w_ref and is left out of the mean; warm analyzers
// get w = clip(w_ref * (p / mean p_warm)^gamma, w_min, w_max).
func (s *Snapshot) reweight(cfg Config) {
	warm := s.WarmAnalyzers(cfg)

	mean := 0.0
	for _, id := range warm {
		mean += s.Precision[id]
	}
	if len(warm) > 0 {
		mean /= float64(len(warm))
	}

	for _, id := range signal.AllAnalyzers {
		if !s.warm(id, cfg) || mean <= 0 {
			s.Weights[id] = cfg.WRef
			continue
		}
		w := cfg.WRef * math.Pow(s.Precision[id]/mean, cfg.Gamma)
		s.Weights[id] = math.Max(cfg.WMin, math.Min(cfg.WMax, w))
	}
}

// Replay rebuilds the estimator from an outcome stream, starting from the
// cold-start state. Duplicate proposal ids after the first are ignored.
func Replay(outcomes []signal.Outcome, cfg Config) *Snapshot {
	s := NewSnapshot(cfg)
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		if _, dup := seen[o.ProposalID]; dup {
			continue
		}
		seen[o.ProposalID] = struct{}{}
		s.apply(o, cfg)
	}
	return s
}
