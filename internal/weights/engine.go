package weights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"signal-engine/internal/logging"
	"signal-engine/internal/signal"
)

// Engine is the single writer of the weight vector. Readers call Current and
// keep the returned snapshot for the duration of a request.
type Engine struct {
	cfg    Config
	store  Store
	logger *logging.Logger

	current atomic.Pointer[Snapshot]

	mu      sync.Mutex
	applied map[string]struct{}
}

// NewEngine creates an engine publishing the cold-start snapshot
func NewEngine(cfg Config, store Store, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		cfg:     cfg,
		store:   store,
		logger:  logger.WithComponent("weights"),
		applied: make(map[string]struct{}),
	}
	e.current.Store(NewSnapshot(cfg))
	return e
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Current returns the published snapshot
func (e *Engine) Current() *Snapshot {
	return e.current.Load()
}

// Load restores state at startup. Applied ids always come from the journal;
// the weight vector comes from the weights document, or from a journal replay
// when the document is missing.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	journal, err := e.store.ReadJournal(ctx)
	if err != nil {
		return fmt.Errorf("failed to read outcome journal: %w", err)
	}
	for _, o := range journal {
		e.applied[o.ProposalID] = struct{}{}
	}

	doc, err := e.store.LoadWeights(ctx)
	switch {
	case err == nil:
		e.current.Store(FromDocument(doc, e.cfg))
		e.logger.Info("Loaded weights", "outcomes", doc.Outcomes, "journal", len(journal))
		return nil
	case errors.Is(err, ErrNotFound):
		snap := Replay(journal, e.cfg)
		e.current.Store(snap)
		e.logger.Info("Rebuilt weights from journal", "outcomes", snap.Outcomes)
		if len(journal) > 0 {
			if err := e.store.SaveWeights(ctx, snap.Document()); err != nil {
				e.logger.Warn("Failed to persist replayed weights", "error", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("failed to load weights: %w", err)
	}
}

// Applied reports whether an outcome for the proposal was already recorded
func (e *Engine) Applied(proposalID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.applied[proposalID]
	return ok
}

// Record folds a finalized outcome into the estimator. The journal append
// happens before the weights are flushed and published; a duplicate proposal
// id is a no-op that returns the current snapshot with applied=false.
func (e *Engine) Record(ctx context.Context, o signal.Outcome) (snap *Snapshot, applied bool, err error) {
	if o.ProposalID == "" || !o.Result.Valid() {
		return nil, false, fmt.Errorf("%w: proposal %q result %q", ErrInvalidOutcome, o.ProposalID, o.Result)
	}
	log := logging.WeightsContext(e.logger, o.ProposalID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.applied[o.ProposalID]; dup {
		log.Debug("Duplicate outcome ignored")
		return e.current.Load(), false, nil
	}

	next := e.current.Load().clone()
	next.apply(o, e.cfg)

	if err := e.store.AppendOutcome(ctx, o); err != nil {
		return nil, false, fmt.Errorf("failed to append outcome: %w", err)
	}
	if err := e.store.SaveWeights(ctx, next.Document()); err != nil {
		// The journal is authoritative; a later start replays it
		log.Error("Failed to flush weights", "error", err)
	}

	e.applied[o.ProposalID] = struct{}{}
	e.current.Store(next)
	log.Info("Outcome recorded", "result", o.Result, "outcomes", next.Outcomes, "warm", next.Warm(e.cfg))
	return next, true, nil
}

// SaveProposal persists the record an outcome will later be matched against
func (e *Engine) SaveProposal(ctx context.Context, rec signal.ProposalRecord) error {
	if err := e.store.SaveProposal(ctx, rec); err != nil {
		return fmt.Errorf("failed to save proposal %s: %w", rec.ID, err)
	}
	return nil
}

// LoadProposal returns a persisted proposal record. An unknown id is
// reported as ErrOutcomeUnknown.
func (e *Engine) LoadProposal(ctx context.Context, id string) (*signal.ProposalRecord, error) {
	rec, err := e.store.LoadProposal(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: proposal %s", ErrOutcomeUnknown, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal %s: %w", id, err)
	}
	return rec, nil
}
