package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-engine/internal/signal"
)

// NewTrailPlan moves the stop to break-even at the first target and trails by
// trailATR x ATR afterwards
func NewTrailPlan(firstTarget, atr, trailATR, tick float64) signal.TrailPlan {
	return signal.TrailPlan{
		BreakEvenAt: firstTarget,
		TrailATR:    trailATR,
		TrailBy:     snap(decimal.NewFromFloat(trailATR*atr), tick, roundNearest).InexactFloat64(),
	}
}

// TrailState tracks one proposal's stop as price evolves under its trail plan
type TrailState struct {
	ProposalID       string
	Direction        signal.Direction
	Entry            float64
	CurrentStopLoss  float64
	OriginalStopLoss float64
	HighWaterMark    float64 // Highest price since entry (for longs)
	LowWaterMark     float64 // Lowest price since entry (for shorts)
	BreakEven        bool    // Whether the stop has moved to entry
	Plan             signal.TrailPlan
	ExpiresAt        time.Time // Zero means the state never expires
}

func (st *TrailState) expired(now time.Time) bool {
	return !st.ExpiresAt.IsZero() && !now.Before(st.ExpiresAt)
}

// StopUpdate represents a stop loss update
type StopUpdate struct {
	ProposalID   string
	OldStopLoss  float64
	NewStopLoss  float64
	IsTriggered  bool
	TriggerPrice float64
}

// DefaultMaxTracked bounds the number of proposals a trailer follows
const DefaultMaxTracked = 4096

// Trailer applies trail plans to open proposals. Expired proposals are
// dropped on the next Track or Update; past the size bound the state closest
// to expiry is evicted.
type Trailer struct {
	states     map[string]*TrailState
	maxTracked int
	now        func() time.Time
	mu         sync.RWMutex
}

// NewTrailer creates an empty trailer bounded to DefaultMaxTracked proposals
func NewTrailer() *Trailer {
	return NewTrailerWithLimit(DefaultMaxTracked)
}

// NewTrailerWithLimit creates an empty trailer following at most max proposals
func NewTrailerWithLimit(max int) *Trailer {
	if max < 1 {
		max = DefaultMaxTracked
	}
	return &Trailer{
		states:     make(map[string]*TrailState),
		maxTracked: max,
		now:        time.Now,
	}
}

// SetClock overrides the wall clock used for expiry
func (t *Trailer) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Len returns the number of proposals being followed
func (t *Trailer) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}

// Track starts following a proposal
func (t *Trailer) Track(p *signal.Proposal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(t.now())
	if _, ok := t.states[p.ID]; !ok && len(t.states) >= t.maxTracked {
		t.evictLocked()
	}
	t.states[p.ID] = &TrailState{
		ProposalID:       p.ID,
		Direction:        p.Direction,
		Entry:            p.Entry,
		CurrentStopLoss:  p.StopLoss,
		OriginalStopLoss: p.StopLoss,
		HighWaterMark:    p.Entry,
		LowWaterMark:     p.Entry,
		Plan:             p.TrailPlan,
		ExpiresAt:        p.ExpiresAt,
	}
}

func (t *Trailer) pruneLocked(now time.Time) {
	for id, st := range t.states {
		if st.expired(now) {
			delete(t.states, id)
		}
	}
}

// evictLocked drops the state that expires first; states without an expiry go last
func (t *Trailer) evictLocked() {
	var victim *TrailState
	for _, st := range t.states {
		switch {
		case victim == nil:
			victim = st
		case st.ExpiresAt.IsZero():
		case victim.ExpiresAt.IsZero(), st.ExpiresAt.Before(victim.ExpiresAt):
			victim = st
		case st.ExpiresAt.Equal(victim.ExpiresAt) && st.ProposalID < victim.ProposalID:
			victim = st
		}
	}
	if victim != nil {
		delete(t.states, victim.ProposalID)
	}
}

// Untrack stops following a proposal
func (t *Trailer) Untrack(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, id)
}

// Update feeds a new price and returns the stop change, if any
func (t *Trailer) Update(id string, price float64) *StopUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[id]
	if !ok {
		return nil
	}
	if st.expired(t.now()) {
		delete(t.states, id)
		return nil
	}
	if st.Direction == signal.DirectionSell {
		return st.updateShort(price)
	}
	return st.updateLong(price)
}

// State returns a copy of a proposal's trail state
func (t *Trailer) State(id string) (TrailState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.states[id]
	if !ok || st.expired(t.now()) {
		return TrailState{}, false
	}
	return *st, true
}

func (st *TrailState) updateLong(price float64) *StopUpdate {
	if price <= st.CurrentStopLoss {
		return &StopUpdate{
			ProposalID:   st.ProposalID,
			OldStopLoss:  st.CurrentStopLoss,
			NewStopLoss:  st.CurrentStopLoss,
			IsTriggered:  true,
			TriggerPrice: price,
		}
	}

	if price > st.HighWaterMark {
		st.HighWaterMark = price
	}
	if !st.BreakEven && price >= st.Plan.BreakEvenAt {
		st.BreakEven = true
	}
	if !st.BreakEven {
		return nil
	}

	// Never below entry once break-even is reached, never loosened
	newStop := st.Entry
	if trailed := st.HighWaterMark - st.Plan.TrailBy; trailed > newStop {
		newStop = trailed
	}
	if newStop <= st.CurrentStopLoss {
		return nil
	}
	old := st.CurrentStopLoss
	st.CurrentStopLoss = newStop
	return &StopUpdate{ProposalID: st.ProposalID, OldStopLoss: old, NewStopLoss: newStop}
}

func (st *TrailState) updateShort(price float64) *StopUpdate {
	if price >= st.CurrentStopLoss {
		return &StopUpdate{
			ProposalID:   st.ProposalID,
			OldStopLoss:  st.CurrentStopLoss,
			NewStopLoss:  st.CurrentStopLoss,
			IsTriggered:  true,
			TriggerPrice: price,
		}
	}

	if price < st.LowWaterMark {
		st.LowWaterMark = price
	}
	if !st.BreakEven && price <= st.Plan.BreakEvenAt {
		st.BreakEven = true
	}
	if !st.BreakEven {
		return nil
	}

	newStop := st.Entry
	if trailed := st.LowWaterMark + st.Plan.TrailBy; trailed < newStop {
		newStop = trailed
	}
	if newStop >= st.CurrentStopLoss {
		return nil
	}
	old := st.CurrentStopLoss
	st.CurrentStopLoss = newStop
	return &StopUpdate{ProposalID: st.ProposalID, OldStopLoss: old, NewStopLoss: newStop}
}
