package engine

import (
	"container/list"
	"sync"

	"signal-engine/internal/signal"
)

// registry keeps the most recent proposal records in memory so outcomes for
// live proposals match without a store round trip. Older records fall back
// to the store.
type registry struct {
	mu      sync.RWMutex
	size    int
	order   *list.List
	records map[string]*list.Element
}

func newRegistry(size int) *registry {
	if size <= 0 {
		size = 1
	}
	return &registry{size: size, order: list.New(), records: make(map[string]*list.Element)}
}

func (r *registry) add(rec signal.ProposalRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.records[rec.ID]; ok {
		el.Value = rec
		return
	}
	r.records[rec.ID] = r.order.PushBack(rec)
	for r.order.Len() > r.size {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.records, oldest.Value.(signal.ProposalRecord).ID)
	}
}

func (r *registry) get(id string) (signal.ProposalRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	el, ok := r.records[id]
	if !ok {
		return signal.ProposalRecord{}, false
	}
	return el.Value.(signal.ProposalRecord), true
}
