package weights

import (
	"context"
	"errors"
	"sync"

	"signal-engine/internal/signal"
)

// ErrNotFound is returned when a store has no weights document or proposal
var ErrNotFound = errors.New("not found")

// Store persists the weights document, the outcome journal and the proposal
// records needed to match outcomes
type Store interface {
	LoadWeights(ctx context.Context) (*Document, error)
	SaveWeights(ctx context.Context, doc *Document) error
	AppendOutcome(ctx context.Context, o signal.Outcome) error
	ReadJournal(ctx context.Context) ([]signal.Outcome, error)
	SaveProposal(ctx context.Context, rec signal.ProposalRecord) error
	LoadProposal(ctx context.Context, id string) (*signal.ProposalRecord, error)
	// DeleteWeights drops the weights document, leaving the journal
	DeleteWeights(ctx context.Context) error
}

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	doc       *Document
	journal   []signal.Outcome
	proposals map[string]signal.ProposalRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{proposals: make(map[string]signal.ProposalRecord)}
}

// LoadWeights implements Store
func (m *MemoryStore) LoadWeights(ctx context.Context) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.doc == nil {
		return nil, ErrNotFound
	}
	return m.doc, nil
}

// SaveWeights implements Store
func (m *MemoryStore) SaveWeights(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
	return nil
}

// DeleteWeights implements Store
func (m *MemoryStore) DeleteWeights(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = nil
	return nil
}

// AppendOutcome implements Store
func (m *MemoryStore) AppendOutcome(ctx context.Context, o signal.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = append(m.journal, o)
	return nil
}

// ReadJournal implements Store
func (m *MemoryStore) ReadJournal(ctx context.Context) ([]signal.Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]signal.Outcome, len(m.journal))
	copy(out, m.journal)
	return out, nil
}

// SaveProposal implements Store
func (m *MemoryStore) SaveProposal(ctx context.Context, rec signal.ProposalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[rec.ID] = rec
	return nil
}

// LoadProposal implements Store
func (m *MemoryStore) LoadProposal(ctx context.Context, id string) (*signal.ProposalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}
