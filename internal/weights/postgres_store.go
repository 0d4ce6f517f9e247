package weights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"signal-engine/internal/database"
	"signal-engine/internal/signal"
)

// PostgresStore persists the journal, weights documents and proposal records
// through the database repository. Each SaveWeights inserts a new snapshot row
// and LoadWeights reads the latest one.
type PostgresStore struct {
	repo *database.Repository
}

// NewPostgresStore wraps a repository
func NewPostgresStore(repo *database.Repository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

// LoadWeights implements Store
func (ps *PostgresStore) LoadWeights(ctx context.Context) (*Document, error) {
	row, err := ps.repo.LoadLatestWeightSnapshot(ctx)
	if errors.Is(err, database.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load weight snapshot: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(row.Document, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse weight snapshot %d: %w", row.ID, err)
	}
	return &doc, nil
}

// SaveWeights implements Store
func (ps *PostgresStore) SaveWeights(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	return ps.repo.SaveWeightSnapshot(ctx, &database.WeightSnapshotRow{
		Outcomes:  doc.Outcomes,
		Document:  data,
		UpdatedAt: doc.UpdatedAt,
	})
}

// DeleteWeights implements Store. Every snapshot row is removed.
func (ps *PostgresStore) DeleteWeights(ctx context.Context) error {
	return ps.repo.DeleteWeightSnapshots(ctx)
}

// AppendOutcome implements Store. A row already present for the proposal is
// left untouched.
func (ps *PostgresStore) AppendOutcome(ctx context.Context, o signal.Outcome) error {
	row, err := outcomeRow(o)
	if err != nil {
		return err
	}
	_, err = ps.repo.AppendOutcome(ctx, row)
	return err
}

// ReadJournal implements Store
func (ps *PostgresStore) ReadJournal(ctx context.Context) ([]signal.Outcome, error) {
	rows, err := ps.repo.ListOutcomes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]signal.Outcome, 0, len(rows))
	for _, row := range rows {
		o, err := outcomeFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("journal seq %d: %w", row.Seq, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// SaveProposal implements Store
func (ps *PostgresStore) SaveProposal(ctx context.Context, rec signal.ProposalRecord) error {
	votes, err := json.Marshal(rec.Votes)
	if err != nil {
		return fmt.Errorf("failed to marshal votes: %w", err)
	}
	return ps.repo.SaveProposal(ctx, &database.ProposalRow{
		ID:        rec.ID,
		Symbol:    rec.Symbol,
		Direction: string(rec.Direction),
		Votes:     votes,
		CreatedAt: rec.CreatedAt,
	})
}

// LoadProposal implements Store
func (ps *PostgresStore) LoadProposal(ctx context.Context, id string) (*signal.ProposalRecord, error) {
	row, err := ps.repo.GetProposal(ctx, id)
	if errors.Is(err, database.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := &signal.ProposalRecord{
		ID:        row.ID,
		Symbol:    row.Symbol,
		Direction: signal.Direction(row.Direction),
		CreatedAt: row.CreatedAt,
	}
	if err := json.Unmarshal(row.Votes, &rec.Votes); err != nil {
		return nil, fmt.Errorf("failed to parse votes for %s: %w", id, err)
	}
	return rec, nil
}

func outcomeRow(o signal.Outcome) (*database.OutcomeRow, error) {
	votes, err := json.Marshal(o.Votes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal votes: %w", err)
	}
	return &database.OutcomeRow{
		ProposalID: o.ProposalID,
		Symbol:     o.Symbol,
		Direction:  string(o.Direction),
		Result:     string(o.Result),
		PnLPips:    o.PnLPips,
		ClosedAt:   o.ClosedAt,
		Votes:      votes,
	}, nil
}

func outcomeFromRow(row *database.OutcomeRow) (signal.Outcome, error) {
	o := signal.Outcome{
		ProposalID: row.ProposalID,
		Symbol:     row.Symbol,
		Direction:  signal.Direction(row.Direction),
		Result:     signal.OutcomeResult(row.Result),
		PnLPips:    row.PnLPips,
		ClosedAt:   row.ClosedAt,
	}
	if err := json.Unmarshal(row.Votes, &o.Votes); err != nil {
		return o, err
	}
	return o, nil
}
