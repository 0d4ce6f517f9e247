package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNoRows is returned when a lookup matches nothing
var ErrNoRows = errors.New("no rows")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// OUTCOME JOURNAL
// ============================================================================

// AppendOutcome inserts a journal row. A second row for the same proposal is
// ignored; inserted reports whether a row was written.
func (r *Repository) AppendOutcome(ctx context.Context, row *OutcomeRow) (inserted bool, err error) {
	query := `
		INSERT INTO outcome_journal (proposal_id, symbol, direction, result, pnl_pips, closed_at, votes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (proposal_id) DO NOTHING
		RETURNING seq, recorded_at
	`
	err = r.db.Pool.QueryRow(
		ctx, query,
		row.ProposalID, row.Symbol, row.Direction, row.Result, row.PnLPips, row.ClosedAt, row.Votes,
	).Scan(&row.Seq, &row.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to append outcome: %w", err)
	}
	return true, nil
}

// ListOutcomes returns the whole journal in append order
func (r *Repository) ListOutcomes(ctx context.Context) ([]*OutcomeRow, error) {
	query := `
		SELECT seq, proposal_id, symbol, direction, result, pnl_pips, closed_at, votes, recorded_at
		FROM outcome_journal
		ORDER BY seq ASC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var out []*OutcomeRow
	for rows.Next() {
		row := &OutcomeRow{}
		if err := rows.Scan(
			&row.Seq, &row.ProposalID, &row.Symbol, &row.Direction, &row.Result,
			&row.PnLPips, &row.ClosedAt, &row.Votes, &row.RecordedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ============================================================================
// WEIGHT SNAPSHOTS
// ============================================================================

// SaveWeightSnapshot inserts a new weights document
func (r *Repository) SaveWeightSnapshot(ctx context.Context, row *WeightSnapshotRow) error {
	query := `
		INSERT INTO weight_snapshots (outcomes, document, updated_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query, row.Outcomes, row.Document, row.UpdatedAt).
		Scan(&row.ID, &row.CreatedAt)
}

// LoadLatestWeightSnapshot returns the most recent weights document
func (r *Repository) LoadLatestWeightSnapshot(ctx context.Context) (*WeightSnapshotRow, error) {
	query := `
		SELECT id, outcomes, document, updated_at, created_at
		FROM weight_snapshots
		ORDER BY id DESC
		LIMIT 1
	`
	row := &WeightSnapshotRow{}
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&row.ID, &row.Outcomes, &row.Document, &row.UpdatedAt, &row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// DeleteWeightSnapshots removes every weights document, leaving the journal
func (r *Repository) DeleteWeightSnapshots(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM weight_snapshots`)
	return err
}

// ============================================================================
// PROPOSALS
// ============================================================================

// SaveProposal upserts a proposal record
func (r *Repository) SaveProposal(ctx context.Context, row *ProposalRow) error {
	query := `
		INSERT INTO proposals (id, symbol, direction, votes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET symbol = EXCLUDED.symbol, direction = EXCLUDED.direction, votes = EXCLUDED.votes
	`
	_, err := r.db.Pool.Exec(ctx, query, row.ID, row.Symbol, row.Direction, row.Votes, row.CreatedAt)
	return err
}

// GetProposal retrieves a proposal record by id
func (r *Repository) GetProposal(ctx context.Context, id string) (*ProposalRow, error) {
	query := `
		SELECT id, symbol, direction, votes, created_at
		FROM proposals WHERE id = $1
	`
	row := &ProposalRow{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&row.ID, &row.Symbol, &row.Direction, &row.Votes, &row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ============================================================================
// SIGNAL EVENTS
// ============================================================================

// RecordEvent inserts an event bus message
func (r *Repository) RecordEvent(ctx context.Context, event *SignalEvent) error {
	query := `
		INSERT INTO signal_events (event_type, symbol, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query, event.EventType, event.Symbol, event.Payload).
		Scan(&event.ID, &event.CreatedAt)
}

// GetRecentEvents returns the latest events, newest first
func (r *Repository) GetRecentEvents(ctx context.Context, limit int) ([]*SignalEvent, error) {
	query := `
		SELECT id, event_type, symbol, payload, created_at
		FROM signal_events
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*SignalEvent
	for rows.Next() {
		e := &SignalEvent{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.Symbol, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
