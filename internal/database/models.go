package database

import (
	"encoding/json"
	"time"
)

// OutcomeRow is one entry of the outcome journal
type OutcomeRow struct {
	Seq        int64           `json:"seq"`
	ProposalID string          `json:"proposal_id"`
	Symbol     string          `json:"symbol"`
	Direction  string          `json:"direction"`
	Result     string          `json:"result"`
	PnLPips    float64         `json:"pnl_pips"`
	ClosedAt   time.Time       `json:"closed_at"`
	Votes      json.RawMessage `json:"votes"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// WeightSnapshotRow is a persisted weights document
type WeightSnapshotRow struct {
	ID        int64           `json:"id"`
	Outcomes  int             `json:"outcomes"`
	Document  json.RawMessage `json:"document"`
	UpdatedAt time.Time       `json:"updated_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProposalRow keeps the votes behind an emitted proposal
type ProposalRow struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Direction string          `json:"direction"`
	Votes     json.RawMessage `json:"votes"`
	CreatedAt time.Time       `json:"created_at"`
}

// SignalEvent is an event bus message mirrored to the database
type SignalEvent struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Symbol    *string         `json:"symbol,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
