package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signal-engine/internal/events"
	"signal-engine/internal/logging"
)

// EventRecorder returns an event bus subscriber that mirrors every event into
// signal_events. Write failures are logged and dropped.
func (r *Repository) EventRecorder() events.Subscriber {
	log := logging.DatabaseContext("insert", "signal_events")
	return func(e events.Event) {
		row, err := eventRow(e)
		if err != nil {
			log.Warn("Failed to encode event", "type", e.Type, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.RecordEvent(ctx, row); err != nil {
			log.Warn("Failed to record event", "type", e.Type, "error", err)
		}
	}
}

func eventRow(e events.Event) (*SignalEvent, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	row := &SignalEvent{EventType: string(e.Type), Payload: payload}
	if sym, ok := e.Data["symbol"].(string); ok && sym != "" {
		row.Symbol = &sym
	}
	return row, nil
}

// RecentEvents reads recorded events back, newest first
func (r *Repository) RecentEvents(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := r.GetRecentEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(rows))
	for _, row := range rows {
		e, err := eventFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func eventFromRow(row *SignalEvent) (events.Event, error) {
	var data map[string]interface{}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &data); err != nil {
			return events.Event{}, fmt.Errorf("event %d: %w", row.ID, err)
		}
	}
	return events.Event{
		Type:      events.EventType(row.EventType),
		Timestamp: row.CreatedAt,
		Data:      data,
	}, nil
}
