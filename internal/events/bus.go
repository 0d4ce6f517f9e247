package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventProposalEmitted EventType = "PROPOSAL_EMITTED"
	EventSignalRejected  EventType = "SIGNAL_REJECTED"
	EventOutcomeRecorded EventType = "OUTCOME_RECORDED"
	EventWeightsUpdated  EventType = "WEIGHTS_UPDATED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishProposal publishes a proposal emitted event
func (eb *EventBus) PublishProposal(id, symbol, timeframe, direction string, entry, stopLoss, confidence float64) {
	eb.Publish(Event{
		Type: EventProposalEmitted,
		Data: map[string]interface{}{
			"proposal_id": id,
			"symbol":      symbol,
			"timeframe":   timeframe,
			"direction":   direction,
			"entry":       entry,
			"stop_loss":   stopLoss,
			"confidence":  confidence,
		},
	})
}

// PublishRejection publishes a signal rejected event
func (eb *EventBus) PublishRejection(symbol, layer, kind, reason string) {
	eb.Publish(Event{
		Type: EventSignalRejected,
		Data: map[string]interface{}{
			"symbol": symbol,
			"layer":  layer,
			"kind":   kind,
			"reason": reason,
		},
	})
}

// PublishOutcome publishes an outcome recorded event
func (eb *EventBus) PublishOutcome(proposalID, result string, pnlPips float64) {
	eb.Publish(Event{
		Type: EventOutcomeRecorded,
		Data: map[string]interface{}{
			"proposal_id": proposalID,
			"result":      result,
			"pnl_pips":    pnlPips,
		},
	})
}

// PublishWeights publishes a weights updated event
func (eb *EventBus) PublishWeights(weights map[string]float64, outcomes int) {
	eb.Publish(Event{
		Type: EventWeightsUpdated,
		Data: map[string]interface{}{
			"weights":  weights,
			"outcomes": outcomes,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
