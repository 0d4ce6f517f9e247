package timeguard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// EventFeed is a live economic calendar
type EventFeed interface {
	UpcomingEvents(ctx context.Context, days int) ([]Event, error)
	ImpactAlert(ctx context.Context) (*Alert, error)
}

// Alert is an unscheduled high-impact situation reported by the feed
type Alert struct {
	Active   bool      `json:"active"`
	Reason   string    `json:"reason"`
	Currency string    `json:"currency,omitempty"`
	Until    time.Time `json:"until"`
}

// feedEvent is the wire layout of one calendar entry
type feedEvent struct {
	Name          string    `json:"name"`
	Currency      string    `json:"currency"`
	Impact        string    `json:"impact"`
	Time          time.Time `json:"time"`
	BeforeMinutes int       `json:"before_minutes"`
	AfterMinutes  int       `json:"after_minutes"`
}

// DefaultFeedWindow is used when the feed omits window sizes
const DefaultFeedWindow = 30 * time.Minute

// FeedClient reads a JSON calendar over HTTP and caches it for a TTL
type FeedClient struct {
	client *resty.Client
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	cached   []Event
	cachedAt time.Time
	days     int
}

// NewFeedClient creates a calendar client against baseURL
func NewFeedClient(baseURL string, timeout, ttl time.Duration) *FeedClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &FeedClient{client: client, ttl: ttl, now: time.Now}
}

// UpcomingEvents implements EventFeed. Only high-impact events are returned.
func (fc *FeedClient) UpcomingEvents(ctx context.Context, days int) ([]Event, error) {
	fc.mu.Lock()
	if fc.cached != nil && fc.days >= days && fc.now().Sub(fc.cachedAt) < fc.ttl {
		events := fc.cached
		fc.mu.Unlock()
		return events, nil
	}
	fc.mu.Unlock()

	resp, err := fc.client.R().
		SetContext(ctx).
		SetQueryParam("days", strconv.Itoa(days)).
		Get("/events")
	if err != nil {
		return nil, fmt.Errorf("error fetching calendar: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("calendar API error %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var raw []feedEvent
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("error parsing calendar: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		if !strings.EqualFold(r.Impact, "high") {
			continue
		}
		e := Event{
			Name:     r.Name,
			Currency: strings.ToUpper(r.Currency),
			Impact:   "high",
			Time:     r.Time.UTC(),
			Before:   time.Duration(r.BeforeMinutes) * time.Minute,
			After:    time.Duration(r.AfterMinutes) * time.Minute,
		}
		if e.Before <= 0 {
			e.Before = DefaultFeedWindow
		}
		if e.After <= 0 {
			e.After = DefaultFeedWindow
		}
		events = append(events, e)
	}

	fc.mu.Lock()
	fc.cached = events
	fc.cachedAt = fc.now()
	fc.days = days
	fc.mu.Unlock()

	return events, nil
}

// ImpactAlert implements EventFeed. It is never cached.
func (fc *FeedClient) ImpactAlert(ctx context.Context) (*Alert, error) {
	resp, err := fc.client.R().
		SetContext(ctx).
		Get("/alert")
	if err != nil {
		return nil, fmt.Errorf("error fetching impact alert: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNoContent:
		return &Alert{}, nil
	default:
		return nil, fmt.Errorf("alert API error %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var alert Alert
	if err := json.Unmarshal(resp.Body(), &alert); err != nil {
		return nil, fmt.Errorf("error parsing impact alert: %w", err)
	}
	return &alert, nil
}
