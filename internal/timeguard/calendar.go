package timeguard

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event is a scheduled high-impact release with its blackout window
type Event struct {
	Name     string        `json:"name"`
	Currency string        `json:"currency"`
	Impact   string        `json:"impact"`
	Time     time.Time     `json:"time"`
	Before   time.Duration `json:"before"`
	After    time.Duration `json:"after"`
}

// Start returns the opening of the blackout window
func (e Event) Start() time.Time { return e.Time.Add(-e.Before) }

// End returns the close of the blackout window
func (e Event) End() time.Time { return e.Time.Add(e.After) }

// Covers reports whether t falls inside the window
func (e Event) Covers(t time.Time) bool {
	return !t.Before(e.Start()) && t.Before(e.End())
}

// Affects reports whether the event's currency is part of the symbol. USD
// events therefore also reach USDT and USDC quoted pairs.
func (e Event) Affects(symbol string) bool {
	if e.Currency == "" {
		return true
	}
	return strings.Contains(strings.ToUpper(symbol), strings.ToUpper(e.Currency))
}

// recurringRule places an event on the days that satisfy its predicate
type recurringRule struct {
	name     string
	currency string
	hour     int
	minute   int
	before   time.Duration
	after    time.Duration
	matches  func(day time.Time) bool
}

var recurringRules = []recurringRule{
	{
		name: "NFP", currency: "USD", hour: 13, minute: 30,
		before: 60 * time.Minute, after: 60 * time.Minute,
		matches: func(d time.Time) bool { return d.Weekday() == time.Friday && d.Day() <= 7 },
	},
	{
		name: "CPI", currency: "USD", hour: 13, minute: 30,
		before: 30 * time.Minute, after: 60 * time.Minute,
		matches: func(d time.Time) bool { return d.Weekday() == time.Wednesday && d.Day() > 7 && d.Day() <= 14 },
	},
	{
		name: "GDP", currency: "USD", hour: 13, minute: 30,
		before: 45 * time.Minute, after: 45 * time.Minute,
		matches: func(d time.Time) bool {
			switch d.Month() {
			case time.January, time.April, time.July, time.October:
			default:
				return false
			}
			return d.Weekday() == time.Thursday && d.AddDate(0, 0, 7).Month() != d.Month()
		},
	},
}

// datedRule is an event held on configured dates
type datedRule struct {
	name     string
	currency string
	hour     int
	minute   int
	before   time.Duration
	after    time.Duration
	dates    map[string]struct{}
}

// Calendar is the static schedule of high-impact events
type Calendar struct {
	recurring []recurringRule
	dated     []datedRule
}

// NewCalendar builds the static calendar. FOMC and ECB dates are YYYY-MM-DD.
func NewCalendar(fomcDates, ecbDates []string) (*Calendar, error) {
	fomc, err := dateSet(fomcDates)
	if err != nil {
		return nil, fmt.Errorf("invalid FOMC date: %w", err)
	}
	ecb, err := dateSet(ecbDates)
	if err != nil {
		return nil, fmt.Errorf("invalid ECB date: %w", err)
	}
	return &Calendar{
		recurring: recurringRules,
		dated: []datedRule{
			{name: "FOMC", currency: "USD", hour: 19, minute: 0, before: 30 * time.Minute, after: 90 * time.Minute, dates: fomc},
			{name: "ECB", currency: "EUR", hour: 12, minute: 15, before: 60 * time.Minute, after: 60 * time.Minute, dates: ecb},
		},
	}, nil
}

func dateSet(dates []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, err
		}
		set[d] = struct{}{}
	}
	return set, nil
}

// EventsOn returns the events scheduled on the UTC day of t, by time
func (c *Calendar) EventsOn(t time.Time) []Event {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	key := day.Format("2006-01-02")

	var events []Event
	for _, r := range c.recurring {
		if r.matches(day) {
			events = append(events, Event{
				Name: r.name, Currency: r.currency, Impact: "high",
				Time:   day.Add(time.Duration(r.hour)*time.Hour + time.Duration(r.minute)*time.Minute),
				Before: r.before, After: r.after,
			})
		}
	}
	for _, r := range c.dated {
		if _, ok := r.dates[key]; ok {
			events = append(events, Event{
				Name: r.name, Currency: r.currency, Impact: "high",
				Time:   day.Add(time.Duration(r.hour)*time.Hour + time.Duration(r.minute)*time.Minute),
				Before: r.before, After: r.after,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events
}

// EventsBetween returns the events whose time lies in [from, to)
func (c *Calendar) EventsBetween(from, to time.Time) []Event {
	var out []Event
	for d := from.UTC().Truncate(24 * time.Hour); d.Before(to); d = d.AddDate(0, 0, 1) {
		for _, e := range c.EventsOn(d) {
			if !e.Time.Before(from) && e.Time.Before(to) {
				out = append(out, e)
			}
		}
	}
	return out
}
