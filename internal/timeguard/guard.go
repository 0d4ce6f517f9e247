// Package timeguard decides whether a timestamp is safe to trade a symbol:
// weekend and low-liquidity blackouts, high-impact news windows from a static
// calendar or a live feed, and session-open caution periods.
package timeguard

import (
	"context"
	"fmt"
	"time"

	"signal-engine/internal/logging"
	"signal-engine/internal/signal"
)

// Session is a market session open in UTC
type Session struct {
	Name   string `json:"name" yaml:"name"`
	Hour   int    `json:"hour" yaml:"hour" validate:"min=0,max=23"`
	Minute int    `json:"minute" yaml:"minute" validate:"min=0,max=59"`
}

// Config holds the guard rules
type Config struct {
	Weekend           bool          `json:"weekend" yaml:"weekend" default:"true"`
	BlackoutStartHour int           `json:"blackout_start_hour" yaml:"blackout_start_hour" default:"22" validate:"min=0,max=23"`
	BlackoutEndHour   int           `json:"blackout_end_hour" yaml:"blackout_end_hour" default:"1" validate:"min=0,max=23"`
	DeadZoneStartHour int           `json:"dead_zone_start_hour" yaml:"dead_zone_start_hour" default:"20" validate:"min=0,max=23"`
	DeadZoneEndHour   int           `json:"dead_zone_end_hour" yaml:"dead_zone_end_hour" default:"22" validate:"min=0,max=23"`
	Sessions          []Session     `json:"sessions" yaml:"sessions" validate:"dive"`
	SessionCaution    time.Duration `json:"session_caution" yaml:"session_caution" default:"30m"`
	FOMCDates         []string      `json:"fomc_dates" yaml:"fomc_dates"`
	ECBDates          []string      `json:"ecb_dates" yaml:"ecb_dates"`
	FeedURL           string        `json:"feed_url" yaml:"feed_url"`
	FeedTimeout       time.Duration `json:"feed_timeout" yaml:"feed_timeout" default:"5s"`
	FeedTTL           time.Duration `json:"feed_ttl" yaml:"feed_ttl" default:"15m"`
	FeedDays          int           `json:"feed_days" yaml:"feed_days" default:"7" validate:"min=1"`
	AlertWindow       time.Duration `json:"alert_window" yaml:"alert_window" default:"5m"`
}

// DefaultConfig returns the standard guard rules with the 2025-2026 FOMC and
// 2025 ECB meeting dates
func DefaultConfig() Config {
	return Config{
		Weekend:           true,
		BlackoutStartHour: 22,
		BlackoutEndHour:   1,
		DeadZoneStartHour: 20,
		DeadZoneEndHour:   22,
		Sessions: []Session{
			{Name: "London", Hour: 8},
			{Name: "New York", Hour: 13},
		},
		SessionCaution: 30 * time.Minute,
		FOMCDates: []string{
			"2025-01-29", "2025-03-19", "2025-05-07", "2025-06-18",
			"2025-07-30", "2025-09-17", "2025-10-29", "2025-12-10",
			"2026-01-28", "2026-03-18", "2026-04-29", "2026-06-17",
			"2026-07-29", "2026-09-16", "2026-10-28", "2026-12-09",
		},
		ECBDates: []string{
			"2025-01-30", "2025-03-06", "2025-04-17", "2025-06-05",
			"2025-07-24", "2025-09-11", "2025-10-30", "2025-12-18",
			"2026-02-05", "2026-03-19", "2026-04-30", "2026-06-11",
			"2026-07-23", "2026-09-10", "2026-10-29", "2026-12-17",
		},
		FeedTimeout: 5 * time.Second,
		FeedTTL:     15 * time.Minute,
		FeedDays:    7,
		AlertWindow: 5 * time.Minute,
	}
}

// maxSafeHops bounds the walk across back-to-back blackouts
const maxSafeHops = 64

// Guard evaluates time and news rules
type Guard struct {
	cfg    Config
	cal    *Calendar
	feed   EventFeed
	now    func() time.Time
	logger *logging.Logger
}

// NewGuard creates a guard. feed may be nil.
func NewGuard(cfg Config, feed EventFeed, logger *logging.Logger) (*Guard, error) {
	cal, err := NewCalendar(cfg.FOMCDates, cfg.ECBDates)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Guard{
		cfg:    cfg,
		cal:    cal,
		feed:   feed,
		now:    time.Now,
		logger: logger.WithComponent("timeguard"),
	}, nil
}

// SetClock replaces the wall clock used to decide whether the live feed applies
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// Calendar returns the static calendar
func (g *Guard) Calendar() *Calendar {
	return g.cal
}

// Check returns the guard status for symbol at t
func (g *Guard) Check(ctx context.Context, t time.Time, symbol string) signal.GuardStatus {
	t = t.UTC()
	log := logging.GuardContext(g.logger, symbol)
	lookup := g.eventLookup(ctx, t, log)

	if reason, until, ok := g.alertBlackout(ctx, t, symbol, log); ok {
		return g.blackoutStatus(reason, until, symbol, lookup)
	}
	if reason, until, ok := g.blackout(t, symbol, lookup); ok {
		log.Debug("Blackout", "reason", reason, "until", until)
		return g.blackoutStatus(reason, until, symbol, lookup)
	}
	if reason, until, ok := g.caution(t); ok {
		return signal.GuardStatus{Level: signal.GuardCaution, Reason: reason, NextSafeAt: until}
	}
	return signal.GuardStatus{Level: signal.GuardOK, NextSafeAt: t}
}

func (g *Guard) blackoutStatus(reason string, until time.Time, symbol string, lookup func(time.Time) []Event) signal.GuardStatus {
	return signal.GuardStatus{
		Level:      signal.GuardBlackout,
		Reason:     reason,
		NextSafeAt: g.nextSafe(until, symbol, lookup),
	}
}

// eventLookup returns the live feed events when the feed answers for a time
// it can speak about, otherwise the static calendar
func (g *Guard) eventLookup(ctx context.Context, t time.Time, log *logging.Logger) func(time.Time) []Event {
	static := g.cal.EventsOn
	if g.feed == nil {
		return static
	}
	now := g.now().UTC()
	horizon := now.Add(time.Duration(g.cfg.FeedDays) * 24 * time.Hour)
	if t.Before(now.Add(-24*time.Hour)) || t.After(horizon) {
		return static
	}
	events, err := g.feed.UpcomingEvents(ctx, g.cfg.FeedDays)
	if err != nil {
		log.Warn("Calendar feed unavailable, using static windows", "error", err)
		return static
	}
	return func(time.Time) []Event { return events }
}

func (g *Guard) alertBlackout(ctx context.Context, t time.Time, symbol string, log *logging.Logger) (string, time.Time, bool) {
	if g.feed == nil {
		return "", time.Time{}, false
	}
	now := g.now().UTC()
	if d := t.Sub(now); d > g.cfg.AlertWindow || d < -g.cfg.AlertWindow {
		return "", time.Time{}, false
	}
	alert, err := g.feed.ImpactAlert(ctx)
	if err != nil {
		log.Warn("Impact alert unavailable", "error", err)
		return "", time.Time{}, false
	}
	if alert == nil || !alert.Active || !alert.Until.After(t) {
		return "", time.Time{}, false
	}
	if !(Event{Currency: alert.Currency}).Affects(symbol) {
		return "", time.Time{}, false
	}
	return "news blackout: " + alert.Reason, alert.Until, true
}

// blackout applies the weekend, low-liquidity and news rules in that order
func (g *Guard) blackout(t time.Time, symbol string, lookup func(time.Time) []Event) (string, time.Time, bool) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	if g.cfg.Weekend {
		switch t.Weekday() {
		case time.Saturday, time.Sunday:
			toMonday := (8 - int(t.Weekday())) % 7
			return "weekend market closure", day.AddDate(0, 0, toMonday), true
		}
	}

	start, end := g.cfg.BlackoutStartHour*60, g.cfg.BlackoutEndHour*60
	if start != end && inWindow(minuteOfDay(t), start, end) {
		until := day.Add(time.Duration(end) * time.Minute)
		if !until.After(t) {
			until = until.AddDate(0, 0, 1)
		}
		return fmt.Sprintf("low-liquidity window %02d:00-%02d:00 UTC", g.cfg.BlackoutStartHour, g.cfg.BlackoutEndHour), until, true
	}

	for _, e := range lookup(t) {
		if e.Covers(t) && e.Affects(symbol) {
			return "news blackout: " + e.Name, e.End(), true
		}
	}
	return "", time.Time{}, false
}

// caution applies the dead zone and the session-open windows
func (g *Guard) caution(t time.Time) (string, time.Time, bool) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	m := minuteOfDay(t)

	start, end := g.cfg.DeadZoneStartHour*60, g.cfg.DeadZoneEndHour*60
	if start != end && inWindow(m, start, end) {
		until := day.Add(time.Duration(end) * time.Minute)
		if !until.After(t) {
			until = until.AddDate(0, 0, 1)
		}
		return "low-liquidity dead zone", until, true
	}

	for _, s := range g.cfg.Sessions {
		open := day.Add(time.Duration(s.Hour)*time.Hour + time.Duration(s.Minute)*time.Minute)
		if !t.Before(open) && t.Before(open.Add(g.cfg.SessionCaution)) {
			return s.Name + " session open", open.Add(g.cfg.SessionCaution), true
		}
	}
	return "", time.Time{}, false
}

// nextSafe walks forward across consecutive blackouts
func (g *Guard) nextSafe(from time.Time, symbol string, lookup func(time.Time) []Event) time.Time {
	u := from
	for i := 0; i < maxSafeHops; i++ {
		_, next, ok := g.blackout(u, symbol, lookup)
		if !ok || !next.After(u) {
			return u
		}
		u = next
	}
	return u
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// inWindow reports whether m lies in [start, end), wrapping past midnight
func inWindow(m, start, end int) bool {
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}
