package domain

import (
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Weekly auction window
// ──────────────────────────────────────────────────────────────────────────────

// WindowConfig fixes the weekly cycle boundary: the cycle opens at
// OpenWeekday/OpenHour and closes at CloseWeekday/CloseHour, both in civil
// time of Location.
type WindowConfig struct {
	Location     *time.Location
	OpenWeekday  time.Weekday
	OpenHour     int
	CloseWeekday time.Weekday
	CloseHour    int
}

// DefaultWindowConfig is the production cycle: opens Monday 01:00, closes
// Sunday 23:00, Europe/London time.
func DefaultWindowConfig() WindowConfig {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		loc = time.UTC
	}
	return WindowConfig{
		Location:     loc,
		OpenWeekday:  time.Monday,
		OpenHour:     1,
		CloseWeekday: time.Sunday,
		CloseHour:    23,
	}
}

// Window holds the boundaries of the current and next weekly auction cycles.
// Starts are inclusive, ends exclusive.
type Window struct {
	CurrentStart time.Time `json:"current_start"`
	CurrentEnd   time.Time `json:"current_end"`
	NextStart    time.Time `json:"next_start"`
	NextEnd      time.Time `json:"next_end"`
}

// ComputeWindow derives the current and next auction windows from wall-clock
// time. Pure and deterministic: no side effects, no stored state.
//
// "Current" is the window in progress, or — when now falls in the dead gap
// between one window's close and the next one's open, or exactly on a close
// boundary (end exclusive) — the upcoming window.
func ComputeWindow(now time.Time, cfg WindowConfig) Window {
	n := now.In(cfg.Location)

	start := cycleOpenOnOrBefore(n, cfg)
	end := cycleCloseAfter(start, cfg)

	// Dead gap (e.g. Sunday 23:00 → Monday 01:00): roll to the next cycle.
	if !n.Before(end) {
		start = start.AddDate(0, 0, 7)
		end = end.AddDate(0, 0, 7)
	}

	return Window{
		CurrentStart: start,
		CurrentEnd:   end,
		NextStart:    start.AddDate(0, 0, 7),
		NextEnd:      end.AddDate(0, 0, 7),
	}
}

// cycleOpenOnOrBefore returns the most recent cycle-open instant at or before t.
func cycleOpenOnOrBefore(t time.Time, cfg WindowConfig) time.Time {
	daysBack := int(t.Weekday() - cfg.OpenWeekday)
	if daysBack < 0 {
		daysBack += 7
	}
	open := time.Date(t.Year(), t.Month(), t.Day()-daysBack, cfg.OpenHour, 0, 0, 0, cfg.Location)
	if open.After(t) {
		// Same weekday but before the opening hour.
		open = open.AddDate(0, 0, -7)
	}
	return open
}

// cycleCloseAfter returns the first cycle-close instant strictly after open.
func cycleCloseAfter(open time.Time, cfg WindowConfig) time.Time {
	daysFwd := int(cfg.CloseWeekday - open.Weekday())
	if daysFwd < 0 {
		daysFwd += 7
	}
	closeAt := time.Date(open.Year(), open.Month(), open.Day()+daysFwd, cfg.CloseHour, 0, 0, 0, cfg.Location)
	if !closeAt.After(open) {
		closeAt = closeAt.AddDate(0, 0, 7)
	}
	return closeAt
}
