//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datedim derives calendar attributes for the date dimension and
// keeps it populated for any date a fact references. Attribute derivation
// is a pure function over the calendar date; nothing here consults
// external input. Holiday flags default to false and are set only by a
// separate holiday-loading step.
package datedim

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Row is one date dimension row. Day-of-week numbering follows Postgres
// EXTRACT(DOW): 0 = Sunday through 6 = Saturday. Week-of-year is the ISO
// week, matching EXTRACT(WEEK).
type Row struct {
	DateID      int
	FullDate    time.Time
	DayOfWeek   int
	DayName     string
	DayOfMonth  int
	DayOfYear   int
	WeekOfYear  int
	MonthNumber int
	MonthName   string
	Quarter     int
	Year        int
	IsWeekend   bool
	IsHoliday   bool
	HolidayName string
}

// DateID returns the YYYYMMDD integer key for a date.
func DateID(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// Attributes derives the full dimension row for a date.
func Attributes(t time.Time) Row {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	weekday := day.Weekday()
	_, isoWeek := day.ISOWeek()

	return Row{
		DateID:      DateID(day),
		FullDate:    day,
		DayOfWeek:   int(weekday),
		DayName:     weekday.String(),
		DayOfMonth:  day.Day(),
		DayOfYear:   day.YearDay(),
		WeekOfYear:  isoWeek,
		MonthNumber: int(day.Month()),
		MonthName:   day.Month().String(),
		Quarter:     (int(day.Month())-1)/3 + 1,
		Year:        day.Year(),
		IsWeekend:   weekday == time.Saturday || weekday == time.Sunday,
	}
}

// Store persists date rows. InsertDates must leave existing rows
// untouched and report how many rows it actually inserted; that is what
// makes Ensure idempotent against concurrent writers.
type Store interface {
	InsertDates(ctx context.Context, rows []Row) (int64, error)
}

// Generator populates the date dimension on demand.
type Generator struct {
	store Store

	mu   sync.Mutex
	seen map[int]bool
}

// NewGenerator returns a Generator over the given store.
func NewGenerator(store Store) *Generator {
	return &Generator{
		store: store,
		seen:  make(map[int]bool),
	}
}

// Ensure inserts the row for one date if absent. Returns whether this
// call created it. Calling it again for the same date is a no-op.
func (g *Generator) Ensure(ctx context.Context, t time.Time) (bool, error) {
	created, err := g.EnsureAll(ctx, []time.Time{t})
	return created == 1, err
}

// EnsureAll ensures a set of dates and returns how many rows were newly
// created.
func (g *Generator) EnsureAll(ctx context.Context, dates []time.Time) (int64, error) {
	rows := make([]Row, 0, len(dates))
	pending := make(map[int]bool, len(dates))

	g.mu.Lock()
	for _, d := range dates {
		row := Attributes(d)
		if g.seen[row.DateID] || pending[row.DateID] {
			continue
		}
		pending[row.DateID] = true
		rows = append(rows, row)
	}
	g.mu.Unlock()

	if len(rows) == 0 {
		return 0, nil
	}

	created, err := g.store.InsertDates(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to populate date dimension: %w", err)
	}

	g.mu.Lock()
	for id := range pending {
		g.seen[id] = true
	}
	g.mu.Unlock()

	return created, nil
}

// EnsureRange ensures every date in [start, end] inclusive. Safe to
// re-run over an overlapping range: existing rows are neither duplicated
// nor altered.
func (g *Generator) EnsureRange(ctx context.Context, start, end time.Time) (int64, error) {
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if last.Before(first) {
		return 0, fmt.Errorf("invalid date range: %s is after %s",
			first.Format("2006-01-02"), last.Format("2006-01-02"))
	}

	var dates []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return g.EnsureAll(ctx, dates)
}
