//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package load

import (
	"context"
	"sync"
	"time"

	"github.com/pgEdge/warehouse-loader/internal/datedim"
	"github.com/pgEdge/warehouse-loader/internal/logging"
	"github.com/pgEdge/warehouse-loader/internal/model"
)

// dimState accumulates one worker's dimension outcomes. Workers never
// touch the shared report directly; flush merges under a lock.
type dimState struct {
	acc      model.EntityReport
	accepted []model.Record
}

// loadDimension validates, resolves, and upserts one dimension entity's
// records. Records routed by natural key land on the same worker, so a
// key's updates apply in staging order and the last record wins. Returns
// the accepted records for the document stage.
func (c *Coordinator) loadDimension(ctx context.Context, entity model.EntityType, records []model.Record, report *model.BatchReport, timer *stageTimer) ([]model.Record, int, error) {
	var (
		mu       sync.Mutex
		accepted []model.Record
	)
	entityReport := report.Entity(entity)

	processed, err := runWorkers(ctx, c.cfg.Workers, records,
		func(rec model.Record) string { return rec.NaturalKey() },
		func(int) *dimState { return &dimState{} },
		func(ctx context.Context, s *dimState, rec model.Record) error {
			start := time.Now()

			res := c.validator.Validate(rec)
			if !res.Accepted() {
				s.acc.Reject(rec.NaturalKey(), res.Reasons)
				logging.Debug().
					Str("entity", string(entity)).
					Str("natural_key", rec.NaturalKey()).
					Strs("reasons", res.Reasons).
					Msg("Record rejected")
				return nil
			}

			id, created, err := c.resolver.Resolve(ctx, entity, rec.NaturalKey())
			if err != nil {
				return err
			}
			if err := c.warehouse.UpsertDimension(ctx, entity, id, rec.Fields, time.Now().UTC()); err != nil {
				return err
			}

			if created {
				s.acc.Count(model.OutcomeCreated)
			} else {
				s.acc.Count(model.OutcomeUpdated)
			}
			s.accepted = append(s.accepted, rec)
			timer.observe(time.Since(start))
			return nil
		},
		func(ctx context.Context, s *dimState) error {
			mu.Lock()
			entityReport.Merge(&s.acc)
			accepted = append(accepted, s.accepted...)
			mu.Unlock()
			return nil
		},
	)
	return accepted, processed, err
}

// ensureDates populates the date dimension with every calendar day the
// batch's facts reference. Date rows are derived, not staged, so there
// is nothing to validate or reject.
func (c *Coordinator) ensureDates(ctx context.Context, txns, inventory []model.Record, report *model.BatchReport) (int, error) {
	byID := make(map[int]time.Time)
	for _, rec := range txns {
		if t, ok := rec.Time("transaction_time"); ok {
			byID[datedim.DateID(t)] = t
		}
	}
	for _, rec := range inventory {
		if t, ok := rec.Time("snapshot_date"); ok {
			byID[datedim.DateID(t)] = t
		}
	}
	if len(byID) == 0 {
		return 0, nil
	}

	days := make([]time.Time, 0, len(byID))
	for _, t := range byID {
		days = append(days, t)
	}
	created, err := c.dates.EnsureAll(ctx, days)
	if err != nil {
		return 0, err
	}

	er := report.Entity(model.EntityDate)
	er.Accepted += len(days)
	er.Created += int(created)
	er.AlreadyPresent += len(days) - int(created)
	return len(days), nil
}
