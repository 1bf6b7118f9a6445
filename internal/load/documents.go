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

	"github.com/pgEdge/warehouse-loader/internal/model"
)

// docState accumulates one worker's projection outcomes and the drift
// it observed.
type docState struct {
	acc   model.EntityReport
	drift []model.DriftNotice
}

// loadDocuments projects the batch's accepted customer and product
// records into the document store. Records were already validated by
// their dimension stage; drift notices are collected into the report
// and never block the write.
func (c *Coordinator) loadDocuments(ctx context.Context, records []model.Record, report *model.BatchReport, timer *stageTimer) (int, error) {
	var mu sync.Mutex

	return runWorkers(ctx, c.cfg.Workers, records,
		func(rec model.Record) string { return string(rec.Entity) + "/" + rec.NaturalKey() },
		func(int) *docState { return &docState{} },
		func(ctx context.Context, s *docState, rec model.Record) error {
			start := time.Now()
			outcome, drift, err := c.documents.Sync(ctx, rec, time.Now().UTC())
			if err != nil {
				return err
			}
			s.acc.Count(outcome)
			s.drift = append(s.drift, drift...)
			timer.observe(time.Since(start))
			return nil
		},
		func(ctx context.Context, s *docState) error {
			mu.Lock()
			report.Entity(docEntity).Merge(&s.acc)
			report.Drift = append(report.Drift, s.drift...)
			mu.Unlock()
			return nil
		},
	)
}
