//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/warehouse-loader/internal/db"
	"github.com/pgEdge/warehouse-loader/internal/model"
)

// Batch statuses recorded in the ledger.
const (
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

// Entry is one ledger row. Report holds the serialized batch report once
// the batch finished.
type Entry struct {
	BatchID     string
	Source      string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Report      json.RawMessage
}

// Ledger records one row per ingestion batch. A completed entry is what
// makes re-ingesting the same batch id a no-op.
type Ledger struct {
	db db.DB
}

// NewLedger creates a Ledger over the given database.
func NewLedger(database db.DB) *Ledger {
	return &Ledger{db: database}
}

// Begin registers the batch as running. When the batch id is already
// known the prior entry is returned instead: completed entries tell the
// caller to skip the batch entirely, failed or stale running entries are
// taken over and restarted.
func (l *Ledger) Begin(ctx context.Context, batchID, source string) (*Entry, error) {
	tag, err := l.db.Exec(ctx, `
        INSERT INTO staging.load_batch (batch_id, source, status, started_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (batch_id) DO NOTHING
    `, batchID, source, BatchRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to register batch: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	prior, err := l.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if prior.Status == BatchCompleted {
		return prior, nil
	}

	_, err = l.db.Exec(ctx, `
        UPDATE staging.load_batch
        SET status = $2, started_at = now(), completed_at = NULL
        WHERE batch_id = $1
    `, batchID, BatchRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to restart batch: %w", err)
	}
	return prior, nil
}

// Complete marks the batch completed and stores its report.
func (l *Ledger) Complete(ctx context.Context, batchID string, report *model.BatchReport) error {
	return l.finish(ctx, batchID, BatchCompleted, report)
}

// Fail marks the batch failed, keeping the partial report so operators
// can see which stages committed.
func (l *Ledger) Fail(ctx context.Context, batchID string, report *model.BatchReport) error {
	return l.finish(ctx, batchID, BatchFailed, report)
}

func (l *Ledger) finish(ctx context.Context, batchID, status string, report *model.BatchReport) error {
	var raw []byte
	if report != nil {
		var err error
		raw, err = json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to serialize batch report: %w", err)
		}
	}

	tag, err := l.db.Exec(ctx, `
        UPDATE staging.load_batch
        SET status = $2, completed_at = now(), report = $3
        WHERE batch_id = $1
    `, batchID, status, raw)
	if err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s is not registered", batchID)
	}
	return nil
}

// Get returns the ledger entry for a batch id.
func (l *Ledger) Get(ctx context.Context, batchID string) (*Entry, error) {
	var e Entry
	err := l.db.QueryRow(ctx, `
        SELECT batch_id, source, status, started_at, completed_at, report
        FROM staging.load_batch WHERE batch_id = $1
    `, batchID).Scan(&e.BatchID, &e.Source, &e.Status, &e.StartedAt, &e.CompletedAt, &e.Report)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("batch %s is not registered", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch entry: %w", err)
	}
	return &e, nil
}

// Recent returns the most recently started batches, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.Query(ctx, `
        SELECT batch_id, source, status, started_at, completed_at, report
        FROM staging.load_batch ORDER BY started_at DESC LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.BatchID, &e.Source, &e.Status, &e.StartedAt, &e.CompletedAt, &e.Report); err != nil {
			return nil, fmt.Errorf("failed to scan batch entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
