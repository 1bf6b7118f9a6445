//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package load drives batches from staging into the warehouse and the
// document store. Stages run strictly in dependency order, so facts
// never see a missing dimension row; records inside a stage fan out over
// a bounded worker pool.
package load

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pgEdge/warehouse-loader/internal/config"
	"github.com/pgEdge/warehouse-loader/internal/datedim"
	"github.com/pgEdge/warehouse-loader/internal/keymap"
	"github.com/pgEdge/warehouse-loader/internal/logging"
	"github.com/pgEdge/warehouse-loader/internal/model"
	"github.com/pgEdge/warehouse-loader/internal/staging"
	"github.com/pgEdge/warehouse-loader/internal/validate"
	"github.com/pgEdge/warehouse-loader/internal/warehouse"
)

// Stage names as they appear in batch reports.
const (
	stageCustomers    = "customers"
	stageProducts     = "products"
	stageLocations    = "locations"
	stageDates        = "dates"
	stageTransactions = "transactions"
	stageItems        = "transaction_items"
	stageInventory    = "inventory"
	stageDocuments    = "documents"
)

// docEntity buckets document projection outcomes in the batch report.
const docEntity = model.EntityType("documents")

// WarehouseStore is the relational write surface the pipeline uses.
// *warehouse.Store implements it; tests substitute fakes.
type WarehouseStore interface {
	UpsertDimension(ctx context.Context, entity model.EntityType, surrogateID int64, attrs map[string]any, now time.Time) error
	InsertTransactions(ctx context.Context, rows []warehouse.TransactionRow) (map[string]int64, map[string]bool, error)
	InsertTransactionItems(ctx context.Context, rows []warehouse.ItemRow) (map[string]bool, error)
	InsertInventory(ctx context.Context, rows []warehouse.InventoryRow) (map[string]bool, error)
}

// StagingReader fetches staged batch rows and stamps them processed.
type StagingReader interface {
	FetchBatch(ctx context.Context, entity model.EntityType, batchID string) ([]model.Record, error)
	MarkProcessed(ctx context.Context, entity model.EntityType, batchID string, now time.Time) (int64, error)
}

// BatchLedger tracks batch outcomes for idempotent re-ingestion.
type BatchLedger interface {
	Begin(ctx context.Context, batchID, source string) (*staging.Entry, error)
	Complete(ctx context.Context, batchID string, report *model.BatchReport) error
	Fail(ctx context.Context, batchID string, report *model.BatchReport) error
}

// DocumentSyncer projects accepted dimension records into the document
// store.
type DocumentSyncer interface {
	Sync(ctx context.Context, rec model.Record, now time.Time) (model.Outcome, []model.DriftNotice, error)
}

// Options wires a Coordinator together.
type Options struct {
	Warehouse WarehouseStore
	Staging   StagingReader
	Ledger    BatchLedger
	Resolver  *keymap.Resolver
	Dates     *datedim.Generator
	Validator *validate.Validator

	// Documents may be nil; the document stage is then skipped.
	Documents DocumentSyncer

	Config config.LoadConfig
}

// Coordinator runs ingestion batches. Overlapping batches serialize on
// the coordinator; stage internals provide the concurrency.
type Coordinator struct {
	warehouse WarehouseStore
	staging   StagingReader
	ledger    BatchLedger
	resolver  *keymap.Resolver
	dates     *datedim.Generator
	validator *validate.Validator
	documents DocumentSyncer
	cfg       config.LoadConfig

	mu sync.Mutex
}

// New creates a Coordinator from the options.
func New(opts Options) *Coordinator {
	return &Coordinator{
		warehouse: opts.Warehouse,
		staging:   opts.Staging,
		ledger:    opts.Ledger,
		resolver:  opts.Resolver,
		dates:     opts.Dates,
		validator: opts.Validator,
		documents: opts.Documents,
		cfg:       opts.Config,
	}
}

// ProcessBatch ingests one staged batch and returns its report. A batch
// id that already completed is a no-op returning the stored report. On
// stage failure the committed stages stay committed, later stages are
// skipped, and the partial report lands in the ledger.
func (c *Coordinator) ProcessBatch(ctx context.Context, batchID, source string) (*model.BatchReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := logging.WithBatch(batchID, source)

	prior, err := c.ledger.Begin(ctx, batchID, source)
	if err != nil {
		return nil, &model.StoreUnavailableError{Store: "warehouse", Err: err}
	}
	if prior != nil && prior.Status == staging.BatchCompleted {
		log.Info().Msg("Batch already completed, nothing to do")
		report := model.NewBatchReport(batchID, source)
		if len(prior.Report) > 0 {
			if err := json.Unmarshal(prior.Report, report); err != nil {
				log.Warn().Err(err).Msg("Stored batch report is unreadable")
			}
		}
		return report, nil
	}

	report := model.NewBatchReport(batchID, source)
	started := time.Now()
	log.Info().Msg("Batch started")

	// Shared between stages: dimension stages hand their accepted
	// records to the document stage, and the date stage prefetches the
	// fact records it derives calendar days from.
	var (
		acceptedDims []model.Record
		txnRecords   []model.Record
		invRecords   []model.Record
	)

	timers := make(map[string]*stageTimer)
	timer := func(name string) *stageTimer {
		t, ok := timers[name]
		if !ok {
			t = newStageTimer()
			timers[name] = t
		}
		return t
	}

	stages := []struct {
		name string
		skip bool
		run  func(context.Context) (processed, total int, err error)
	}{
		{name: stageCustomers, run: func(ctx context.Context) (int, int, error) {
			records, err := c.staging.FetchBatch(ctx, model.EntityCustomer, batchID)
			if err != nil {
				return 0, 0, err
			}
			accepted, processed, err := c.loadDimension(ctx, model.EntityCustomer, records, report, timer(stageCustomers))
			acceptedDims = append(acceptedDims, accepted...)
			return processed, len(records), err
		}},
		{name: stageProducts, run: func(ctx context.Context) (int, int, error) {
			records, err := c.staging.FetchBatch(ctx, model.EntityProduct, batchID)
			if err != nil {
				return 0, 0, err
			}
			accepted, processed, err := c.loadDimension(ctx, model.EntityProduct, records, report, timer(stageProducts))
			acceptedDims = append(acceptedDims, accepted...)
			return processed, len(records), err
		}},
		{name: stageLocations, run: func(ctx context.Context) (int, int, error) {
			records, err := c.staging.FetchBatch(ctx, model.EntityLocation, batchID)
			if err != nil {
				return 0, 0, err
			}
			_, processed, err := c.loadDimension(ctx, model.EntityLocation, records, report, timer(stageLocations))
			return processed, len(records), err
		}},
		{name: stageDates, run: func(ctx context.Context) (int, int, error) {
			var err error
			if txnRecords, err = c.staging.FetchBatch(ctx, model.EntityTransaction, batchID); err != nil {
				return 0, 0, err
			}
			if invRecords, err = c.staging.FetchBatch(ctx, model.EntityInventory, batchID); err != nil {
				return 0, 0, err
			}
			n, err := c.ensureDates(ctx, txnRecords, invRecords, report)
			return n, n, err
		}},
		{name: stageTransactions, run: func(ctx context.Context) (int, int, error) {
			processed, err := c.loadTransactions(ctx, txnRecords, report, timer(stageTransactions))
			return processed, len(txnRecords), err
		}},
		{name: stageItems, run: func(ctx context.Context) (int, int, error) {
			records, err := c.staging.FetchBatch(ctx, model.EntityTransactionItem, batchID)
			if err != nil {
				return 0, 0, err
			}
			processed, err := c.loadItems(ctx, records, report, timer(stageItems))
			return processed, len(records), err
		}},
		{name: stageInventory, run: func(ctx context.Context) (int, int, error) {
			processed, err := c.loadInventory(ctx, invRecords, report, timer(stageInventory))
			return processed, len(invRecords), err
		}},
		{name: stageDocuments, skip: c.documents == nil || c.cfg.SkipDocuments, run: func(ctx context.Context) (int, int, error) {
			processed, err := c.loadDocuments(ctx, acceptedDims, report, timer(stageDocuments))
			return processed, len(acceptedDims), err
		}},
	}

	var firstErr error
	for _, st := range stages {
		if st.skip || firstErr != nil {
			report.Stages = append(report.Stages, model.StageResult{
				Stage:  st.name,
				Status: model.StageSkipped,
			})
			continue
		}

		stageStart := time.Now()
		processed, total, err := st.run(ctx)
		if err != nil {
			firstErr = wrapStoreErr(st.name, err)
			log.Error().Err(firstErr).Str("stage", st.name).Msg("Stage failed")
			report.Stages = append(report.Stages, model.StageResult{
				Stage:     st.name,
				Status:    model.StageFailed,
				Error:     firstErr.Error(),
				Remaining: total - processed,
			})
			continue
		}

		log.Debug().
			Str("stage", st.name).
			Int("records", total).
			Dur("elapsed", time.Since(stageStart)).
			Msg("Stage completed")
		report.Stages = append(report.Stages, model.StageResult{
			Stage:  st.name,
			Status: model.StageCompleted,
		})
	}

	report.CompletedAt = time.Now().UTC()
	for name, t := range timers {
		s := t.summary()
		if s.Count == 0 {
			continue
		}
		if report.Latency == nil {
			report.Latency = make(map[string]model.LatencySummary)
		}
		report.Latency[name] = s
	}

	// Finalization must survive cancellation: the ledger records what
	// actually committed.
	finCtx := context.WithoutCancel(ctx)

	if firstErr != nil {
		if err := c.ledger.Fail(finCtx, batchID, report); err != nil {
			log.Warn().Err(err).Msg("Failed to record batch failure")
		}
		return report, firstErr
	}

	now := time.Now().UTC()
	for _, entity := range model.LoadOrder() {
		if entity == model.EntityDate {
			continue
		}
		if _, err := c.staging.MarkProcessed(finCtx, entity, batchID, now); err != nil {
			log.Warn().Err(err).Str("entity", string(entity)).Msg("Failed to stamp staged rows")
		}
	}

	if err := c.ledger.Complete(finCtx, batchID, report); err != nil {
		return report, &model.StoreUnavailableError{Store: "warehouse", Err: err}
	}

	log.Info().
		Int("accepted", report.TotalAccepted()).
		Int("rejected", report.TotalRejected()).
		Int("drift", len(report.Drift)).
		Dur("elapsed", time.Since(started)).
		Msg("Batch completed")
	return report, nil
}

// wrapStoreErr tags stage-fatal errors with the store they came from.
// Cancellation passes through untouched.
func wrapStoreErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var su *model.StoreUnavailableError
	if errors.As(err, &su) {
		return err
	}
	store := "warehouse"
	if stage == stageDocuments {
		store = "documents"
	}
	return &model.StoreUnavailableError{Store: store, Err: err}
}
