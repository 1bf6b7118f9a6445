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
	"math"
	"sync"
	"time"

	"github.com/pgEdge/warehouse-loader/internal/datedim"
	"github.com/pgEdge/warehouse-loader/internal/logging"
	"github.com/pgEdge/warehouse-loader/internal/model"
	"github.com/pgEdge/warehouse-loader/internal/warehouse"
)

// txnState accumulates one worker's transaction rows for a batched flush.
type txnState struct {
	acc  model.EntityReport
	rows []warehouse.TransactionRow
}

// loadTransactions inserts transaction header facts. Workers validate
// and resolve dimension references per record, then flush rows in bulk;
// duplicate keys route to the same worker, so only the first occurrence
// can count as created.
func (c *Coordinator) loadTransactions(ctx context.Context, records []model.Record, report *model.BatchReport, timer *stageTimer) (int, error) {
	var mu sync.Mutex
	entityReport := report.Entity(model.EntityTransaction)

	return runWorkers(ctx, c.cfg.Workers, records,
		func(rec model.Record) string { return rec.NaturalKey() },
		func(int) *txnState { return &txnState{} },
		func(ctx context.Context, s *txnState, rec model.Record) error {
			start := time.Now()

			res := c.validator.Validate(rec)
			if !res.Accepted() {
				s.acc.Reject(rec.NaturalKey(), res.Reasons)
				return nil
			}

			customerKey, _ := rec.String("customer_key")
			customerID, ok, err := c.resolver.Lookup(ctx, model.EntityCustomer, customerKey)
			if err != nil {
				return err
			}
			if !ok {
				rejectUnresolved(&s.acc, rec, model.EntityCustomer, customerKey)
				return nil
			}

			locationKey, _ := rec.String("location_key")
			locationID, ok, err := c.resolver.Lookup(ctx, model.EntityLocation, locationKey)
			if err != nil {
				return err
			}
			if !ok {
				rejectUnresolved(&s.acc, rec, model.EntityLocation, locationKey)
				return nil
			}

			txTime, _ := rec.Time("transaction_time")
			total, _ := rec.Float("total_amount")
			payment, _ := rec.String("payment_method")
			channel, _ := rec.String("channel")
			isReturn, _ := rec.Bool("is_return")

			s.rows = append(s.rows, warehouse.TransactionRow{
				Key:             rec.NaturalKey(),
				CustomerID:      customerID,
				DateID:          datedim.DateID(txTime),
				LocationID:      locationID,
				TotalAmount:     total,
				DiscountAmount:  floatOr(rec, "discount_amount", 0),
				TaxAmount:       floatOr(rec, "tax_amount", 0),
				ShippingAmount:  floatOr(rec, "shipping_amount", 0),
				PaymentMethod:   payment,
				Channel:         channel,
				TransactionTime: txTime,
				IsReturn:        isReturn,
			})
			timer.observe(time.Since(start))
			return nil
		},
		func(ctx context.Context, s *txnState) error {
			if len(s.rows) > 0 {
				ids, created, err := c.warehouse.InsertTransactions(ctx, s.rows)
				if err != nil {
					return err
				}
				c.resolver.Prime(model.EntityTransaction, ids)
				countInserted(&s.acc, model.EntityTransaction, transactionKeys(s.rows), created)
			}
			mu.Lock()
			entityReport.Merge(&s.acc)
			mu.Unlock()
			return nil
		},
	)
}

// itemState additionally carries records whose parent transaction was
// unknown on first sight; they get one retry after the first pass.
type itemState struct {
	acc      model.EntityReport
	rows     []warehouse.ItemRow
	deferred []model.Record
}

// loadItems inserts transaction line facts. An item referencing an
// unknown product is rejected outright, but an unknown parent
// transaction defers the item: feeds can arrive out of order, so the
// parent may resolve once the whole pass has run.
func (c *Coordinator) loadItems(ctx context.Context, records []model.Record, report *model.BatchReport, timer *stageTimer) (int, error) {
	var (
		mu       sync.Mutex
		deferred []model.Record
	)
	entityReport := report.Entity(model.EntityTransactionItem)

	processed, err := runWorkers(ctx, c.cfg.Workers, records,
		func(rec model.Record) string { return rec.NaturalKey() },
		func(int) *itemState { return &itemState{} },
		func(ctx context.Context, s *itemState, rec model.Record) error {
			start := time.Now()

			res := c.validator.Validate(rec)
			if !res.Accepted() {
				s.acc.Reject(rec.NaturalKey(), res.Reasons)
				return nil
			}
			if reasons := c.checkItemMeasures(rec); reasons != nil {
				s.acc.Reject(rec.NaturalKey(), reasons)
				return nil
			}

			row, dep, err := c.buildItemRow(ctx, rec)
			if err != nil {
				return err
			}
			if dep != nil {
				if dep.RefEntity == model.EntityTransaction {
					s.deferred = append(s.deferred, rec)
					return nil
				}
				s.acc.Reject(rec.NaturalKey(), []string{dep.Error()})
				return nil
			}

			s.rows = append(s.rows, *row)
			timer.observe(time.Since(start))
			return nil
		},
		func(ctx context.Context, s *itemState) error {
			if err := c.flushItems(ctx, s); err != nil {
				return err
			}
			mu.Lock()
			entityReport.Merge(&s.acc)
			deferred = append(deferred, s.deferred...)
			mu.Unlock()
			return nil
		},
	)
	if err != nil || len(deferred) == 0 {
		return processed, err
	}
	return processed, c.retryItems(ctx, deferred, entityReport)
}

// retryItems re-resolves items deferred for a missing parent. Parents
// that are still unknown are final rejections.
func (c *Coordinator) retryItems(ctx context.Context, deferred []model.Record, er *model.EntityReport) error {
	s := &itemState{}
	defer func() { er.Merge(&s.acc) }()

	for _, rec := range deferred {
		row, dep, err := c.buildItemRow(ctx, rec)
		if err != nil {
			return err
		}
		if dep != nil {
			s.acc.Reject(rec.NaturalKey(), []string{dep.Error()})
			logging.Debug().
				Str("natural_key", rec.NaturalKey()).
				Str("ref_key", dep.RefKey).
				Msg("Item parent still unresolved after retry")
			continue
		}
		s.rows = append(s.rows, *row)
	}
	return c.flushItems(ctx, s)
}

// buildItemRow resolves an item's parents into a ready-to-insert row. A
// nil row with a non-nil dep means a parent is unknown; dep names which.
func (c *Coordinator) buildItemRow(ctx context.Context, rec model.Record) (*warehouse.ItemRow, *model.UnresolvedDependencyError, error) {
	txnKey, _ := rec.String("transaction_key")
	txnID, ok, err := c.resolver.Lookup(ctx, model.EntityTransaction, txnKey)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, &model.UnresolvedDependencyError{
			Entity:     rec.Entity,
			NaturalKey: rec.NaturalKey(),
			RefEntity:  model.EntityTransaction,
			RefKey:     txnKey,
		}, nil
	}

	productKey, _ := rec.String("product_key")
	productID, ok, err := c.resolver.Lookup(ctx, model.EntityProduct, productKey)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, &model.UnresolvedDependencyError{
			Entity:     rec.Entity,
			NaturalKey: rec.NaturalKey(),
			RefEntity:  model.EntityProduct,
			RefKey:     productKey,
		}, nil
	}

	line, _ := rec.Int("line_number")
	qty, _ := rec.Int("quantity")
	unit, _ := rec.Float("unit_price")
	lineTotal, _ := rec.Float("line_total")

	return &warehouse.ItemRow{
		NaturalKey:     rec.NaturalKey(),
		TransactionID:  txnID,
		ProductID:      productID,
		LineNumber:     int(line),
		Quantity:       int(qty),
		UnitPrice:      unit,
		DiscountAmount: floatOr(rec, "discount_amount", 0),
		TaxAmount:      floatOr(rec, "tax_amount", 0),
		LineTotal:      lineTotal,
	}, nil, nil
}

func (c *Coordinator) flushItems(ctx context.Context, s *itemState) error {
	if len(s.rows) == 0 {
		return nil
	}
	created, err := c.warehouse.InsertTransactionItems(ctx, s.rows)
	if err != nil {
		return err
	}
	countInserted(&s.acc, model.EntityTransactionItem, itemKeys(s.rows), created)
	s.rows = s.rows[:0]
	return nil
}

// checkItemMeasures recomputes the line total from its components and
// rejects the item when the supplied value disagrees beyond tolerance.
// The parent transaction is unaffected.
func (c *Coordinator) checkItemMeasures(rec model.Record) []string {
	qty, _ := rec.Int("quantity")
	unit, _ := rec.Float("unit_price")
	supplied, _ := rec.Float("line_total")
	computed := float64(qty)*unit - floatOr(rec, "discount_amount", 0) + floatOr(rec, "tax_amount", 0)
	if math.Abs(supplied-computed) > c.cfg.MeasureTolerance {
		mismatch := &model.MeasureMismatchError{
			Field:     "line_total",
			Supplied:  supplied,
			Computed:  computed,
			Tolerance: c.cfg.MeasureTolerance,
		}
		return []string{mismatch.Error()}
	}
	return nil
}

// invState accumulates one worker's inventory snapshot rows.
type invState struct {
	acc  model.EntityReport
	rows []warehouse.InventoryRow
}

// loadInventory inserts daily inventory snapshot facts.
func (c *Coordinator) loadInventory(ctx context.Context, records []model.Record, report *model.BatchReport, timer *stageTimer) (int, error) {
	var mu sync.Mutex
	entityReport := report.Entity(model.EntityInventory)

	return runWorkers(ctx, c.cfg.Workers, records,
		func(rec model.Record) string { return rec.NaturalKey() },
		func(int) *invState { return &invState{} },
		func(ctx context.Context, s *invState, rec model.Record) error {
			start := time.Now()

			res := c.validator.Validate(rec)
			if !res.Accepted() {
				s.acc.Reject(rec.NaturalKey(), res.Reasons)
				return nil
			}

			productKey, _ := rec.String("product_key")
			productID, ok, err := c.resolver.Lookup(ctx, model.EntityProduct, productKey)
			if err != nil {
				return err
			}
			if !ok {
				rejectUnresolved(&s.acc, rec, model.EntityProduct, productKey)
				return nil
			}

			locationKey, _ := rec.String("location_key")
			locationID, ok, err := c.resolver.Lookup(ctx, model.EntityLocation, locationKey)
			if err != nil {
				return err
			}
			if !ok {
				rejectUnresolved(&s.acc, rec, model.EntityLocation, locationKey)
				return nil
			}

			day, _ := rec.Time("snapshot_date")
			onHand, _ := rec.Int("quantity_on_hand")

			s.rows = append(s.rows, warehouse.InventoryRow{
				NaturalKey:       rec.NaturalKey(),
				ProductID:        productID,
				DateID:           datedim.DateID(day),
				LocationID:       locationID,
				QuantityOnHand:   int(onHand),
				QuantityReserved: int(intOr(rec, "quantity_reserved", 0)),
				ReorderPoint:     optionalInt(rec, "reorder_point"),
				ReorderQuantity:  optionalInt(rec, "reorder_quantity"),
			})
			timer.observe(time.Since(start))
			return nil
		},
		func(ctx context.Context, s *invState) error {
			if len(s.rows) > 0 {
				created, err := c.warehouse.InsertInventory(ctx, s.rows)
				if err != nil {
					return err
				}
				countInserted(&s.acc, model.EntityInventory, inventoryKeys(s.rows), created)
			}
			mu.Lock()
			entityReport.Merge(&s.acc)
			mu.Unlock()
			return nil
		},
	)
}

// rejectUnresolved records a fact rejection for a reference no batch has
// ever loaded.
func rejectUnresolved(acc *model.EntityReport, rec model.Record, refEntity model.EntityType, refKey string) {
	dep := &model.UnresolvedDependencyError{
		Entity:     rec.Entity,
		NaturalKey: rec.NaturalKey(),
		RefEntity:  refEntity,
		RefKey:     refKey,
	}
	acc.Reject(rec.NaturalKey(), []string{dep.Error()})
	logging.Debug().
		Str("entity", string(rec.Entity)).
		Str("natural_key", rec.NaturalKey()).
		Str("ref_entity", string(refEntity)).
		Str("ref_key", refKey).
		Msg("Record references unresolved dependency")
}

// countInserted turns a created map into outcome counts. Rows repeating
// a key count as already present after the first occurrence.
func countInserted(acc *model.EntityReport, entity model.EntityType, keys []string, created map[string]bool) {
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] && created[key] {
			acc.Count(model.OutcomeCreated)
		} else {
			dup := &model.DuplicateNaturalKeyError{Entity: entity, NaturalKey: key}
			logging.Debug().Err(dup).Msg("Fact row skipped")
			acc.Count(model.OutcomeAlreadyPresent)
		}
		seen[key] = true
	}
}

func transactionKeys(rows []warehouse.TransactionRow) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}

func itemKeys(rows []warehouse.ItemRow) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.NaturalKey
	}
	return keys
}

func inventoryKeys(rows []warehouse.InventoryRow) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.NaturalKey
	}
	return keys
}

func floatOr(rec model.Record, field string, fallback float64) float64 {
	if v, ok := rec.Float(field); ok {
		return v
	}
	return fallback
}

func intOr(rec model.Record, field string, fallback int64) int64 {
	if v, ok := rec.Int(field); ok {
		return v
	}
	return fallback
}

func optionalInt(rec model.Record, field string) *int64 {
	if v, ok := rec.Int(field); ok {
		return &v
	}
	return nil
}
