//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/pgEdge/warehouse-loader/internal/datedim"
	"github.com/pgEdge/warehouse-loader/internal/db"
	"github.com/pgEdge/warehouse-loader/internal/model"
)

const defaultChunkSize = 500

// Store reads and writes the star schema through a pgx pool or
// connection. It implements keymap.Store for the dimension tables and
// datedim.Store for dim_date. Statements are chunked so a large batch
// never builds one enormous parameter list.
type Store struct {
	db    db.DB
	chunk int
}

// New creates a Store with the default chunk size.
func New(database db.DB) *Store {
	return &Store{db: database, chunk: defaultChunkSize}
}

// NewWithChunkSize creates a Store that batches at most chunkSize rows
// per statement.
func NewWithChunkSize(database db.DB, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Store{db: database, chunk: chunkSize}
}

// Allocate inserts missing natural keys into the entity's dimension
// table and returns surrogate ids for all of them. The insert uses
// ON CONFLICT DO NOTHING, so when two loads race on a key the database
// picks a single winner and everyone reads that surrogate back.
func (s *Store) Allocate(ctx context.Context, entity model.EntityType, naturalKeys []string) (map[string]int64, map[string]bool, error) {
	spec, ok := dimensionSpec(entity)
	if !ok {
		return nil, nil, fmt.Errorf("entity %s does not support key allocation", entity)
	}

	keys := dedupe(naturalKeys)
	ids := make(map[string]int64, len(keys))
	created := make(map[string]bool)

	err := chunked(keys, s.chunk, func(part []string) error {
		rows := make([][]any, len(part))
		for i, k := range part {
			rows[i] = []any{k}
		}
		sql, args := buildInsertSQL(spec.table, []string{spec.keyColumn}, rows,
			[]string{spec.keyColumn}, []string{spec.keyColumn, spec.idColumn})

		res, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("failed to allocate %s keys: %w", entity, err)
		}
		defer res.Close()

		for res.Next() {
			var key string
			var id int64
			if err := res.Scan(&key, &id); err != nil {
				return fmt.Errorf("failed to scan allocated %s key: %w", entity, err)
			}
			ids[key] = id
			created[key] = true
		}
		return res.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	// Keys that lost the conflict already exist; read their surrogates.
	var existing []string
	for _, k := range keys {
		if _, ok := ids[k]; !ok {
			existing = append(existing, k)
		}
	}
	if len(existing) > 0 {
		found, err := s.Lookup(ctx, entity, existing)
		if err != nil {
			return nil, nil, err
		}
		for k, id := range found {
			ids[k] = id
		}
	}

	for _, k := range keys {
		if _, ok := ids[k]; !ok {
			return nil, nil, fmt.Errorf("no surrogate for %s key %q after allocation", entity, k)
		}
	}
	return ids, created, nil
}

// Lookup returns surrogate ids for the subset of keys that exist.
func (s *Store) Lookup(ctx context.Context, entity model.EntityType, naturalKeys []string) (map[string]int64, error) {
	spec, ok := lookupSpec(entity)
	if !ok {
		return nil, fmt.Errorf("no key table for entity %s", entity)
	}

	keys := dedupe(naturalKeys)
	out := make(map[string]int64, len(keys))

	err := chunked(keys, s.chunk, func(part []string) error {
		sql := buildSelectInSQL(spec.table, spec.keyColumn, spec.idColumn, len(part))
		args := make([]any, len(part))
		for i, k := range part {
			args[i] = k
		}

		rows, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("failed to look up %s keys: %w", entity, err)
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			var id int64
			if err := rows.Scan(&key, &id); err != nil {
				return fmt.Errorf("failed to scan %s key: %w", entity, err)
			}
			out[key] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertDimension applies a Type-1 overwrite to one dimension row. Only
// columns present in attrs are written; everything else keeps its
// current value. updated_at is always advanced to now.
func (s *Store) UpsertDimension(ctx context.Context, entity model.EntityType, surrogateID int64, attrs map[string]any, now time.Time) error {
	spec, ok := dimensionSpec(entity)
	if !ok {
		return fmt.Errorf("entity %s has no dimension table", entity)
	}

	columns := make([]string, 0, len(spec.attrColumns)+1)
	args := make([]any, 0, len(spec.attrColumns)+2)
	for _, c := range spec.attrColumns {
		if v, ok := attrs[c]; ok {
			columns = append(columns, c)
			args = append(args, v)
		}
	}
	columns = append(columns, "updated_at")
	args = append(args, now)
	args = append(args, surrogateID)

	sql := buildUpdateSQL(spec.table, columns, spec.idColumn)
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", entity, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no %s row for surrogate %d", entity, surrogateID)
	}
	return nil
}

var dateColumns = []string{
	"date_id", "full_date", "day_of_week", "day_name", "day_of_month",
	"day_of_year", "week_of_year", "month_number", "month_name",
	"quarter", "year", "is_weekend", "is_holiday", "holiday_name",
}

// InsertDates adds date dimension rows, skipping ids that already exist.
// Returns the number of rows actually inserted.
func (s *Store) InsertDates(ctx context.Context, rows []datedim.Row) (int64, error) {
	var total int64
	err := chunked(rows, s.chunk, func(part []datedim.Row) error {
		vals := make([][]any, len(part))
		for i, r := range part {
			vals[i] = []any{
				r.DateID, r.FullDate, r.DayOfWeek, r.DayName, r.DayOfMonth,
				r.DayOfYear, r.WeekOfYear, r.MonthNumber, r.MonthName,
				r.Quarter, r.Year, r.IsWeekend, r.IsHoliday,
				nullString(r.HolidayName),
			}
		}
		sql, args := buildInsertSQL("retail.dim_date", dateColumns, vals, []string{"date_id"}, nil)
		tag, err := s.db.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("failed to insert dates: %w", err)
		}
		total += tag.RowsAffected()
		return nil
	})
	return total, err
}

// TransactionRow is a fully resolved transaction fact ready for insert.
type TransactionRow struct {
	Key             string
	CustomerID      int64
	DateID          int
	LocationID      int64
	TotalAmount     float64
	DiscountAmount  float64
	TaxAmount       float64
	ShippingAmount  float64
	PaymentMethod   string
	Channel         string
	TransactionTime time.Time
	IsReturn        bool
}

var transactionColumns = []string{
	"transaction_key", "customer_id", "date_id", "location_id",
	"total_amount", "discount_amount", "tax_amount", "shipping_amount",
	"payment_method", "channel", "transaction_time", "is_return",
}

// InsertTransactions appends transaction facts. Duplicate transaction
// keys are left untouched and reported through the created map, which is
// false for keys that already existed. The ids map always covers every
// input key so item loading can resolve parents either way.
func (s *Store) InsertTransactions(ctx context.Context, rows []TransactionRow) (map[string]int64, map[string]bool, error) {
	ids := make(map[string]int64, len(rows))
	created := make(map[string]bool, len(rows))

	err := chunked(rows, s.chunk, func(part []TransactionRow) error {
		vals := make([][]any, len(part))
		for i, r := range part {
			vals[i] = []any{
				r.Key, r.CustomerID, r.DateID, r.LocationID,
				r.TotalAmount, r.DiscountAmount, r.TaxAmount, r.ShippingAmount,
				nullString(r.PaymentMethod), nullString(r.Channel), r.TransactionTime, r.IsReturn,
			}
		}
		sql, args := buildInsertSQL("retail.fact_transaction", transactionColumns, vals,
			[]string{"transaction_key"}, []string{"transaction_key", "transaction_id"})

		res, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("failed to insert transactions: %w", err)
		}
		defer res.Close()

		for res.Next() {
			var key string
			var id int64
			if err := res.Scan(&key, &id); err != nil {
				return fmt.Errorf("failed to scan inserted transaction: %w", err)
			}
			ids[key] = id
			created[key] = true
		}
		return res.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var existing []string
	for _, r := range rows {
		if _, ok := ids[r.Key]; !ok {
			existing = append(existing, r.Key)
		}
	}
	if len(existing) > 0 {
		found, err := s.Lookup(ctx, model.EntityTransaction, existing)
		if err != nil {
			return nil, nil, err
		}
		for k, id := range found {
			ids[k] = id
			created[k] = false
		}
	}
	return ids, created, nil
}

// ItemRow is a fully resolved transaction line fact. NaturalKey is the
// reporting identity carried back in the created map.
type ItemRow struct {
	NaturalKey     string
	TransactionID  int64
	ProductID      int64
	LineNumber     int
	Quantity       int
	UnitPrice      float64
	DiscountAmount float64
	TaxAmount      float64
	LineTotal      float64
}

var itemColumns = []string{
	"transaction_id", "product_id", "line_number", "quantity",
	"unit_price", "discount_amount", "tax_amount", "line_total",
}

// InsertTransactionItems appends line item facts. A duplicate
// (transaction_id, line_number) pair is skipped; its natural key maps to
// false in the result.
func (s *Store) InsertTransactionItems(ctx context.Context, rows []ItemRow) (map[string]bool, error) {
	byLine := make(map[string]string, len(rows))
	created := make(map[string]bool, len(rows))
	for _, r := range rows {
		byLine[fmt.Sprintf("%d:%d", r.TransactionID, r.LineNumber)] = r.NaturalKey
		created[r.NaturalKey] = false
	}

	err := chunked(rows, s.chunk, func(part []ItemRow) error {
		vals := make([][]any, len(part))
		for i, r := range part {
			vals[i] = []any{
				r.TransactionID, r.ProductID, r.LineNumber, r.Quantity,
				r.UnitPrice, r.DiscountAmount, r.TaxAmount, r.LineTotal,
			}
		}
		sql, args := buildInsertSQL("retail.fact_transaction_item", itemColumns, vals,
			[]string{"transaction_id", "line_number"}, []string{"transaction_id", "line_number"})

		res, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("failed to insert transaction items: %w", err)
		}
		defer res.Close()

		for res.Next() {
			var txnID int64
			var line int
			if err := res.Scan(&txnID, &line); err != nil {
				return fmt.Errorf("failed to scan inserted item: %w", err)
			}
			if key, ok := byLine[fmt.Sprintf("%d:%d", txnID, line)]; ok {
				created[key] = true
			}
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// InventoryRow is a fully resolved inventory snapshot. Reorder fields
// are pointers because sources may omit them.
type InventoryRow struct {
	NaturalKey       string
	ProductID        int64
	DateID           int
	LocationID       int64
	QuantityOnHand   int
	QuantityReserved int
	ReorderPoint     *int64
	ReorderQuantity  *int64
}

var inventoryColumns = []string{
	"product_id", "date_id", "location_id", "quantity_on_hand",
	"quantity_reserved", "reorder_point", "reorder_quantity",
}

// InsertInventory appends inventory snapshots. One snapshot exists per
// product, location, and day; duplicates map to false in the result.
func (s *Store) InsertInventory(ctx context.Context, rows []InventoryRow) (map[string]bool, error) {
	bySlot := make(map[string]string, len(rows))
	created := make(map[string]bool, len(rows))
	for _, r := range rows {
		bySlot[fmt.Sprintf("%d:%d:%d", r.ProductID, r.DateID, r.LocationID)] = r.NaturalKey
		created[r.NaturalKey] = false
	}

	err := chunked(rows, s.chunk, func(part []InventoryRow) error {
		vals := make([][]any, len(part))
		for i, r := range part {
			vals[i] = []any{
				r.ProductID, r.DateID, r.LocationID, r.QuantityOnHand,
				r.QuantityReserved, r.ReorderPoint, r.ReorderQuantity,
			}
		}
		sql, args := buildInsertSQL("retail.fact_inventory", inventoryColumns, vals,
			[]string{"product_id", "date_id", "location_id"},
			[]string{"product_id", "date_id", "location_id"})

		res, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("failed to insert inventory: %w", err)
		}
		defer res.Close()

		for res.Next() {
			var productID, locationID int64
			var dateID int
			if err := res.Scan(&productID, &dateID, &locationID); err != nil {
				return fmt.Errorf("failed to scan inserted inventory: %w", err)
			}
			if key, ok := bySlot[fmt.Sprintf("%d:%d:%d", productID, dateID, locationID)]; ok {
				created[key] = true
			}
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Counts returns row counts for every warehouse table, keyed by
// qualified table name.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	tables := []string{
		"retail.dim_customer", "retail.dim_product", "retail.dim_location",
		"retail.dim_date", "retail.fact_transaction",
		"retail.fact_transaction_item", "retail.fact_inventory",
	}
	out := make(map[string]int64, len(tables))
	for _, t := range tables {
		var n int64
		if err := s.db.QueryRow(ctx, "SELECT count(*) FROM "+t).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t, err)
		}
		out[t] = n
	}
	return out, nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
