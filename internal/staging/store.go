//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package staging reads and writes the staging area: raw source rows
// landed by connectors plus the batch ledger that makes re-ingestion a
// no-op.
package staging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgEdge/warehouse-loader/internal/db"
	"github.com/pgEdge/warehouse-loader/internal/model"
)

// Numeric columns are cast in the fetch queries so pgx hands back plain
// float64 and int64 values instead of driver numeric types.
var fetchQueries = map[model.EntityType]string{
	model.EntityCustomer: `
        SELECT customer_key, first_name, last_name, email, phone, is_active,
               created_at, addresses, preferences, source
        FROM staging.stg_customer WHERE batch_id = $1 ORDER BY stg_id`,
	model.EntityProduct: `
        SELECT product_key, product_name, description, category, subcategory,
               brand, supplier, unit_price::float8 AS unit_price,
               cost_price::float8 AS cost_price, is_active, reviews, images, source
        FROM staging.stg_product WHERE batch_id = $1 ORDER BY stg_id`,
	model.EntityLocation: `
        SELECT location_key, country, region, state, city, postal_code, source
        FROM staging.stg_location WHERE batch_id = $1 ORDER BY stg_id`,
	model.EntityTransaction: `
        SELECT transaction_key, customer_key, location_key, transaction_time,
               total_amount::float8 AS total_amount,
               discount_amount::float8 AS discount_amount,
               tax_amount::float8 AS tax_amount,
               shipping_amount::float8 AS shipping_amount,
               payment_method, channel, is_return, source
        FROM staging.stg_transaction WHERE batch_id = $1 ORDER BY stg_id`,
	model.EntityTransactionItem: `
        SELECT transaction_key, product_key, line_number::int8 AS line_number,
               quantity::int8 AS quantity, unit_price::float8 AS unit_price,
               discount_amount::float8 AS discount_amount,
               tax_amount::float8 AS tax_amount,
               line_total::float8 AS line_total, source
        FROM staging.stg_transaction_item WHERE batch_id = $1 ORDER BY stg_id`,
	model.EntityInventory: `
        SELECT product_key, location_key, snapshot_date,
               quantity_on_hand::int8 AS quantity_on_hand,
               quantity_reserved::int8 AS quantity_reserved,
               reorder_point::int8 AS reorder_point,
               reorder_quantity::int8 AS reorder_quantity, source
        FROM staging.stg_inventory WHERE batch_id = $1 ORDER BY stg_id`,
}

// insertColumns lists the writable columns per staging table, in insert
// order. source and batch_id are appended by the store.
var insertColumns = map[model.EntityType][]string{
	model.EntityCustomer: {
		"customer_key", "first_name", "last_name", "email", "phone",
		"is_active", "created_at", "addresses", "preferences",
	},
	model.EntityProduct: {
		"product_key", "product_name", "description", "category",
		"subcategory", "brand", "supplier", "unit_price", "cost_price",
		"is_active", "reviews", "images",
	},
	model.EntityLocation: {
		"location_key", "country", "region", "state", "city", "postal_code",
	},
	model.EntityTransaction: {
		"transaction_key", "customer_key", "location_key", "transaction_time",
		"total_amount", "discount_amount", "tax_amount", "shipping_amount",
		"payment_method", "channel", "is_return",
	},
	model.EntityTransactionItem: {
		"transaction_key", "product_key", "line_number", "quantity",
		"unit_price", "discount_amount", "tax_amount", "line_total",
	},
	model.EntityInventory: {
		"product_key", "location_key", "snapshot_date", "quantity_on_hand",
		"quantity_reserved", "reorder_point", "reorder_quantity",
	},
}

var stagingTables = map[model.EntityType]string{
	model.EntityCustomer:        "staging.stg_customer",
	model.EntityProduct:         "staging.stg_product",
	model.EntityLocation:        "staging.stg_location",
	model.EntityTransaction:     "staging.stg_transaction",
	model.EntityTransactionItem: "staging.stg_transaction_item",
	model.EntityInventory:       "staging.stg_inventory",
}

// Store reads staged source rows into records and lands new rows for
// ingestion. Dates have no staging table; the pipeline derives them from
// transaction and inventory rows.
type Store struct {
	db db.DB
}

// NewStore creates a staging store over the given database.
func NewStore(database db.DB) *Store {
	return &Store{db: database}
}

// FetchBatch returns the staged rows for one entity and batch, in
// arrival order. NULL columns are absent from the record fields.
func (s *Store) FetchBatch(ctx context.Context, entity model.EntityType, batchID string) ([]model.Record, error) {
	query, ok := fetchQueries[entity]
	if !ok {
		return nil, fmt.Errorf("entity %s has no staging table", entity)
	}

	rows, err := s.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch staged %s rows: %w", entity, err)
	}
	defer rows.Close()

	var records []model.Record
	descs := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read staged %s row: %w", entity, err)
		}

		rec := model.Record{
			Entity:  entity,
			BatchID: batchID,
			Fields:  make(map[string]any, len(values)),
		}
		for i, v := range values {
			if v == nil {
				continue
			}
			name := string(descs[i].Name)
			if name == "source" {
				if src, ok := v.(string); ok {
					rec.Source = src
				}
				continue
			}
			rec.Fields[name] = v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch staged %s rows: %w", entity, err)
	}
	return records, nil
}

// InsertRecords lands records in their staging tables. Records carry
// their own entity, source, and batch id. Used by the seed tool and by
// tests; connectors normally write staging tables directly.
func (s *Store) InsertRecords(ctx context.Context, records []model.Record) (int64, error) {
	byEntity := make(map[model.EntityType][]model.Record)
	for _, rec := range records {
		byEntity[rec.Entity] = append(byEntity[rec.Entity], rec)
	}

	var total int64
	for _, entity := range model.LoadOrder() {
		group := byEntity[entity]
		if len(group) == 0 {
			continue
		}
		columns, ok := insertColumns[entity]
		if !ok {
			return total, fmt.Errorf("entity %s has no staging table", entity)
		}

		const chunk = 200
		for start := 0; start < len(group); start += chunk {
			end := start + chunk
			if end > len(group) {
				end = len(group)
			}
			part := group[start:end]

			sql, args := buildStagingInsert(stagingTables[entity], columns, part)
			tag, err := s.db.Exec(ctx, sql, args...)
			if err != nil {
				return total, fmt.Errorf("failed to stage %s rows: %w", entity, err)
			}
			total += tag.RowsAffected()
		}
	}
	return total, nil
}

// MarkProcessed stamps every unprocessed row of the batch. Returns the
// number of rows stamped.
func (s *Store) MarkProcessed(ctx context.Context, entity model.EntityType, batchID string, now time.Time) (int64, error) {
	table, ok := stagingTables[entity]
	if !ok {
		return 0, fmt.Errorf("entity %s has no staging table", entity)
	}
	sql := fmt.Sprintf(
		"UPDATE %s SET processed_at = $2 WHERE batch_id = $1 AND processed_at IS NULL", table)
	tag, err := s.db.Exec(ctx, sql, batchID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark %s rows processed: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

// buildStagingInsert renders a multi-row staging INSERT. Absent record
// fields become NULL, and source and batch_id come from the record
// itself.
func buildStagingInsert(table string, columns []string, records []model.Record) (string, []any) {
	all := make([]string, 0, len(columns)+2)
	all = append(all, columns...)
	all = append(all, "source", "batch_id")

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(all, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(all))
	p := 1
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			if v, ok := rec.Fields[c]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
			p++
		}
		fmt.Fprintf(&b, ", $%d, $%d)", p, p+1)
		args = append(args, rec.Source, rec.BatchID)
		p += 2
	}
	return b.String(), args
}
