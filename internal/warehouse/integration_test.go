//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

//go:build integration
// +build integration

// Integration tests for the warehouse store.
// Run with: go test -tags=integration ./internal/warehouse/...
// Requires PostgreSQL to be available.
// Set WAREHOUSE_TEST_CONN environment variable to override connection string.

package warehouse_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/warehouse-loader/internal/datedim"
	"github.com/pgEdge/warehouse-loader/internal/model"
	"github.com/pgEdge/warehouse-loader/internal/testutil"
	"github.com/pgEdge/warehouse-loader/internal/warehouse"
)

func newTestWarehouse(t *testing.T) *pgxpool.Pool {
	t.Helper()

	baseConnStr := testutil.SkipIfNoPostgres(t)

	testConnStr := testutil.CreateTestDB(t, baseConnStr, "warehouse")
	dbName := testutil.GetDBNameFromConnStr(testConnStr)

	cleanup := testutil.NewTestCleanup(t, baseConnStr, dbName)
	t.Cleanup(cleanup.Cleanup)

	pool := testutil.ConnectTestDB(t, testConnStr)
	cleanup.SetPool(pool)

	if err := warehouse.CreateSchema(context.Background(), pool); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}
	return pool
}

// TestSchemaIdempotent verifies CreateSchema can run twice.
func TestSchemaIdempotent(t *testing.T) {
	pool := newTestWarehouse(t)

	if err := warehouse.CreateSchema(context.Background(), pool); err != nil {
		t.Fatalf("Second CreateSchema failed (not idempotent): %v", err)
	}
}

// TestAllocate verifies surrogate allocation: first sight creates, later
// sightings return the same id without creating.
func TestAllocate(t *testing.T) {
	pool := newTestWarehouse(t)
	store := warehouse.New(pool)
	ctx := context.Background()

	keys := []string{"cust-a", "cust-b", "cust-c"}
	ids, created, err := store.Allocate(ctx, model.EntityCustomer, keys)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Expected 3 surrogates, got %d", len(ids))
	}
	for _, k := range keys {
		if !created[k] {
			t.Errorf("Expected key %s to be created on first allocation", k)
		}
	}

	again, created2, err := store.Allocate(ctx, model.EntityCustomer,
		[]string{"cust-a", "cust-b", "cust-c", "cust-d"})
	if err != nil {
		t.Fatalf("Second Allocate failed: %v", err)
	}
	for _, k := range keys {
		if again[k] != ids[k] {
			t.Errorf("Expected stable surrogate for %s, got %d then %d",
				k, ids[k], again[k])
		}
		if created2[k] {
			t.Errorf("Expected key %s not to be re-created", k)
		}
	}
	if !created2["cust-d"] {
		t.Error("Expected cust-d to be created")
	}

	found, err := store.Lookup(ctx, model.EntityCustomer, []string{"cust-a", "cust-missing"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if found["cust-a"] != ids["cust-a"] {
		t.Errorf("Expected Lookup to return %d for cust-a, got %d",
			ids["cust-a"], found["cust-a"])
	}
	if _, ok := found["cust-missing"]; ok {
		t.Error("Expected unknown key to be absent from Lookup result")
	}
}

// TestConcurrentAllocate races several allocators on one key set and
// verifies every caller observes the same surrogates.
func TestConcurrentAllocate(t *testing.T) {
	pool := newTestWarehouse(t)
	store := warehouse.New(pool)
	ctx := context.Background()

	keys := make([]string, 50)
	for i := range keys {
		keys[i] = "prod-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
	}

	concurrency := 4
	results := make([]map[string]int64, concurrency)
	errs := make([]error, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ids, _, err := store.Allocate(ctx, model.EntityProduct, keys)
			results[n], errs[n] = ids, err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Allocator %d failed: %v", i, err)
		}
	}
	for _, k := range keys {
		want := results[0][k]
		for i := 1; i < concurrency; i++ {
			if results[i][k] != want {
				t.Errorf("Expected all allocators to agree on %s, got %d and %d",
					k, want, results[i][k])
			}
		}
	}
}

// TestUpsertDimension verifies Type-1 overwrite semantics: present
// attributes replace, absent attributes keep their value.
func TestUpsertDimension(t *testing.T) {
	pool := newTestWarehouse(t)
	store := warehouse.New(pool)
	ctx := context.Background()

	ids, _, err := store.Allocate(ctx, model.EntityCustomer, []string{"cust-u1"})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	id := ids["cust-u1"]

	now := time.Now().UTC()
	attrs := map[string]any{
		"first_name": "Grace",
		"last_name":  "Hopper",
		"email":      "grace@example.com",
	}
	if err := store.UpsertDimension(ctx, model.EntityCustomer, id, attrs, now); err != nil {
		t.Fatalf("UpsertDimension failed: %v", err)
	}

	var first, email string
	err = pool.QueryRow(ctx,
		"SELECT first_name, email FROM retail.dim_customer WHERE customer_id = $1", id).
		Scan(&first, &email)
	if err != nil {
		t.Fatalf("Failed to read dimension row: %v", err)
	}
	if first != "Grace" || email != "grace@example.com" {
		t.Errorf("Expected Grace/grace@example.com, got %s/%s", first, email)
	}

	// Overwrite only the email; first_name must survive
	update := map[string]any{"email": "hopper@example.com"}
	if err := store.UpsertDimension(ctx, model.EntityCustomer, id, update, now.Add(time.Minute)); err != nil {
		t.Fatalf("Second UpsertDimension failed: %v", err)
	}
	err = pool.QueryRow(ctx,
		"SELECT first_name, email FROM retail.dim_customer WHERE customer_id = $1", id).
		Scan(&first, &email)
	if err != nil {
		t.Fatalf("Failed to re-read dimension row: %v", err)
	}
	if first != "Grace" {
		t.Errorf("Expected first_name to survive partial update, got %s", first)
	}
	if email != "hopper@example.com" {
		t.Errorf("Expected overwritten email, got %s", email)
	}

	// Unknown surrogate is an error
	if err := store.UpsertDimension(ctx, model.EntityCustomer, id+9999, update, now); err == nil {
		t.Error("Expected error for unknown surrogate id")
	}
}

// TestInsertDatesIdempotent verifies duplicate date ids are skipped.
func TestInsertDatesIdempotent(t *testing.T) {
	pool := newTestWarehouse(t)
	store := warehouse.New(pool)
	ctx := context.Background()

	rows := []datedim.Row{
		datedim.Attributes(time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)),
		datedim.Attributes(time.Date(2023, 11, 2, 0, 0, 0, 0, time.UTC)),
	}
	n, err := store.InsertDates(ctx, rows)
	if err != nil {
		t.Fatalf("InsertDates failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 inserted dates, got %d", n)
	}

	n, err = store.InsertDates(ctx, rows)
	if err != nil {
		t.Fatalf("Second InsertDates failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 inserted dates on repeat, got %d", n)
	}
}

// TestInsertTransactionsIdempotent verifies duplicate transaction keys
// stay untouched while their surrogates are still returned.
func TestInsertTransactionsIdempotent(t *testing.T) {
	pool := newTestWarehouse(t)
	store := warehouse.New(pool)
	ctx := context.Background()

	custIDs, _, err := store.Allocate(ctx, model.EntityCustomer, []string{"cust-t1"})
	if err != nil {
		t.Fatalf("Allocate customer failed: %v", err)
	}
	locIDs, _, err := store.Allocate(ctx, model.EntityLocation, []string{"loc-t1"})
	if err != nil {
		t.Fatalf("Allocate location failed: %v", err)
	}

	when := time.Date(2023, 11, 1, 14, 0, 0, 0, time.UTC)
	day := datedim.Attributes(when)
	if _, err := store.InsertDates(ctx, []datedim.Row{day}); err != nil {
		t.Fatalf("InsertDates failed: %v", err)
	}

	rows := []warehouse.TransactionRow{{
		Key:             "txn-t1",
		CustomerID:      custIDs["cust-t1"],
		DateID:          day.DateID,
		LocationID:      locIDs["loc-t1"],
		TotalAmount:     42.50,
		PaymentMethod:   "credit_card",
		Channel:         "web",
		TransactionTime: when,
	}}

	ids, created, err := store.InsertTransactions(ctx, rows)
	if err != nil {
		t.Fatalf("InsertTransactions failed: %v", err)
	}
	if !created["txn-t1"] {
		t.Error("Expected txn-t1 to be created")
	}

	ids2, created2, err := store.InsertTransactions(ctx, rows)
	if err != nil {
		t.Fatalf("Second InsertTransactions failed: %v", err)
	}
	if created2["txn-t1"] {
		t.Error("Expected txn-t1 not to be re-created")
	}
	if ids2["txn-t1"] != ids["txn-t1"] {
		t.Errorf("Expected stable transaction surrogate, got %d then %d",
			ids["txn-t1"], ids2["txn-t1"])
	}

	var count int64
	if err := pool.QueryRow(ctx,
		"SELECT count(*) FROM retail.fact_transaction").Scan(&count); err != nil {
		t.Fatalf("Failed to count transactions: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 transaction row, got %d", count)
	}
}
