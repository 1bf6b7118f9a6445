//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/pgEdge/warehouse-loader/internal/docstore"
	"github.com/pgEdge/warehouse-loader/internal/model"
	"github.com/pgEdge/warehouse-loader/internal/validate"
)

type fakeStager struct {
	records []model.Record
	calls   int
	err     error
}

func (f *fakeStager) InsertRecords(ctx context.Context, records []model.Record) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.calls++
	f.records = append(f.records, records...)
	return int64(len(records)), nil
}

type fakeDocInserter struct {
	collections map[string][]any
	err         error
}

func (f *fakeDocInserter) InsertMany(ctx context.Context, collection string, docs []any) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.collections == nil {
		f.collections = make(map[string][]any)
	}
	f.collections[collection] = append(f.collections[collection], docs...)
	return int64(len(docs)), nil
}

func seedParams() Params {
	return Params{
		Customers:    20,
		Products:     15,
		Locations:    5,
		Transactions: 30,
		Start:        time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		BatchID:      "seed-batch-001",
		Source:       "simulator",
	}
}

func byEntity(records []model.Record) map[model.EntityType][]model.Record {
	out := make(map[model.EntityType][]model.Record)
	for _, rec := range records {
		out[rec.Entity] = append(out[rec.Entity], rec)
	}
	return out
}

func TestSeedStagesRequestedVolumes(t *testing.T) {
	stg := &fakeStager{}
	docs := &fakeDocInserter{}
	s := NewSeederWithSeed(stg, docs, 42)

	p := seedParams()
	res, err := s.Seed(context.Background(), p)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if res.Customers != p.Customers || res.Products != p.Products || res.Locations != p.Locations {
		t.Errorf("Expected dims %d/%d/%d, got %d/%d/%d",
			p.Customers, p.Products, p.Locations,
			res.Customers, res.Products, res.Locations)
	}
	if res.Transactions != p.Transactions {
		t.Errorf("Expected %d transactions, got %d", p.Transactions, res.Transactions)
	}
	if res.Inventory != p.Products {
		t.Errorf("Expected %d inventory snapshots, got %d", p.Products, res.Inventory)
	}

	groups := byEntity(stg.records)
	if n := len(groups[model.EntityCustomer]); n != p.Customers {
		t.Errorf("Expected %d staged customers, got %d", p.Customers, n)
	}
	if n := len(groups[model.EntityTransaction]); n != p.Transactions {
		t.Errorf("Expected %d staged transactions, got %d", p.Transactions, n)
	}
	if n := len(groups[model.EntityTransactionItem]); n != res.Items {
		t.Errorf("Expected %d staged items, got %d", res.Items, n)
	}
	if res.Items < p.Transactions {
		t.Errorf("Expected at least one item per transaction, got %d for %d", res.Items, p.Transactions)
	}
	if res.StagedRows != int64(len(stg.records)) {
		t.Errorf("Expected %d staged rows, got %d", len(stg.records), res.StagedRows)
	}

	for _, rec := range stg.records {
		if rec.BatchID != p.BatchID {
			t.Fatalf("Record %s has batch %q, expected %q", rec.NaturalKey(), rec.BatchID, p.BatchID)
		}
		if rec.Source != p.Source {
			t.Fatalf("Record %s has source %q, expected %q", rec.NaturalKey(), rec.Source, p.Source)
		}
	}

	// Every fifth customer browses, every tenth carries a cart.
	if n := len(docs.collections[docstore.CollectionBrowsingHistory]); n != 4 {
		t.Errorf("Expected 4 browsing sessions, got %d", n)
	}
	if n := len(docs.collections[docstore.CollectionCarts]); n != 2 {
		t.Errorf("Expected 2 carts, got %d", n)
	}
	if res.Documents != 6 {
		t.Errorf("Expected 6 documents, got %d", res.Documents)
	}
}

func TestSeedRecordsPassValidation(t *testing.T) {
	stg := &fakeStager{}
	s := NewSeederWithSeed(stg, nil, 7)

	if _, err := s.Seed(context.Background(), seedParams()); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	v := validate.New()
	for _, rec := range stg.records {
		res := v.Validate(rec)
		if !res.Accepted() {
			t.Fatalf("Seeded %s record %s rejected: %v", rec.Entity, rec.NaturalKey(), res.Reasons)
		}
	}
}

func TestSeedMeasureIdentity(t *testing.T) {
	stg := &fakeStager{}
	s := NewSeederWithSeed(stg, nil, 11)

	if _, err := s.Seed(context.Background(), seedParams()); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	items := byEntity(stg.records)[model.EntityTransactionItem]
	if len(items) == 0 {
		t.Fatal("Expected staged items")
	}
	for _, rec := range items {
		qty, _ := rec.Int("quantity")
		unit, _ := rec.Float("unit_price")
		discount, _ := rec.Float("discount_amount")
		tax, _ := rec.Float("tax_amount")
		total, _ := rec.Float("line_total")

		computed := float64(qty)*unit - discount + tax
		if math.Abs(total-computed) > 0.011 {
			t.Errorf("Item %s line_total %.2f does not match computed %.2f", rec.NaturalKey(), total, computed)
		}

		net := round2(unit*float64(qty) - discount)
		if math.Abs(tax-round2(net*taxRate)) > 0.011 {
			t.Errorf("Item %s tax %.2f is not %.0f%% of net %.2f", rec.NaturalKey(), tax, taxRate*100, net)
		}
	}
}

func TestSeedTransactionTotalsSumLines(t *testing.T) {
	stg := &fakeStager{}
	s := NewSeederWithSeed(stg, nil, 13)

	if _, err := s.Seed(context.Background(), seedParams()); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	groups := byEntity(stg.records)
	sums := make(map[string][3]float64)
	for _, rec := range groups[model.EntityTransactionItem] {
		key, _ := rec.String("transaction_key")
		total, _ := rec.Float("line_total")
		discount, _ := rec.Float("discount_amount")
		tax, _ := rec.Float("tax_amount")
		acc := sums[key]
		acc[0] += total
		acc[1] += discount
		acc[2] += tax
		sums[key] = acc
	}

	for _, rec := range groups[model.EntityTransaction] {
		key := rec.NaturalKey()
		acc, ok := sums[key]
		if !ok {
			t.Fatalf("Transaction %s has no items", key)
		}
		total, _ := rec.Float("total_amount")
		discount, _ := rec.Float("discount_amount")
		tax, _ := rec.Float("tax_amount")
		if math.Abs(total-round2(acc[0])) > 0.011 {
			t.Errorf("Transaction %s total %.2f does not match item sum %.2f", key, total, acc[0])
		}
		if math.Abs(discount-round2(acc[1])) > 0.011 {
			t.Errorf("Transaction %s discount %.2f does not match item sum %.2f", key, discount, acc[1])
		}
		if math.Abs(tax-round2(acc[2])) > 0.011 {
			t.Errorf("Transaction %s tax %.2f does not match item sum %.2f", key, tax, acc[2])
		}
	}
}

func TestSeedBusinessRuleRanges(t *testing.T) {
	stg := &fakeStager{}
	s := NewSeederWithSeed(stg, nil, 17)

	p := seedParams()
	p.Transactions = 200
	if _, err := s.Seed(context.Background(), p); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	groups := byEntity(stg.records)

	for _, rec := range groups[model.EntityProduct] {
		unit, _ := rec.Float("unit_price")
		cost, _ := rec.Float("cost_price")
		if unit < minUnitPrice || unit > maxUnitPrice {
			t.Errorf("Product %s unit_price %.2f outside [%.0f, %.0f]", rec.NaturalKey(), unit, minUnitPrice, maxUnitPrice)
		}
		if cost < round2(unit*0.4)-0.011 || cost > round2(unit*0.8)+0.011 {
			t.Errorf("Product %s cost_price %.2f outside 40-80%% of %.2f", rec.NaturalKey(), cost, unit)
		}
	}

	for _, rec := range groups[model.EntityTransactionItem] {
		qty, _ := rec.Int("quantity")
		if qty < 1 || qty > 3 {
			t.Errorf("Item %s quantity %d outside [1, 3]", rec.NaturalKey(), qty)
		}
	}

	paymentOK := make(map[string]bool)
	for _, m := range validate.PaymentMethods {
		paymentOK[m] = true
	}
	channelOK := make(map[string]bool)
	for _, c := range validate.Channels {
		channelOK[c] = true
	}

	for _, rec := range groups[model.EntityTransaction] {
		shipping, _ := rec.Float("shipping_amount")
		if shipping < 0 || shipping > 15 {
			t.Errorf("Transaction %s shipping %.2f outside [0, 15]", rec.NaturalKey(), shipping)
		}
		if isReturn, _ := rec.Bool("is_return"); isReturn && shipping != 0 {
			t.Errorf("Return %s has shipping %.2f, expected 0", rec.NaturalKey(), shipping)
		}
		if method, _ := rec.String("payment_method"); !paymentOK[method] {
			t.Errorf("Transaction %s has unknown payment method %q", rec.NaturalKey(), method)
		}
		if channel, _ := rec.String("channel"); !channelOK[channel] {
			t.Errorf("Transaction %s has unknown channel %q", rec.NaturalKey(), channel)
		}
		when, ok := rec.Time("transaction_time")
		if !ok || when.Before(p.Start) || when.After(p.End.Add(24*time.Hour)) {
			t.Errorf("Transaction %s time %v outside seed window", rec.NaturalKey(), when)
		}
	}

	// Line numbers are sequential from 1 within each transaction.
	lines := make(map[string][]int64)
	for _, rec := range groups[model.EntityTransactionItem] {
		key, _ := rec.String("transaction_key")
		n, _ := rec.Int("line_number")
		lines[key] = append(lines[key], n)
	}
	for key, ns := range lines {
		seen := make(map[int64]bool, len(ns))
		var high int64
		for _, n := range ns {
			if seen[n] {
				t.Fatalf("Transaction %s repeats line number %d", key, n)
			}
			seen[n] = true
			if n > high {
				high = n
			}
		}
		if high != int64(len(ns)) {
			t.Errorf("Transaction %s line numbers not sequential: %v", key, ns)
		}
	}
}

func TestSeedKeysAreUnique(t *testing.T) {
	stg := &fakeStager{}
	s := NewSeederWithSeed(stg, nil, 19)

	if _, err := s.Seed(context.Background(), seedParams()); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	keys := make(map[string]bool)
	emails := make(map[string]bool)
	for _, rec := range stg.records {
		if rec.Entity == model.EntityTransactionItem || rec.Entity == model.EntityInventory {
			continue
		}
		key := rec.NaturalKey()
		if len(key) != 36 {
			t.Fatalf("%s key %q is not a UUID", rec.Entity, key)
		}
		id := string(rec.Entity) + "/" + key
		if keys[id] {
			t.Fatalf("Duplicate %s key %s", rec.Entity, key)
		}
		keys[id] = true

		if rec.Entity == model.EntityCustomer {
			email, _ := rec.String("email")
			if emails[email] {
				t.Fatalf("Duplicate customer email %s", email)
			}
			emails[email] = true
		}
	}
}

func TestSeedInventorySnapshots(t *testing.T) {
	stg := &fakeStager{}
	s := NewSeederWithSeed(stg, nil, 23)

	p := seedParams()
	if _, err := s.Seed(context.Background(), p); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	inventory := byEntity(stg.records)[model.EntityInventory]
	if len(inventory) != p.Products {
		t.Fatalf("Expected %d inventory rows, got %d", p.Products, len(inventory))
	}

	missingReorder := 0
	for _, rec := range inventory {
		onHand, _ := rec.Int("quantity_on_hand")
		reserved, _ := rec.Int("quantity_reserved")
		if reserved > onHand {
			t.Errorf("Inventory %s reserved %d exceeds on hand %d", rec.NaturalKey(), reserved, onHand)
		}
		day, ok := rec.Time("snapshot_date")
		if !ok || !day.Equal(p.End) {
			t.Errorf("Inventory %s snapshot_date %v, expected %v", rec.NaturalKey(), day, p.End)
		}
		if !rec.Has("reorder_point") {
			if rec.Has("reorder_quantity") {
				t.Errorf("Inventory %s has reorder_quantity without reorder_point", rec.NaturalKey())
			}
			missingReorder++
		}
	}
	if missingReorder == 0 {
		t.Error("Expected some inventory rows without reorder fields")
	}
}

func TestSeedDocumentShapes(t *testing.T) {
	stg := &fakeStager{}
	docs := &fakeDocInserter{}
	s := NewSeederWithSeed(stg, docs, 29)

	if _, err := s.Seed(context.Background(), seedParams()); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	statusOK := map[string]bool{"active": true, "abandoned": true, "converted": true}

	sessions := docs.collections[docstore.CollectionBrowsingHistory]
	if len(sessions) == 0 {
		t.Fatal("Expected browsing sessions")
	}
	for _, raw := range sessions {
		doc, ok := raw.(bson.M)
		if !ok {
			t.Fatalf("Session document is %T, expected bson.M", raw)
		}
		if doc["customer_id"] == "" || doc["session_id"] == "" {
			t.Fatalf("Session missing identity: %v", doc)
		}
		actions, ok := doc["actions"].([]bson.M)
		if !ok || len(actions) == 0 {
			t.Fatalf("Session %v has no actions", doc["session_id"])
		}
		for _, a := range actions {
			if a["action"] == "" || a["product_id"] == "" {
				t.Fatalf("Malformed browsing action: %v", a)
			}
			if _, ok := a["occurred_at"].(time.Time); !ok {
				t.Fatalf("Browsing action missing occurred_at: %v", a)
			}
		}
	}

	carts := docs.collections[docstore.CollectionCarts]
	if len(carts) == 0 {
		t.Fatal("Expected carts")
	}
	for _, raw := range carts {
		doc, ok := raw.(bson.M)
		if !ok {
			t.Fatalf("Cart document is %T, expected bson.M", raw)
		}
		status, _ := doc["status"].(string)
		if !statusOK[status] {
			t.Fatalf("Cart has unknown status %q", status)
		}
		items, ok := doc["items"].([]bson.M)
		if !ok || len(items) == 0 {
			t.Fatalf("Cart for %v has no items", doc["customer_id"])
		}
		for _, item := range items {
			if item["product_id"] == "" {
				t.Fatalf("Cart item missing product: %v", item)
			}
		}
	}
}

func TestSeedReproducibleWithSeed(t *testing.T) {
	p := seedParams()

	stg1 := &fakeStager{}
	if _, err := NewSeederWithSeed(stg1, nil, 99).Seed(context.Background(), p); err != nil {
		t.Fatalf("First seed failed: %v", err)
	}
	stg2 := &fakeStager{}
	if _, err := NewSeederWithSeed(stg2, nil, 99).Seed(context.Background(), p); err != nil {
		t.Fatalf("Second seed failed: %v", err)
	}

	if len(stg1.records) != len(stg2.records) {
		t.Fatalf("Expected identical record counts, got %d and %d", len(stg1.records), len(stg2.records))
	}
	for i := range stg1.records {
		if !reflect.DeepEqual(stg1.records[i], stg2.records[i]) {
			t.Fatalf("Record %d differs between seeded runs", i)
		}
	}
}

func TestSeedRejectsBadParams(t *testing.T) {
	s := NewSeederWithSeed(&fakeStager{}, nil, 1)

	p := seedParams()
	p.Customers = 0
	if _, err := s.Seed(context.Background(), p); err == nil {
		t.Error("Expected error for zero customers")
	}

	p = seedParams()
	p.End = p.Start.AddDate(0, 0, -1)
	if _, err := s.Seed(context.Background(), p); err == nil {
		t.Error("Expected error for inverted window")
	}
}

func TestSeedSkipsDocumentsWithoutStore(t *testing.T) {
	stg := &fakeStager{}
	s := NewSeederWithSeed(stg, nil, 31)

	res, err := s.Seed(context.Background(), seedParams())
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if res.Documents != 0 {
		t.Errorf("Expected 0 documents without a store, got %d", res.Documents)
	}
}

func TestSeedPropagatesStagerError(t *testing.T) {
	boom := errors.New("staging unreachable")
	s := NewSeederWithSeed(&fakeStager{err: boom}, nil, 3)

	_, err := s.Seed(context.Background(), seedParams())
	if !errors.Is(err, boom) {
		t.Fatalf("Expected staging error, got %v", err)
	}
}

func TestSeedChunksLargeBatches(t *testing.T) {
	stg := &fakeStager{}
	s := NewSeederWithSeed(stg, nil, 37)

	p := seedParams()
	p.Transactions = seedChunk + 50
	if _, err := s.Seed(context.Background(), p); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	// Dimensions, two transaction chunks, inventory.
	if stg.calls != 4 {
		t.Errorf("Expected 4 staging calls, got %d", stg.calls)
	}
}

func TestEmailLocal(t *testing.T) {
	got := emailLocal("Mary Jo", "O'Neil", "3f2a9c81-aaaa-bbbb-cccc-dddddddddddd")
	want := "maryjo.oneil.3f2a9c81"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}
