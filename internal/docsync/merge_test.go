//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package docsync

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/pgEdge/warehouse-loader/internal/model"
)

var syncNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestBuildCustomerUpdate(t *testing.T) {
	created := time.Date(2023, 5, 1, 8, 30, 0, 0, time.UTC)
	rec := model.Record{
		Entity: model.EntityCustomer,
		Fields: map[string]any{
			"customer_key": "CUST-001",
			"first_name":   "Ada",
			"email":        "ada@example.com",
			"created_at":   created,
			"addresses": []any{
				map[string]any{"type": "home", "city": "Denver", "country": "US"},
			},
			"preferences": map[string]any{
				"email_notifications": true,
				"favorite_categories": []any{"books", "garden"},
			},
		},
	}

	filter, update := BuildCustomerUpdate(rec, syncNow)

	if !reflect.DeepEqual(filter, bson.M{"customer_id": "CUST-001"}) {
		t.Errorf("Expected filter on customer_id, got %v", filter)
	}

	set := update["$set"].(bson.M)
	if set["first_name"] != "Ada" || set["email"] != "ada@example.com" {
		t.Errorf("Expected scalar overwrites in $set, got %v", set)
	}
	if set["preferences.email_notifications"] != true {
		t.Errorf("Expected scalar preference in $set, got %v", set)
	}
	if _, ok := set["addresses"]; ok {
		t.Error("Expected addresses to merge additively, not overwrite")
	}

	add := update["$addToSet"].(bson.M)
	each := add["addresses"].(bson.M)["$each"].([]any)
	if len(each) != 1 {
		t.Fatalf("Expected 1 address entry, got %d", len(each))
	}
	cats := add["preferences.favorite_categories"].(bson.M)["$each"].([]any)
	if !reflect.DeepEqual(cats, []any{"books", "garden"}) {
		t.Errorf("Expected favorite categories merge, got %v", cats)
	}

	soi := update["$setOnInsert"].(bson.M)
	if soi["customer_id"] != "CUST-001" {
		t.Errorf("Expected customer_id on insert only, got %v", soi)
	}
	if !soi["created_at"].(time.Time).Equal(created) {
		t.Errorf("Expected source created_at %v, got %v", created, soi["created_at"])
	}
}

func TestBuildCustomerUpdatePartial(t *testing.T) {
	rec := model.Record{
		Entity: model.EntityCustomer,
		Fields: map[string]any{
			"customer_key": "CUST-002",
			"email":        "new@example.com",
		},
	}

	_, update := BuildCustomerUpdate(rec, syncNow)

	set := update["$set"].(bson.M)
	if len(set) != 2 {
		t.Errorf("Expected only email and updated_at in $set, got %v", set)
	}
	if _, ok := set["first_name"]; ok {
		t.Error("Expected absent attributes to stay untouched")
	}
	if _, ok := update["$addToSet"]; ok {
		t.Error("Expected no $addToSet without nested sections")
	}
}

func TestBuildCustomerUpdateJSONSections(t *testing.T) {
	rec := model.Record{
		Entity: model.EntityCustomer,
		Fields: map[string]any{
			"customer_key": "CUST-003",
			"addresses":    `[{"type":"work","city":"Berlin","country":"DE"}]`,
		},
	}

	_, update := BuildCustomerUpdate(rec, syncNow)

	add, ok := update["$addToSet"].(bson.M)
	if !ok {
		t.Fatal("Expected $addToSet for JSON-encoded addresses")
	}
	each := add["addresses"].(bson.M)["$each"].([]any)
	entry := each[0].(map[string]any)
	if entry["city"] != "Berlin" {
		t.Errorf("Expected parsed address entry, got %v", entry)
	}
}

func TestBuildProductUpdateNewDocument(t *testing.T) {
	rec := model.Record{
		Entity: model.EntityProduct,
		Fields: map[string]any{
			"product_key":  "PROD-001",
			"product_name": "Walnut Desk",
			"unit_price":   349.99,
		},
	}

	filter, update := BuildProductUpdate(rec, nil, syncNow)

	if !reflect.DeepEqual(filter, bson.M{"product_id": "PROD-001"}) {
		t.Errorf("Expected filter on product_id, got %v", filter)
	}

	add := update["$addToSet"].(bson.M)
	entry := add["price_history"].(bson.M)
	if entry["price"] != 349.99 {
		t.Errorf("Expected opening price history entry, got %v", entry)
	}
}

func TestBuildProductUpdatePriceUnchanged(t *testing.T) {
	rec := model.Record{
		Entity: model.EntityProduct,
		Fields: map[string]any{
			"product_key": "PROD-001",
			"unit_price":  349.99,
		},
	}
	existing := bson.M{"product_id": "PROD-001", "unit_price": 349.99}

	_, update := BuildProductUpdate(rec, existing, syncNow)

	if add, ok := update["$addToSet"].(bson.M); ok {
		if _, ok := add["price_history"]; ok {
			t.Error("Expected no price history entry for unchanged price")
		}
	}
}

func TestBuildProductUpdatePriceChanged(t *testing.T) {
	rec := model.Record{
		Entity: model.EntityProduct,
		Fields: map[string]any{
			"product_key": "PROD-001",
			"unit_price":  299.99,
			"reviews": []any{
				map[string]any{"rating": 5, "comment": "solid"},
			},
		},
	}
	existing := bson.M{"product_id": "PROD-001", "unit_price": 349.99}

	_, update := BuildProductUpdate(rec, existing, syncNow)

	add := update["$addToSet"].(bson.M)
	entry, ok := add["price_history"].(bson.M)
	if !ok {
		t.Fatal("Expected price history entry for changed price")
	}
	if entry["price"] != 299.99 {
		t.Errorf("Expected new price 299.99, got %v", entry["price"])
	}
	if _, ok := add["reviews"]; !ok {
		t.Error("Expected reviews to merge additively")
	}
}

func TestDetectDrift(t *testing.T) {
	existing := bson.M{
		"unit_price": "349.99",
		"is_active":  true,
		"brand":      "Oakline",
	}
	set := bson.M{
		"unit_price": 349.99,
		"is_active":  false,
		"brand":      "Oakline West",
		"updated_at": syncNow,
	}

	notices := DetectDrift(model.EntityProduct, "PROD-001", existing, set)

	if len(notices) != 1 {
		t.Fatalf("Expected 1 drift notice, got %d: %v", len(notices), notices)
	}
	n := notices[0]
	if n.Field != "unit_price" {
		t.Errorf("Expected drift on unit_price, got %s", n.Field)
	}
	if n.NaturalKey != "PROD-001" {
		t.Errorf("Expected natural key PROD-001, got %s", n.NaturalKey)
	}
}

func TestDetectDriftNoDocument(t *testing.T) {
	if notices := DetectDrift(model.EntityCustomer, "CUST-001", nil, bson.M{"email": "x"}); notices != nil {
		t.Errorf("Expected no drift against missing document, got %v", notices)
	}
}

type fakeApplier struct {
	docs    map[string]bson.M
	updates []bson.M
	findErr error
	upErr   error
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{docs: make(map[string]bson.M)}
}

func (f *fakeApplier) key(collection string, filter bson.M) string {
	for _, v := range filter {
		return fmt.Sprintf("%s/%v", collection, v)
	}
	return collection
}

func (f *fakeApplier) FindOne(_ context.Context, collection string, filter bson.M) (bson.M, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.docs[f.key(collection, filter)], nil
}

func (f *fakeApplier) Upsert(_ context.Context, collection string, filter, update bson.M) (bool, error) {
	if f.upErr != nil {
		return false, f.upErr
	}
	f.updates = append(f.updates, update)
	k := f.key(collection, filter)
	_, existed := f.docs[k]
	if !existed {
		f.docs[k] = bson.M{}
	}
	return !existed, nil
}

func TestSynchronizerCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	applier := newFakeApplier()
	s := New(applier)

	rec := model.Record{
		Entity: model.EntityCustomer,
		Fields: map[string]any{"customer_key": "CUST-001", "email": "a@example.com"},
	}

	outcome, _, err := s.Sync(ctx, rec, syncNow)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if outcome != model.OutcomeCreated {
		t.Errorf("Expected created, got %s", outcome)
	}

	outcome, _, err = s.Sync(ctx, rec, syncNow)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if outcome != model.OutcomeUpdated {
		t.Errorf("Expected updated, got %s", outcome)
	}
	if len(applier.updates) != 2 {
		t.Errorf("Expected 2 upserts, got %d", len(applier.updates))
	}
}

func TestSynchronizerSurfacesDrift(t *testing.T) {
	ctx := context.Background()
	applier := newFakeApplier()
	applier.docs["products/PROD-001"] = bson.M{"unit_price": "not a number"}
	s := New(applier)

	rec := model.Record{
		Entity: model.EntityProduct,
		Fields: map[string]any{"product_key": "PROD-001", "unit_price": 12.50},
	}

	outcome, drift, err := s.Sync(ctx, rec, syncNow)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if outcome != model.OutcomeUpdated {
		t.Errorf("Expected updated, got %s", outcome)
	}
	if len(drift) != 1 {
		t.Fatalf("Expected 1 drift notice, got %d", len(drift))
	}

	// Drift never blocks the write.
	if len(applier.updates) != 1 {
		t.Errorf("Expected upsert despite drift, got %d updates", len(applier.updates))
	}
}

func TestSynchronizerUnknownEntity(t *testing.T) {
	s := New(newFakeApplier())
	rec := model.Record{Entity: model.EntityInventory, Fields: map[string]any{}}
	if _, _, err := s.Sync(context.Background(), rec, syncNow); err == nil {
		t.Error("Expected error for entity without projection")
	}
}
