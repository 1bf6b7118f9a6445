//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package docsync keeps the document projections in step with the
// dimensions. Scalars overwrite in place, nested collections merge
// additively, and documents may carry extra fields the relational schema
// does not know about.
package docsync

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/pgEdge/warehouse-loader/internal/model"
)

var customerScalars = []string{"first_name", "last_name", "email", "phone", "is_active"}

var productScalars = []string{
	"product_name", "description", "category", "subcategory",
	"brand", "supplier", "unit_price", "cost_price", "is_active",
}

// BuildCustomerUpdate renders the upsert for one customer record.
// Scalars land in $set, addresses and favorite categories merge through
// $addToSet, and identity fields only apply on insert.
func BuildCustomerUpdate(rec model.Record, now time.Time) (bson.M, bson.M) {
	key := rec.NaturalKey()
	filter := bson.M{"customer_id": key}

	set := bson.M{"updated_at": now}
	for _, f := range customerScalars {
		if v, ok := rec.Fields[f]; ok {
			set[f] = v
		}
	}

	addToSet := bson.M{}
	if addrs := entries(rec.Fields["addresses"]); len(addrs) > 0 {
		addToSet["addresses"] = bson.M{"$each": addrs}
	}
	if prefs, ok := rec.Fields["preferences"].(map[string]any); ok {
		for k, v := range prefs {
			if k == "favorite_categories" {
				if cats := entries(v); len(cats) > 0 {
					addToSet["preferences.favorite_categories"] = bson.M{"$each": cats}
				}
				continue
			}
			set["preferences."+k] = v
		}
	}

	setOnInsert := bson.M{"customer_id": key}
	if created, ok := rec.Time("created_at"); ok {
		setOnInsert["created_at"] = created
	} else {
		setOnInsert["created_at"] = now
	}

	update := bson.M{"$set": set, "$setOnInsert": setOnInsert}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	return filter, update
}

// BuildProductUpdate renders the upsert for one product record. The
// existing document drives price history: a changed unit price appends
// an entry, an unchanged one does not. Pass nil when no document exists.
func BuildProductUpdate(rec model.Record, existing bson.M, now time.Time) (bson.M, bson.M) {
	key := rec.NaturalKey()
	filter := bson.M{"product_id": key}

	set := bson.M{"updated_at": now}
	for _, f := range productScalars {
		if v, ok := rec.Fields[f]; ok {
			set[f] = v
		}
	}

	addToSet := bson.M{}
	if reviews := entries(rec.Fields["reviews"]); len(reviews) > 0 {
		addToSet["reviews"] = bson.M{"$each": reviews}
	}
	if images := entries(rec.Fields["images"]); len(images) > 0 {
		addToSet["images"] = bson.M{"$each": images}
	}

	if price, ok := rec.Float("unit_price"); ok {
		prior, had := numeric(existing["unit_price"])
		if !had || prior != price {
			addToSet["price_history"] = bson.M{
				"price":          price,
				"effective_date": now,
			}
		}
	}

	setOnInsert := bson.M{"product_id": key, "created_at": now}

	update := bson.M{"$set": set, "$setOnInsert": setOnInsert}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	return filter, update
}

// DetectDrift compares the incoming scalar values against the existing
// document and reports fields whose types no longer line up. Matching
// types with different values are ordinary pending updates, not drift.
func DetectDrift(entity model.EntityType, naturalKey string, existing bson.M, set bson.M) []model.DriftNotice {
	if existing == nil {
		return nil
	}

	var notices []model.DriftNotice
	for field, incoming := range set {
		if field == "updated_at" {
			continue
		}
		current, ok := existing[field]
		if !ok || current == nil {
			continue
		}
		ik, ck := valueKind(incoming), valueKind(current)
		if ik != ck {
			notices = append(notices, model.DriftNotice{
				Entity:     entity,
				NaturalKey: naturalKey,
				Field:      field,
				Relational: fmt.Sprintf("%v (%s)", incoming, ik),
				Document:   fmt.Sprintf("%v (%s)", current, ck),
			})
		}
	}
	return notices
}

// valueKind buckets dynamic values into comparable type families. BSON
// decoding widens numbers inconsistently, so all numeric types collapse
// into one kind.
func valueKind(v any) string {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "bool"
	case time.Time, primitive.DateTime:
		return "time"
	case bson.M, map[string]any:
		return "object"
	case bson.A, []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// entries normalizes a nested section into a slice for $each. Staged
// sections arrive as decoded JSON arrays or as raw JSON text.
func entries(v any) []any {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		return vv
	case bson.A:
		return vv
	case []map[string]any:
		out := make([]any, len(vv))
		for i, m := range vv {
			out[i] = m
		}
		return out
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	case string:
		return parseJSONArray([]byte(vv))
	case []byte:
		return parseJSONArray(vv)
	default:
		return nil
	}
}

func parseJSONArray(raw []byte) []any {
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
