// Package model defines the staged record, typed load errors, and the
// batch outcome report shared by the load pipeline.
package model

import (
	"fmt"
	"time"
)

// EntityType identifies the kind of staged record.
type EntityType string

const (
	EntityCustomer        EntityType = "customer"
	EntityProduct         EntityType = "product"
	EntityLocation        EntityType = "location"
	EntityDate            EntityType = "date"
	EntityTransaction     EntityType = "transaction"
	EntityTransactionItem EntityType = "transaction_item"
	EntityInventory       EntityType = "inventory"
)

// LoadOrder is the dependency order the coordinator must follow:
// dimensions and dates before facts, transactions before their items.
func LoadOrder() []EntityType {
	return []EntityType{
		EntityCustomer,
		EntityProduct,
		EntityLocation,
		EntityDate,
		EntityTransaction,
		EntityTransactionItem,
		EntityInventory,
	}
}

// Valid reports whether t names a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCustomer, EntityProduct, EntityLocation, EntityDate,
		EntityTransaction, EntityTransactionItem, EntityInventory:
		return true
	}
	return false
}

// Record is one staged row: a flat mapping of field name to raw value,
// tagged with its provenance. Records are immutable once ingested; later
// batches supersede, never mutate, earlier ones.
type Record struct {
	Entity  EntityType
	Source  string
	BatchID string
	Fields  map[string]any
}

// NaturalKey returns the record's business identity. Dimension and
// transaction records carry a single key field; item and inventory
// records derive a composite identity.
func (r Record) NaturalKey() string {
	switch r.Entity {
	case EntityCustomer:
		s, _ := r.String("customer_key")
		return s
	case EntityProduct:
		s, _ := r.String("product_key")
		return s
	case EntityLocation:
		s, _ := r.String("location_key")
		return s
	case EntityTransaction:
		s, _ := r.String("transaction_key")
		return s
	case EntityTransactionItem:
		txn, _ := r.String("transaction_key")
		line, _ := r.Int("line_number")
		return fmt.Sprintf("%s#%d", txn, line)
	case EntityInventory:
		prod, _ := r.String("product_key")
		loc, _ := r.String("location_key")
		day, _ := r.Time("snapshot_date")
		return fmt.Sprintf("%s@%s/%s", prod, loc, day.Format("2006-01-02"))
	}
	return ""
}

// Has reports whether the field is present and non-nil.
func (r Record) Has(field string) bool {
	v, ok := r.Fields[field]
	return ok && v != nil
}

// String returns the field as a string.
func (r Record) String(field string) (string, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the field as an int64, converting from the numeric types
// staging queries produce.
func (r Record) Int(field string) (int64, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// Float returns the field as a float64.
func (r Record) Float(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// Bool returns the field as a bool.
func (r Record) Bool(field string) (bool, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Time returns the field as a time.Time. String fields in the common
// staging formats are parsed.
func (r Record) Time(field string) (time.Time, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
