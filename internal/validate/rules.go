//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package validate

import (
	"github.com/pgEdge/warehouse-loader/internal/model"
)

// Check enumerates the rule kinds a field can be validated against.
type Check int

const (
	// Required fails when the field is absent or nil.
	Required Check = iota

	// String requires a string value, optionally bounded by MaxLen.
	String

	// Number requires a numeric value within [Min, Max]. ExclusiveMin
	// makes the lower bound strict.
	Number

	// Integer requires a whole number within [Min, Max].
	Integer

	// Bool requires a boolean value.
	Bool

	// Timestamp requires a time value or a parseable date string.
	Timestamp

	// Enum requires one of Values.
	Enum

	// Email requires a minimally well-formed address.
	Email

	// Sections runs a custom check over a nested document section.
	Sections
)

// Rule is one validation constraint on one field. Except for Required,
// rules are skipped when the field is absent: partial records are legal
// input for Type-1 updates.
type Rule struct {
	Field        string
	Check        Check
	Min          float64
	Max          float64
	ExclusiveMin bool
	MaxLen       int
	Values       []string
	Custom       func(any) []string
}

// PaymentMethods are the accepted transaction payment methods.
var PaymentMethods = []string{"credit_card", "debit_card", "paypal", "apple_pay", "google_pay"}

// Channels are the accepted sales channels.
var Channels = []string{"web", "mobile_app", "in_store", "phone"}

const unbounded = 1e15

// ruleSets returns the rule set for every entity type, in evaluation
// order. Reasons are reported in this order.
func ruleSets() map[model.EntityType][]Rule {
	return map[model.EntityType][]Rule{
		model.EntityCustomer: {
			{Field: "customer_key", Check: Required},
			{Field: "customer_key", Check: String, MaxLen: 64},
			{Field: "first_name", Check: String, MaxLen: 100},
			{Field: "last_name", Check: String, MaxLen: 100},
			{Field: "email", Check: Email},
			{Field: "phone", Check: String, MaxLen: 40},
			{Field: "is_active", Check: Bool},
			{Field: "created_at", Check: Timestamp},
			{Field: "addresses", Check: Sections, Custom: checkAddresses},
			{Field: "preferences", Check: Sections, Custom: checkPreferences},
		},
		model.EntityProduct: {
			{Field: "product_key", Check: Required},
			{Field: "product_key", Check: String, MaxLen: 64},
			{Field: "product_name", Check: Required},
			{Field: "product_name", Check: String, MaxLen: 255},
			{Field: "category", Check: String, MaxLen: 100},
			{Field: "subcategory", Check: String, MaxLen: 100},
			{Field: "brand", Check: String, MaxLen: 100},
			{Field: "supplier", Check: String, MaxLen: 100},
			{Field: "unit_price", Check: Number, Min: 0, Max: unbounded},
			{Field: "cost_price", Check: Number, Min: 0, Max: unbounded},
			{Field: "is_active", Check: Bool},
			{Field: "reviews", Check: Sections, Custom: checkReviews},
			{Field: "images", Check: Sections, Custom: checkImages},
		},
		model.EntityLocation: {
			{Field: "location_key", Check: Required},
			{Field: "location_key", Check: String, MaxLen: 64},
			{Field: "country", Check: Required},
			{Field: "country", Check: String, MaxLen: 100},
			{Field: "region", Check: String, MaxLen: 100},
			{Field: "state", Check: String, MaxLen: 100},
			{Field: "city", Check: String, MaxLen: 100},
			{Field: "postal_code", Check: String, MaxLen: 20},
		},
		model.EntityTransaction: {
			{Field: "transaction_key", Check: Required},
			{Field: "transaction_key", Check: String, MaxLen: 64},
			{Field: "customer_key", Check: Required},
			{Field: "location_key", Check: Required},
			{Field: "transaction_time", Check: Required},
			{Field: "transaction_time", Check: Timestamp},
			{Field: "total_amount", Check: Required},
			{Field: "total_amount", Check: Number, Min: 0, Max: unbounded},
			{Field: "discount_amount", Check: Number, Min: 0, Max: unbounded},
			{Field: "tax_amount", Check: Number, Min: 0, Max: unbounded},
			{Field: "shipping_amount", Check: Number, Min: 0, Max: unbounded},
			{Field: "payment_method", Check: Enum, Values: PaymentMethods},
			{Field: "channel", Check: Enum, Values: Channels},
			{Field: "is_return", Check: Bool},
		},
		model.EntityTransactionItem: {
			{Field: "transaction_key", Check: Required},
			{Field: "product_key", Check: Required},
			{Field: "line_number", Check: Required},
			{Field: "line_number", Check: Integer, Min: 1, Max: unbounded},
			{Field: "quantity", Check: Required},
			{Field: "quantity", Check: Integer, Min: 0, Max: unbounded, ExclusiveMin: true},
			{Field: "unit_price", Check: Required},
			{Field: "unit_price", Check: Number, Min: 0, Max: unbounded},
			{Field: "discount_amount", Check: Number, Min: 0, Max: unbounded},
			{Field: "tax_amount", Check: Number, Min: 0, Max: unbounded},
			{Field: "line_total", Check: Required},
			{Field: "line_total", Check: Number, Min: 0, Max: unbounded},
		},
		model.EntityInventory: {
			{Field: "product_key", Check: Required},
			{Field: "location_key", Check: Required},
			{Field: "snapshot_date", Check: Required},
			{Field: "snapshot_date", Check: Timestamp},
			{Field: "quantity_on_hand", Check: Required},
			{Field: "quantity_on_hand", Check: Integer, Min: 0, Max: unbounded},
			{Field: "quantity_reserved", Check: Integer, Min: 0, Max: unbounded},
			{Field: "reorder_point", Check: Integer, Min: 0, Max: unbounded},
			{Field: "reorder_quantity", Check: Integer, Min: 0, Max: unbounded},
		},
	}
}
