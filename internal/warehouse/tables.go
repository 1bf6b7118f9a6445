//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import "github.com/pgEdge/warehouse-loader/internal/model"

// tableSpec describes how an entity maps onto its warehouse table: the
// surrogate id column, the natural key column, and the attribute columns
// the loader is allowed to write.
type tableSpec struct {
	table     string
	idColumn  string
	keyColumn string

	// attrColumns lists updatable attribute columns in SET order. Only
	// dimensions have them; fact columns are fixed per insert method.
	attrColumns []string
}

// dimensions maps each dimension entity to its table. Transactions appear
// here too because fact_transaction doubles as the key map items resolve
// their parents through.
var tables = map[model.EntityType]tableSpec{
	model.EntityCustomer: {
		table:     "retail.dim_customer",
		idColumn:  "customer_id",
		keyColumn: "customer_key",
		attrColumns: []string{
			"first_name", "last_name", "email", "phone", "is_active",
			"created_at",
		},
	},
	model.EntityProduct: {
		table:     "retail.dim_product",
		idColumn:  "product_id",
		keyColumn: "product_key",
		attrColumns: []string{
			"product_name", "description", "category", "subcategory",
			"brand", "supplier", "unit_price", "cost_price", "is_active",
		},
	},
	model.EntityLocation: {
		table:     "retail.dim_location",
		idColumn:  "location_id",
		keyColumn: "location_key",
		attrColumns: []string{
			"country", "region", "state", "city", "postal_code",
		},
	},
	model.EntityTransaction: {
		table:     "retail.fact_transaction",
		idColumn:  "transaction_id",
		keyColumn: "transaction_key",
	},
}

// dimensionSpec returns the table spec for entities that support key
// allocation. Fact entities are lookup-only.
func dimensionSpec(entity model.EntityType) (tableSpec, bool) {
	spec, ok := tables[entity]
	if !ok || entity == model.EntityTransaction {
		return tableSpec{}, false
	}
	return spec, true
}

func lookupSpec(entity model.EntityType) (tableSpec, bool) {
	spec, ok := tables[entity]
	return spec, ok
}
