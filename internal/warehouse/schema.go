//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse implements the relational side of the load engine:
// schema management plus the pgx-backed store for dimensions, dates, and
// facts.
package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema SQL for the staging area and the retail star schema. Surrogate
// keys are generated identities; natural keys carry UNIQUE constraints so
// duplicate suppression happens at the store. Fact foreign keys are
// enforced, but the load order is what actually guarantees them.
const createSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS staging;
CREATE SCHEMA IF NOT EXISTS retail;

-- Customer Dimension
CREATE TABLE IF NOT EXISTS retail.dim_customer (
    customer_id  BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    customer_key VARCHAR(64) NOT NULL UNIQUE,
    first_name   VARCHAR(100),
    last_name    VARCHAR(100),
    email        VARCHAR(255) UNIQUE,
    phone        VARCHAR(40),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    is_active    BOOLEAN NOT NULL DEFAULT true
);

-- Product Dimension
CREATE TABLE IF NOT EXISTS retail.dim_product (
    product_id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    product_key  VARCHAR(64) NOT NULL UNIQUE,
    product_name VARCHAR(255),
    description  TEXT,
    category     VARCHAR(100),
    subcategory  VARCHAR(100),
    brand        VARCHAR(100),
    supplier     VARCHAR(100),
    unit_price   NUMERIC(10,2),
    cost_price   NUMERIC(10,2),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    is_active    BOOLEAN NOT NULL DEFAULT true
);

-- Location Dimension
CREATE TABLE IF NOT EXISTS retail.dim_location (
    location_id  BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    location_key VARCHAR(64) NOT NULL UNIQUE,
    country      VARCHAR(100),
    region       VARCHAR(100),
    state        VARCHAR(100),
    city         VARCHAR(100),
    postal_code  VARCHAR(20),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Date Dimension (date_id is YYYYMMDD)
CREATE TABLE IF NOT EXISTS retail.dim_date (
    date_id      INTEGER PRIMARY KEY,
    full_date    DATE NOT NULL,
    day_of_week  INTEGER NOT NULL,
    day_name     VARCHAR(9) NOT NULL,
    day_of_month INTEGER NOT NULL,
    day_of_year  INTEGER NOT NULL,
    week_of_year INTEGER NOT NULL,
    month_number INTEGER NOT NULL,
    month_name   VARCHAR(9) NOT NULL,
    quarter      INTEGER NOT NULL,
    year         INTEGER NOT NULL,
    is_weekend   BOOLEAN NOT NULL,
    is_holiday   BOOLEAN NOT NULL DEFAULT false,
    holiday_name VARCHAR(100)
);

-- Transaction Fact
CREATE TABLE IF NOT EXISTS retail.fact_transaction (
    transaction_id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    transaction_key  VARCHAR(64) NOT NULL UNIQUE,
    customer_id      BIGINT NOT NULL REFERENCES retail.dim_customer(customer_id),
    date_id          INTEGER NOT NULL REFERENCES retail.dim_date(date_id),
    location_id      BIGINT NOT NULL REFERENCES retail.dim_location(location_id),
    total_amount     NUMERIC(10,2) NOT NULL,
    discount_amount  NUMERIC(10,2) NOT NULL DEFAULT 0,
    tax_amount       NUMERIC(10,2) NOT NULL DEFAULT 0,
    shipping_amount  NUMERIC(10,2) NOT NULL DEFAULT 0,
    payment_method   VARCHAR(20),
    channel          VARCHAR(20),
    transaction_time TIMESTAMPTZ NOT NULL,
    is_return        BOOLEAN NOT NULL DEFAULT false,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Transaction Item Fact
CREATE TABLE IF NOT EXISTS retail.fact_transaction_item (
    transaction_item_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    transaction_id      BIGINT NOT NULL REFERENCES retail.fact_transaction(transaction_id),
    product_id          BIGINT NOT NULL REFERENCES retail.dim_product(product_id),
    line_number         INTEGER NOT NULL,
    quantity            INTEGER NOT NULL,
    unit_price          NUMERIC(10,2) NOT NULL,
    discount_amount     NUMERIC(10,2) NOT NULL DEFAULT 0,
    tax_amount          NUMERIC(10,2) NOT NULL DEFAULT 0,
    line_total          NUMERIC(10,2) NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (transaction_id, line_number)
);

-- Inventory Snapshot Fact (one snapshot per product/location/day)
CREATE TABLE IF NOT EXISTS retail.fact_inventory (
    inventory_id       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    product_id         BIGINT NOT NULL REFERENCES retail.dim_product(product_id),
    date_id            INTEGER NOT NULL REFERENCES retail.dim_date(date_id),
    location_id        BIGINT NOT NULL REFERENCES retail.dim_location(location_id),
    quantity_on_hand   INTEGER NOT NULL,
    quantity_reserved  INTEGER NOT NULL DEFAULT 0,
    quantity_available INTEGER GENERATED ALWAYS AS (quantity_on_hand - quantity_reserved) STORED,
    reorder_point      INTEGER,
    reorder_quantity   INTEGER,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (product_id, date_id, location_id)
);

-- Staging tables mirror source fields plus load bookkeeping.
CREATE TABLE IF NOT EXISTS staging.stg_customer (
    stg_id       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    customer_key VARCHAR(64),
    first_name   VARCHAR(100),
    last_name    VARCHAR(100),
    email        VARCHAR(255),
    phone        VARCHAR(40),
    is_active    BOOLEAN,
    created_at   TIMESTAMPTZ,
    addresses    JSONB,
    preferences  JSONB,
    source       VARCHAR(100) NOT NULL,
    batch_id     VARCHAR(64) NOT NULL,
    processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS staging.stg_product (
    stg_id       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    product_key  VARCHAR(64),
    product_name VARCHAR(255),
    description  TEXT,
    category     VARCHAR(100),
    subcategory  VARCHAR(100),
    brand        VARCHAR(100),
    supplier     VARCHAR(100),
    unit_price   NUMERIC(10,2),
    cost_price   NUMERIC(10,2),
    is_active    BOOLEAN,
    reviews      JSONB,
    images       JSONB,
    source       VARCHAR(100) NOT NULL,
    batch_id     VARCHAR(64) NOT NULL,
    processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS staging.stg_location (
    stg_id       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    location_key VARCHAR(64),
    country      VARCHAR(100),
    region       VARCHAR(100),
    state        VARCHAR(100),
    city         VARCHAR(100),
    postal_code  VARCHAR(20),
    source       VARCHAR(100) NOT NULL,
    batch_id     VARCHAR(64) NOT NULL,
    processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS staging.stg_transaction (
    stg_id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    transaction_key  VARCHAR(64),
    customer_key     VARCHAR(64),
    location_key     VARCHAR(64),
    transaction_time TIMESTAMPTZ,
    total_amount     NUMERIC(10,2),
    discount_amount  NUMERIC(10,2),
    tax_amount       NUMERIC(10,2),
    shipping_amount  NUMERIC(10,2),
    payment_method   VARCHAR(20),
    channel          VARCHAR(20),
    is_return        BOOLEAN,
    source           VARCHAR(100) NOT NULL,
    batch_id         VARCHAR(64) NOT NULL,
    processed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS staging.stg_transaction_item (
    stg_id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    transaction_key VARCHAR(64),
    product_key     VARCHAR(64),
    line_number     INTEGER,
    quantity        INTEGER,
    unit_price      NUMERIC(10,2),
    discount_amount NUMERIC(10,2),
    tax_amount      NUMERIC(10,2),
    line_total      NUMERIC(10,2),
    source          VARCHAR(100) NOT NULL,
    batch_id        VARCHAR(64) NOT NULL,
    processed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS staging.stg_inventory (
    stg_id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    product_key       VARCHAR(64),
    location_key      VARCHAR(64),
    snapshot_date     DATE,
    quantity_on_hand  INTEGER,
    quantity_reserved INTEGER,
    reorder_point     INTEGER,
    reorder_quantity  INTEGER,
    source            VARCHAR(100) NOT NULL,
    batch_id          VARCHAR(64) NOT NULL,
    processed_at      TIMESTAMPTZ
);

-- Batch ledger: one row per ingestion batch, with the serialized outcome
-- report once the batch finishes.
CREATE TABLE IF NOT EXISTS staging.load_batch (
    batch_id     VARCHAR(64) PRIMARY KEY,
    source       VARCHAR(100) NOT NULL,
    status       VARCHAR(20) NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ,
    report       JSONB
);

-- Indexes for batch fetches and fact lookups
CREATE INDEX IF NOT EXISTS idx_stg_customer_batch ON staging.stg_customer(batch_id);
CREATE INDEX IF NOT EXISTS idx_stg_product_batch ON staging.stg_product(batch_id);
CREATE INDEX IF NOT EXISTS idx_stg_location_batch ON staging.stg_location(batch_id);
CREATE INDEX IF NOT EXISTS idx_stg_transaction_batch ON staging.stg_transaction(batch_id);
CREATE INDEX IF NOT EXISTS idx_stg_transaction_item_batch ON staging.stg_transaction_item(batch_id);
CREATE INDEX IF NOT EXISTS idx_stg_inventory_batch ON staging.stg_inventory(batch_id);

CREATE INDEX IF NOT EXISTS idx_fact_transaction_customer ON retail.fact_transaction(customer_id);
CREATE INDEX IF NOT EXISTS idx_fact_transaction_date ON retail.fact_transaction(date_id);
CREATE INDEX IF NOT EXISTS idx_fact_transaction_location ON retail.fact_transaction(location_id);
CREATE INDEX IF NOT EXISTS idx_fact_item_transaction ON retail.fact_transaction_item(transaction_id);
CREATE INDEX IF NOT EXISTS idx_fact_item_product ON retail.fact_transaction_item(product_id);
CREATE INDEX IF NOT EXISTS idx_fact_inventory_product ON retail.fact_inventory(product_id);
CREATE INDEX IF NOT EXISTS idx_fact_inventory_date ON retail.fact_inventory(date_id);
`

// Drop schema SQL
const dropSchemaSQL = `
DROP SCHEMA IF EXISTS staging CASCADE;
DROP SCHEMA IF EXISTS retail CASCADE;
`

// CreateSchema creates both schemas and all tables. Idempotent.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, createSchemaSQL)
	return err
}

// DropSchema drops the staging and retail schemas.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, dropSchemaSQL)
	return err
}
