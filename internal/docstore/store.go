//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package docstore wraps the MongoDB document database that carries the
// customer and product projections alongside the activity collections.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collections managed in the document store. The loader maintains the
// customer and product projections; browsing history and carts are
// landed by upstream producers and only get their indexes here.
const (
	CollectionCustomers       = "customers"
	CollectionProducts        = "products"
	CollectionBrowsingHistory = "browsing_history"
	CollectionCarts           = "carts"
)

// Store is a thin accessor over one Mongo database.
type Store struct {
	db *mongo.Database
}

// New creates a Store for the named database on the client.
func New(client *mongo.Client, database string) *Store {
	return &Store{db: client.Database(database)}
}

// EnsureIndexes creates the identity and lookup indexes. Idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{CollectionCustomers, mongo.IndexModel{
			Keys:    bson.D{{Key: "customer_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{CollectionProducts, mongo.IndexModel{
			Keys:    bson.D{{Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{CollectionBrowsingHistory, mongo.IndexModel{
			Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "occurred_at", Value: -1}},
		}},
		{CollectionCarts, mongo.IndexModel{
			Keys:    bson.D{{Key: "customer_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}

	for _, idx := range indexes {
		if _, err := s.db.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.collection, err)
		}
	}
	return nil
}

// Upsert applies an update document with upsert semantics. Returns true
// when the document was created by this call.
func (s *Store) Upsert(ctx context.Context, collection string, filter, update bson.M) (bool, error) {
	res, err := s.db.Collection(collection).UpdateOne(ctx, filter, update,
		options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to upsert into %s: %w", collection, err)
	}
	return res.UpsertedCount > 0, nil
}

// InsertMany lands documents in a collection. Used by the seed tool to
// plant sample browsing history and carts.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []any) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := s.db.Collection(collection).InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return int64(len(res.InsertedIDs)), nil
}

// FindOne returns the matching document, or nil when none exists.
func (s *Store) FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from %s: %w", collection, err)
	}
	return doc, nil
}

// Counts returns document counts per managed collection.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	collections := []string{
		CollectionCustomers, CollectionProducts,
		CollectionBrowsingHistory, CollectionCarts,
	}
	out := make(map[string]int64, len(collections))
	for _, c := range collections {
		n, err := s.db.Collection(c).EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c, err)
		}
		out[c] = n
	}
	return out, nil
}

// Drop removes the managed collections. Used by init --drop and tests.
func (s *Store) Drop(ctx context.Context) error {
	collections := []string{
		CollectionCustomers, CollectionProducts,
		CollectionBrowsingHistory, CollectionCarts,
	}
	for _, c := range collections {
		if err := s.db.Collection(c).Drop(ctx); err != nil {
			return fmt.Errorf("failed to drop %s: %w", c, err)
		}
	}
	return nil
}
