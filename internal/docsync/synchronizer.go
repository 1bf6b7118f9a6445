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
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/pgEdge/warehouse-loader/internal/docstore"
	"github.com/pgEdge/warehouse-loader/internal/logging"
	"github.com/pgEdge/warehouse-loader/internal/model"
)

// Applier is the slice of docstore.Store the synchronizer needs. Tests
// substitute a fake.
type Applier interface {
	Upsert(ctx context.Context, collection string, filter, update bson.M) (bool, error)
	FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, error)
}

// Synchronizer projects accepted dimension records into the document
// store. Writes never roll back: drift is logged and reported, then the
// update applies anyway.
type Synchronizer struct {
	store Applier
}

// New creates a Synchronizer over the applier.
func New(store Applier) *Synchronizer {
	return &Synchronizer{store: store}
}

// Sync applies one record to its projection. Returns the outcome and
// any drift notices observed against the existing document.
func (s *Synchronizer) Sync(ctx context.Context, rec model.Record, now time.Time) (model.Outcome, []model.DriftNotice, error) {
	var (
		collection string
		idField    string
	)
	switch rec.Entity {
	case model.EntityCustomer:
		collection, idField = docstore.CollectionCustomers, "customer_id"
	case model.EntityProduct:
		collection, idField = docstore.CollectionProducts, "product_id"
	default:
		return "", nil, fmt.Errorf("entity %s has no document projection", rec.Entity)
	}

	key := rec.NaturalKey()
	existing, err := s.store.FindOne(ctx, collection, bson.M{idField: key})
	if err != nil {
		return "", nil, err
	}

	var filter, update bson.M
	if rec.Entity == model.EntityCustomer {
		filter, update = BuildCustomerUpdate(rec, now)
	} else {
		filter, update = BuildProductUpdate(rec, existing, now)
	}

	drift := DetectDrift(rec.Entity, key, existing, update["$set"].(bson.M))
	for _, d := range drift {
		logging.Warn().
			Str("entity", string(d.Entity)).
			Str("natural_key", d.NaturalKey).
			Str("field", d.Field).
			Str("relational", d.Relational).
			Str("document", d.Document).
			Msg("Schema drift between stores")
	}

	created, err := s.store.Upsert(ctx, collection, filter, update)
	if err != nil {
		return "", drift, err
	}
	if created {
		return model.OutcomeCreated, drift, nil
	}
	return model.OutcomeUpdated, drift, nil
}
