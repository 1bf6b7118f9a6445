//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package model

import (
	"fmt"
	"strings"
)

// ValidationError reports every rule a staged record violated. The record
// is skipped and the batch continues.
type ValidationError struct {
	Entity     EntityType
	NaturalKey string
	Reasons    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q failed validation: %s",
		e.Entity, e.NaturalKey, strings.Join(e.Reasons, "; "))
}

// UnresolvedDependencyError reports a fact referencing a natural key that
// was never resolved in this or a prior batch. Items are retried within
// the batch before this becomes a rejection.
type UnresolvedDependencyError struct {
	Entity     EntityType
	NaturalKey string
	RefEntity  EntityType
	RefKey     string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("%s %q references unresolved %s %q",
		e.Entity, e.NaturalKey, e.RefEntity, e.RefKey)
}

// DuplicateNaturalKeyError marks a fact whose natural key is already
// loaded. Callers treat it as an "already present" no-op, never a failure.
type DuplicateNaturalKeyError struct {
	Entity     EntityType
	NaturalKey string
}

func (e *DuplicateNaturalKeyError) Error() string {
	return fmt.Sprintf("%s %q already present", e.Entity, e.NaturalKey)
}

// MeasureMismatchError reports a supplied measure that disagrees with its
// computed value beyond tolerance. Treated as a data-quality rejection.
type MeasureMismatchError struct {
	Field     string
	Supplied  float64
	Computed  float64
	Tolerance float64
}

func (e *MeasureMismatchError) Error() string {
	return fmt.Sprintf("measure %s mismatch: supplied %.2f, computed %.2f (tolerance %.2f)",
		e.Field, e.Supplied, e.Computed, e.Tolerance)
}

// StoreUnavailableError wraps a failure to reach the relational or
// document store. Fatal for the affected stage; committed rows stay.
type StoreUnavailableError struct {
	Store string
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s store unavailable: %v", e.Store, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}
