//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"fmt"
	"strings"
)

// The builders below are pure so placeholder numbering and conflict
// clauses can be unit tested without a database. Identifiers come from
// the table specs in this package, never from input data.

// buildInsertSQL renders a multi-row INSERT. conflictColumns adds
// ON CONFLICT (...) DO NOTHING; returning adds a RETURNING clause.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictColumns, returning []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(strings.Join(conflictColumns, ", "))
		b.WriteString(") DO NOTHING")
	}
	if len(returning) > 0 {
		b.WriteString(" RETURNING ")
		b.WriteString(strings.Join(returning, ", "))
	}

	return b.String(), args
}

// buildUpdateSQL renders an UPDATE over the given SET columns with the id
// predicate last. Args are assembled by the caller in the same order.
func buildUpdateSQL(table string, setColumns []string, idColumn string) string {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")

	p := 1
	for i, c := range setColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = $%d", c, p)
		p++
	}

	fmt.Fprintf(&b, " WHERE %s = $%d", idColumn, p)
	return b.String()
}

// buildSelectInSQL renders a key-to-id SELECT over a parameterized IN
// list of n keys.
func buildSelectInSQL(table, keyColumn, idColumn string, n int) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(keyColumn)
	b.WriteString(", ")
	b.WriteString(idColumn)
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")
	b.WriteString(keyColumn)
	b.WriteString(" IN (")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(")")
	return b.String()
}

// chunked calls fn for successive slices of at most size elements.
func chunked[T any](items []T, size int, fn func([]T) error) error {
	if size <= 0 {
		size = defaultChunkSize
	}
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		if err := fn(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}
