// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"fmt"
	"strings"
)

// TableColumn describes one column of an introspected table.
type TableColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ListTables returns every base table as a schema-qualified name,
// excluding system catalogs, ordered by schema then name.
func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, fmt.Errorf("error listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, err
		}
		tables = append(tables, schema+"."+name)
	}
	return tables, rows.Err()
}

// ListColumns returns the columns of the given table in ordinal order.
// Unqualified table names default to the public schema. An unknown table
// yields an empty result, not an error.
func (db *DB) ListColumns(ctx context.Context, table string) ([]TableColumn, error) {
	schema, name := SplitTableName(table)

	rows, err := db.pool.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, name)
	if err != nil {
		return nil, fmt.Errorf("error listing columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []TableColumn
	for rows.Next() {
		var col TableColumn
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// SplitTableName splits a possibly schema-qualified table name,
// defaulting the schema to public.
func SplitTableName(table string) (schema, name string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "public", table
}
