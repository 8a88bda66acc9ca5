// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"fmt"
	"strings"
)

// DefaultQueryLimit caps preview query results when no limit is given.
const DefaultQueryLimit = 5

// QueryResult holds a bounded query's column headers and stringified rows.
type QueryResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// BoundQuery strips a single trailing statement terminator from the SQL
// text and appends a row-limit clause unconditionally. The input is
// passed through otherwise untouched: callers are trusted, and the limit
// clause is only syntactically valid for row-returning statements.
func BoundQuery(sql string, limit int) string {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
}

// RunQuery executes arbitrary SQL text with a row limit appended and
// returns the stringified result set.
func (db *DB) RunQuery(ctx context.Context, sql string, limit int) (*QueryResult, error) {
	bounded := BoundQuery(sql, limit)

	rows, err := db.pool.Query(ctx, bounded)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := &QueryResult{Columns: make([]string, len(fields))}
	for i, f := range fields {
		result.Columns[i] = f.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				row[i] = ""
				continue
			}
			row[i] = fmt.Sprint(v)
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}
