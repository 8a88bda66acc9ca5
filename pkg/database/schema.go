// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"fmt"
)

// EnsureSchema creates the kpi and insight tables if they do not exist and
// applies additive column migrations guarded by catalog existence checks.
// Statements run sequentially without a wrapping transaction; a failure
// partway leaves earlier statements applied.
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS kpi (
			name TEXT PRIMARY KEY,
			description TEXT,
			formula TEXT NOT NULL,
			table_name TEXT,
			columns TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS insight (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			kpi_name TEXT REFERENCES kpi(name) ON DELETE SET NULL,
			formula TEXT NOT NULL,
			schedule TEXT,
			exec_time TEXT,
			alert_high NUMERIC,
			alert_low NUMERIC,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema setup failed: %w", err)
		}
	}

	// Columns added after the original release; guarded so re-running
	// against an older database is safe.
	migrations := []struct {
		table, column, ddl string
	}{
		{"kpi", "table_name", `ALTER TABLE kpi ADD COLUMN table_name TEXT`},
		{"kpi", "columns", `ALTER TABLE kpi ADD COLUMN columns TEXT`},
		{"insight", "schedule", `ALTER TABLE insight ADD COLUMN schedule TEXT`},
		{"insight", "exec_time", `ALTER TABLE insight ADD COLUMN exec_time TEXT`},
		{"insight", "alert_high", `ALTER TABLE insight ADD COLUMN alert_high NUMERIC`},
		{"insight", "alert_low", `ALTER TABLE insight ADD COLUMN alert_low NUMERIC`},
	}

	for _, m := range migrations {
		exists, err := db.columnExists(ctx, m.table, m.column)
		if err != nil {
			return fmt.Errorf("schema check failed for %s.%s: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}
		if _, err := db.pool.Exec(ctx, m.ddl); err != nil {
			return fmt.Errorf("schema migration failed for %s.%s: %w", m.table, m.column, err)
		}
	}

	return nil
}

func (db *DB) columnExists(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
	return exists, err
}
