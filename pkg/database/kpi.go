// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// KPI is a named, stored SQL query template representing a metric.
type KPI struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Formula     string    `json:"formula"`
	TableName   string    `json:"table_name,omitempty"`
	Columns     []string  `json:"columns,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UpsertKPI inserts a KPI or, when the name exists, overwrites its
// description, formula, table name, and column list. Name is the only
// uniqueness constraint in the system.
func (db *DB) UpsertKPI(ctx context.Context, kpi KPI) error {
	var columnsJSON *string
	if len(kpi.Columns) > 0 {
		raw, err := json.Marshal(kpi.Columns)
		if err != nil {
			return fmt.Errorf("error serializing kpi columns: %w", err)
		}
		s := string(raw)
		columnsJSON = &s
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO kpi (name, description, formula, table_name, columns)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			formula = EXCLUDED.formula,
			table_name = EXCLUDED.table_name,
			columns = EXCLUDED.columns`,
		kpi.Name,
		nullable(kpi.Description),
		kpi.Formula,
		nullable(kpi.TableName),
		columnsJSON,
	)
	if err != nil {
		return fmt.Errorf("error upserting kpi %q: %w", kpi.Name, err)
	}
	return nil
}

// ListKPIs returns every stored KPI ordered by name.
func (db *DB) ListKPIs(ctx context.Context) ([]KPI, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT name, description, formula, table_name, columns, created_at
		FROM kpi
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("error listing kpis: %w", err)
	}
	defer rows.Close()

	var kpis []KPI
	for rows.Next() {
		var kpi KPI
		var description, tableName, columnsJSON *string
		if err := rows.Scan(&kpi.Name, &description, &kpi.Formula, &tableName, &columnsJSON, &kpi.CreatedAt); err != nil {
			return nil, err
		}
		if description != nil {
			kpi.Description = *description
		}
		if tableName != nil {
			kpi.TableName = *tableName
		}
		if columnsJSON != nil && *columnsJSON != "" {
			if err := json.Unmarshal([]byte(*columnsJSON), &kpi.Columns); err != nil {
				// A malformed column list should not hide the KPI itself.
				kpi.Columns = nil
			}
		}
		kpis = append(kpis, kpi)
	}
	return kpis, rows.Err()
}

// GetKPI fetches a single KPI by name. Returns (nil, nil) when absent.
func (db *DB) GetKPI(ctx context.Context, name string) (*KPI, error) {
	kpis, err := db.ListKPIs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range kpis {
		if kpis[i].Name == name {
			return &kpis[i], nil
		}
	}
	return nil, nil
}

// DeleteKPI removes a KPI by name. Insights referencing it keep their row
// with kpi_name set to null by the foreign key.
func (db *DB) DeleteKPI(ctx context.Context, name string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM kpi WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("error deleting kpi %q: %w", name, err)
	}
	return nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
