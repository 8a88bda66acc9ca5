// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"fmt"
	"time"
)

// Insight is a stored narrative summary, optionally tied to a KPI.
// The formula column holds free text, not SQL.
type Insight struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	KPIName     string    `json:"kpi_name,omitempty"`
	Formula     string    `json:"formula"`
	Schedule    string    `json:"schedule,omitempty"`
	ExecTime    string    `json:"exec_time,omitempty"`
	AlertHigh   *float64  `json:"alert_high,omitempty"`
	AlertLow    *float64  `json:"alert_low,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// InsertInsight stores one insight row. Insights are insert-only; no
// update path exists.
func (db *DB) InsertInsight(ctx context.Context, ins Insight) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO insight (name, description, kpi_name, formula, schedule, exec_time, alert_high, alert_low)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		ins.Name,
		nullable(ins.Description),
		nullable(ins.KPIName),
		ins.Formula,
		nullable(ins.Schedule),
		nullable(ins.ExecTime),
		ins.AlertHigh,
		ins.AlertLow,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error inserting insight %q: %w", ins.Name, err)
	}
	return id, nil
}
