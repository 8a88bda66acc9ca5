// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metrikahq/metrika/pkg/errors"
)

// PostgresRunStore persists runs in the shared application database,
// letting run state live next to the KPI and insight tables.
type PostgresRunStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRunStore creates a run store on the given pool and ensures
// the runs table exists.
func NewPostgresRunStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresRunStore, error) {
	if pool == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "database pool is required")
	}

	s := &PostgresRunStore{pool: pool}
	if err := s.initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresRunStore) initialize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id UUID PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			step_index INTEGER NOT NULL DEFAULT 0,
			step_id TEXT,
			state JSONB,
			suspend_payload JSONB,
			output JSONB,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs (workflow_id, created_at);
	`)
	if err != nil {
		return errors.New(errors.CodeStorageError, "failed to initialize run table", err)
	}
	return nil
}

// SaveRun inserts or replaces the run record.
func (s *PostgresRunStore) SaveRun(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.Newf(errors.CodeInvalidInput, "run id is required")
	}

	state, suspend, output, err := encodeRunJSONB(run)
	if err != nil {
		return errors.New(errors.CodeStorageError, "failed to encode run", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_runs
			(id, workflow_id, status, step_index, step_id, state, suspend_payload, output, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			step_index = EXCLUDED.step_index,
			step_id = EXCLUDED.step_id,
			state = EXCLUDED.state,
			suspend_payload = EXCLUDED.suspend_payload,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`, run.ID, run.WorkflowID, string(run.Status), run.StepIndex, nullString(run.StepID),
		state, suspend, output, nullString(run.Error), run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return errors.New(errors.CodeStorageError, "failed to save run", err)
	}
	return nil
}

// GetRun returns the stored run or a NOT_FOUND error.
func (s *PostgresRunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, status, step_index, step_id, state, suspend_payload, output, error, created_at, updated_at
		FROM workflow_runs WHERE id = $1
	`, runID)

	run, err := scanPGRun(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, errors.Newf(errors.CodeNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, errors.New(errors.CodeStorageError, "failed to load run", err)
	}
	return run, nil
}

// ListRuns returns runs for a workflow, newest first.
func (s *PostgresRunStore) ListRuns(ctx context.Context, workflowID string) ([]*Run, error) {
	query := `
		SELECT id, workflow_id, status, step_index, step_id, state, suspend_payload, output, error, created_at, updated_at
		FROM workflow_runs`
	args := []any{}
	if workflowID != "" {
		query += ` WHERE workflow_id = $1`
		args = append(args, workflowID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorageError, "failed to list runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanPGRun(rows.Scan)
		if err != nil {
			return nil, errors.New(errors.CodeStorageError, "failed to scan run", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// encodeRunJSONB renders map-valued fields as raw JSON for jsonb
// columns, nil when absent.
func encodeRunJSONB(run *Run) (state, suspend, output []byte, err error) {
	enc := func(m map[string]any) ([]byte, error) {
		if m == nil {
			return nil, nil
		}
		return json.Marshal(m)
	}

	if state, err = enc(run.State); err != nil {
		return nil, nil, nil, err
	}
	if suspend, err = enc(run.SuspendPayload); err != nil {
		return nil, nil, nil, err
	}
	if output, err = enc(run.Output); err != nil {
		return nil, nil, nil, err
	}
	return state, suspend, output, nil
}

func scanPGRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var status string
	var stepID, runErr *string
	var state, suspend, output []byte

	if err := scan(&run.ID, &run.WorkflowID, &status, &run.StepIndex, &stepID,
		&state, &suspend, &output, &runErr, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if stepID != nil {
		run.StepID = *stepID
	}
	if runErr != nil {
		run.Error = *runErr
	}
	dec := func(raw []byte, target *map[string]any) error {
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, target)
	}
	if err := dec(state, (*map[string]any)(&run.State)); err != nil {
		return nil, err
	}
	if err := dec(suspend, &run.SuspendPayload); err != nil {
		return nil, err
	}
	if err := dec(output, &run.Output); err != nil {
		return nil, err
	}
	return &run, nil
}
