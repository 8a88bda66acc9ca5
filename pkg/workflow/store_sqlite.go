// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite" // cgo-free sqlite driver

	"github.com/metrikahq/metrika/pkg/errors"
)

// SQLiteRunStore persists runs in a local SQLite file. Suitable for
// single-node deployments that must survive restarts without a Postgres
// dependency for run state.
type SQLiteRunStore struct {
	db *sql.DB
}

// NewSQLiteRunStore opens (creating if needed) the SQLite file at path
// and ensures the runs table exists.
func NewSQLiteRunStore(ctx context.Context, path string) (*SQLiteRunStore, error) {
	if path == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeStorageError, "failed to open sqlite store", err)
	}
	// SQLite allows a single writer; serialize access through one conn.
	db.SetMaxOpenConns(1)

	s := &SQLiteRunStore{db: db}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRunStore) initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			step_index INTEGER NOT NULL DEFAULT 0,
			step_id TEXT,
			state TEXT,
			suspend_payload TEXT,
			output TEXT,
			error TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs (workflow_id, created_at);
	`)
	if err != nil {
		return errors.New(errors.CodeStorageError, "failed to initialize run table", err)
	}
	return nil
}

// SaveRun inserts or replaces the run record.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.Newf(errors.CodeInvalidInput, "run id is required")
	}

	state, suspend, output, err := encodeRunJSON(run)
	if err != nil {
		return errors.New(errors.CodeStorageError, "failed to encode run", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs
			(id, workflow_id, status, step_index, step_id, state, suspend_payload, output, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			step_index = excluded.step_index,
			step_id = excluded.step_id,
			state = excluded.state,
			suspend_payload = excluded.suspend_payload,
			output = excluded.output,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, run.ID, run.WorkflowID, string(run.Status), run.StepIndex, run.StepID,
		state, suspend, output, run.Error, run.CreatedAt.UnixNano(), run.UpdatedAt.UnixNano())
	if err != nil {
		return errors.New(errors.CodeStorageError, "failed to save run", err)
	}
	return nil
}

// GetRun returns the stored run or a NOT_FOUND error.
func (s *SQLiteRunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, step_index, step_id, state, suspend_payload, output, error, created_at, updated_at
		FROM workflow_runs WHERE id = ?
	`, runID)

	run, err := scanRunRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.CodeNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, errors.New(errors.CodeStorageError, "failed to load run", err)
	}
	return run, nil
}

// ListRuns returns runs for a workflow, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, workflowID string) ([]*Run, error) {
	query := `
		SELECT id, workflow_id, status, step_index, step_id, state, suspend_payload, output, error, created_at, updated_at
		FROM workflow_runs`
	args := []any{}
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorageError, "failed to list runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRunRow(rows.Scan)
		if err != nil {
			return nil, errors.New(errors.CodeStorageError, "failed to scan run", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// encodeRunJSON renders the map-valued fields as JSON text, using nil
// for absent values so the columns stay NULL.
func encodeRunJSON(run *Run) (state, suspend, output *string, err error) {
	enc := func(m map[string]any) (*string, error) {
		if m == nil {
			return nil, nil
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		s := string(raw)
		return &s, nil
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

// scanRunRow decodes one row via the given Scan func, shared between
// QueryRow and Rows iteration.
func scanRunRow(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var status string
	var stepID, state, suspend, output, runErr *string
	var createdAt, updatedAt int64

	if err := scan(&run.ID, &run.WorkflowID, &status, &run.StepIndex, &stepID,
		&state, &suspend, &output, &runErr, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.CreatedAt = time.Unix(0, createdAt)
	run.UpdatedAt = time.Unix(0, updatedAt)
	if stepID != nil {
		run.StepID = *stepID
	}
	if runErr != nil {
		run.Error = *runErr
	}
	dec := func(s *string, target *map[string]any) error {
		if s == nil || *s == "" {
			return nil
		}
		return json.Unmarshal([]byte(*s), target)
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
