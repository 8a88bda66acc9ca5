// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"

	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/llm"
)

// QueryRunner executes SQL text with a row limit appended.
type QueryRunner interface {
	RunQuery(ctx context.Context, sql string, limit int) (*database.QueryResult, error)
}

// RunQueryTool executes a SQL statement with a row limit appended
// unconditionally. The SQL text is passed through as-is; there is no
// validation or allow-listing.
type RunQueryTool struct {
	db QueryRunner
}

// NewRunQueryTool creates a run_query tool backed by db.
func NewRunQueryTool(db QueryRunner) *RunQueryTool {
	return &RunQueryTool{db: db}
}

func (t *RunQueryTool) Name() string { return "run_query" }

type runQueryInput struct {
	SQL   string `json:"sql"`
	Limit int    `json:"limit,omitempty"`
}

// Call runs the statement and returns column headers plus stringified
// rows. Limit defaults to database.DefaultQueryLimit when absent.
func (t *RunQueryTool) Call(ctx context.Context, input any) (any, error) {
	var req runQueryInput
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.SQL == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "sql is required")
	}

	result, err := t.db.RunQuery(ctx, req.SQL, req.Limit)
	if err != nil {
		return nil, errors.New(errors.CodeToolFailure, "query execution failed", err)
	}
	return result, nil
}

// Definition returns the LLM tool manifest.
func (t *RunQueryTool) Definition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name(),
			Description: "Run a SQL query against the connected database. A LIMIT clause is appended automatically; results are returned as column headers plus rows of strings.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sql": map[string]any{
						"type":        "string",
						"description": "SQL statement to execute",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum rows to return (default 5)",
					},
				},
				"required": []string{"sql"},
			},
		},
	}
}
