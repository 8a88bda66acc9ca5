// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"

	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/llm"
)

// TableLister provides the table inventory of the connected database.
type TableLister interface {
	ListTables(ctx context.Context) ([]string, error)
}

// ColumnLister provides per-table column metadata.
type ColumnLister interface {
	ListColumns(ctx context.Context, table string) ([]database.TableColumn, error)
}

// ListTablesTool returns every base table in the connected database,
// schema-qualified.
type ListTablesTool struct {
	db TableLister
}

// NewListTablesTool creates a list_tables tool backed by db.
func NewListTablesTool(db TableLister) *ListTablesTool {
	return &ListTablesTool{db: db}
}

func (t *ListTablesTool) Name() string { return "list_tables" }

// Call ignores its input; the tool takes no arguments.
func (t *ListTablesTool) Call(ctx context.Context, _ any) (any, error) {
	tables, err := t.db.ListTables(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeToolFailure, "failed to list tables", err)
	}
	return tables, nil
}

// Definition returns the LLM tool manifest.
func (t *ListTablesTool) Definition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name(),
			Description: "List every table in the connected database, schema-qualified (e.g. public.sales).",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
		},
	}
}

// GetTableSchemaTool returns the columns of one table with their declared
// types.
type GetTableSchemaTool struct {
	db ColumnLister
}

// NewGetTableSchemaTool creates a get_table_schema tool backed by db.
func NewGetTableSchemaTool(db ColumnLister) *GetTableSchemaTool {
	return &GetTableSchemaTool{db: db}
}

func (t *GetTableSchemaTool) Name() string { return "get_table_schema" }

type tableSchemaInput struct {
	Table string `json:"table"`
}

// Call returns the column list for the named table. An unknown table
// yields an empty list, not an error.
func (t *GetTableSchemaTool) Call(ctx context.Context, input any) (any, error) {
	var req tableSchemaInput
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.Table == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "table name is required")
	}

	columns, err := t.db.ListColumns(ctx, req.Table)
	if err != nil {
		return nil, errors.New(errors.CodeToolFailure, "failed to read table schema", err).
			WithContext("table", req.Table)
	}
	return columns, nil
}

// Definition returns the LLM tool manifest.
func (t *GetTableSchemaTool) Definition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name(),
			Description: "Get the columns and data types of a table. Accepts schema-qualified names; bare names default to the public schema.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table": map[string]any{
						"type":        "string",
						"description": "Table name, optionally schema-qualified (e.g. public.sales)",
					},
				},
				"required": []string{"table"},
			},
		},
	}
}
