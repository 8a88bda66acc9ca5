// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"

	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/llm"
)

// KPIWriter persists KPI definitions.
type KPIWriter interface {
	UpsertKPI(ctx context.Context, kpi database.KPI) error
}

// KPIReader lists stored KPI definitions.
type KPIReader interface {
	ListKPIs(ctx context.Context) ([]database.KPI, error)
}

// SaveKPITool stores a KPI definition. Saving under an existing name
// overwrites that KPI; name is the only uniqueness constraint.
type SaveKPITool struct {
	db KPIWriter
}

// NewSaveKPITool creates a save_kpi tool backed by db.
func NewSaveKPITool(db KPIWriter) *SaveKPITool {
	return &SaveKPITool{db: db}
}

func (t *SaveKPITool) Name() string { return "save_kpi" }

type saveKPIInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Formula     string   `json:"formula"`
	TableName   string   `json:"table_name,omitempty"`
	Columns     []string `json:"columns,omitempty"`
}

type saveResult struct {
	Saved bool   `json:"saved"`
	Name  string `json:"name"`
}

// Call upserts the KPI and reports the stored name back to the caller.
func (t *SaveKPITool) Call(ctx context.Context, input any) (any, error) {
	var req saveKPIInput
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "kpi name is required")
	}
	if req.Formula == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "kpi formula is required")
	}

	kpi := database.KPI{
		Name:        req.Name,
		Description: req.Description,
		Formula:     req.Formula,
		TableName:   req.TableName,
		Columns:     req.Columns,
	}
	if err := t.db.UpsertKPI(ctx, kpi); err != nil {
		return nil, errors.New(errors.CodeToolFailure, "failed to save kpi", err).
			WithContext("kpi", req.Name)
	}
	return saveResult{Saved: true, Name: req.Name}, nil
}

// Definition returns the LLM tool manifest.
func (t *SaveKPITool) Definition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name(),
			Description: "Save a KPI: a named SQL query representing a metric. Saving with an existing name overwrites that KPI.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Unique KPI name",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "Human-readable description",
					},
					"formula": map[string]any{
						"type":        "string",
						"description": "SQL query computing the metric",
					},
					"table_name": map[string]any{
						"type":        "string",
						"description": "Primary table the KPI reads from",
					},
					"columns": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Columns the KPI is built on",
					},
				},
				"required": []string{"name", "formula"},
			},
		},
	}
}

// ListKPIsTool returns every stored KPI ordered by name.
type ListKPIsTool struct {
	db KPIReader
}

// NewListKPIsTool creates a list_kpis tool backed by db.
func NewListKPIsTool(db KPIReader) *ListKPIsTool {
	return &ListKPIsTool{db: db}
}

func (t *ListKPIsTool) Name() string { return "list_kpis" }

// Call ignores its input; the tool takes no arguments.
func (t *ListKPIsTool) Call(ctx context.Context, _ any) (any, error) {
	kpis, err := t.db.ListKPIs(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeToolFailure, "failed to list kpis", err)
	}
	return kpis, nil
}

// Definition returns the LLM tool manifest.
func (t *ListKPIsTool) Definition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name(),
			Description: "List every stored KPI with its name, description, and SQL formula.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
		},
	}
}
